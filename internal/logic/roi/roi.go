package roi

import (
	"fmt"

	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/pylon"
)

// Limits describes the sensor and the increments the device enforces on
// the area-of-interest features.
type Limits struct {
	SensorWidth, SensorHeight int64
	WidthMin, HeightMin       int64
	WidthInc, HeightInc       int64
	OffsetXInc, OffsetYInc    int64
}

// Plan is the area of interest to program into the device.
type Plan struct {
	Width, Height    int64
	OffsetX, OffsetY int64
}

func (p Plan) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", p.Width, p.Height, p.OffsetX, p.OffsetY)
}

// Calculate fits the requested size into the sensor. Sizes are clamped to
// [min, sensor] and rounded down to the increment grid, 0 meaning the full
// sensor. With center set, the offsets place the area in the middle of the
// sensor, rounded down to their increment; otherwise they are 0.
func Calculate(l Limits, width, height int64, center bool) (*Plan, error) {
	if l.SensorWidth <= 0 || l.SensorHeight <= 0 {
		return nil, fmt.Errorf("sensor size must be > 0, got %dx%d", l.SensorWidth, l.SensorHeight)
	}
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("area of interest must not be negative, got %dx%d", width, height)
	}

	p := &Plan{
		Width:  fit(width, l.WidthMin, l.SensorWidth, l.WidthInc),
		Height: fit(height, l.HeightMin, l.SensorHeight, l.HeightInc),
	}
	if center {
		p.OffsetX = align((l.SensorWidth-p.Width)/2, 0, l.OffsetXInc)
		p.OffsetY = align((l.SensorHeight-p.Height)/2, 0, l.OffsetYInc)
	}
	return p, nil
}

// fit clamps v into [lo, hi] on the grid lo + k*inc. Zero selects hi.
func fit(v, lo, hi, inc int64) int64 {
	if v == 0 || v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return align(v, lo, inc)
}

func align(v, base, inc int64) int64 {
	if inc <= 1 {
		return v
	}
	return base + (v-base)/inc*inc
}

// ReadLimits queries the device node map for the sensor size and the
// bounds of Width, Height, OffsetX and OffsetY.
func ReadLimits(nm *pylon.NodeMap) (Limits, error) {
	var l Limits
	reads := []struct {
		name string
		get  func(*pylon.IntegerParameter) (int64, error)
		dst  *int64
	}{
		{"SensorWidth", (*pylon.IntegerParameter).Value, &l.SensorWidth},
		{"SensorHeight", (*pylon.IntegerParameter).Value, &l.SensorHeight},
		{"Width", (*pylon.IntegerParameter).Min, &l.WidthMin},
		{"Width", (*pylon.IntegerParameter).Inc, &l.WidthInc},
		{"Height", (*pylon.IntegerParameter).Min, &l.HeightMin},
		{"Height", (*pylon.IntegerParameter).Inc, &l.HeightInc},
		{"OffsetX", (*pylon.IntegerParameter).Inc, &l.OffsetXInc},
		{"OffsetY", (*pylon.IntegerParameter).Inc, &l.OffsetYInc},
	}
	for _, r := range reads {
		p, err := nm.Integer(r.name)
		if err != nil {
			return l, fmt.Errorf("read limits: %w", err)
		}
		v, err := r.get(p)
		p.Release()
		if err != nil {
			return l, fmt.Errorf("read limits: %s: %w", r.name, err)
		}
		*r.dst = v
	}
	return l, nil
}

// Apply programs p into the device. Offsets go to zero first so the new
// size always fits, then size, then the final offsets.
func Apply(nm *pylon.NodeMap, p *Plan) error {
	debug.Verbose("ROI: applying %s", p)
	steps := []struct {
		name  string
		value int64
	}{
		{"OffsetX", 0},
		{"OffsetY", 0},
		{"Width", p.Width},
		{"Height", p.Height},
		{"OffsetX", p.OffsetX},
		{"OffsetY", p.OffsetY},
	}
	for _, s := range steps {
		param, err := nm.Integer(s.name)
		if err != nil {
			return fmt.Errorf("apply roi: %w", err)
		}
		err = param.SetValue(s.value)
		param.Release()
		if err != nil {
			return fmt.Errorf("apply roi: %s=%d: %w", s.name, s.value, err)
		}
		debug.Node("set", s.name, s.value)
	}
	return nil
}
