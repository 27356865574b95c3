package camera

import (
	"fmt"
	"time"

	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/internal/hw/gpio"
)

// LineTrigger fires frames with a GPIO pulse on a pin cabled to a camera
// input line (opto-coupled Line1 on Basler ace cameras):
// - GND: shared with the Raspberry Pi ground
// - LINE: idle LOW, rising edge starts a frame
//
// Trigger sequence:
// 1. Pin to HIGH (rising edge, camera starts the exposure)
// 2. Hold for the pulse width
// 3. Pin back to LOW
type LineTrigger struct {
	gpio  gpio.Driver
	pin   int
	pulse time.Duration
	fired int
}

// NewLineTrigger configures pin as an idle-low output. Arm the camera with
// the line name (e.g. Line1) and TriggerActivation RisingEdge.
func NewLineTrigger(g gpio.Driver, pin int, pulse time.Duration) (*LineTrigger, error) {
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return nil, fmt.Errorf("line trigger: setup pin %d: %w", pin, err)
	}
	if err := g.WritePin(pin, gpio.Low); err != nil {
		return nil, fmt.Errorf("line trigger: idle pin %d: %w", pin, err)
	}

	return &LineTrigger{gpio: g, pin: pin, pulse: pulse}, nil
}

// Fire sends one pulse.
func (l *LineTrigger) Fire() error {
	debug.Verbose("Trigger: pulse on pin %d (%v)", l.pin, l.pulse)

	if err := l.gpio.WritePin(l.pin, gpio.High); err != nil {
		return err
	}
	time.Sleep(l.pulse)
	if err := l.gpio.WritePin(l.pin, gpio.Low); err != nil {
		return err
	}

	l.fired++
	debug.Fire("line", l.fired)
	return nil
}

// Close leaves the pin low.
func (l *LineTrigger) Close() error {
	return l.gpio.WritePin(l.pin, gpio.Low)
}
