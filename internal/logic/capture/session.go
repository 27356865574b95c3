package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/PylonGo/internal/config"
	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/internal/hw/camera"
	"github.com/cjeanneret/PylonGo/internal/logic/roi"
	"github.com/cjeanneret/PylonGo/pylon"
)

// Session drives one open camera through configure, grab and stop, handing
// every retrieved frame to its sinks.
type Session struct {
	cam   *pylon.InstantCamera
	id    uuid.UUID
	sinks []Sink
}

// NewSession creates a session with a fresh ID. The camera must be open.
func NewSession(cam *pylon.InstantCamera, sinks ...Sink) *Session {
	return &Session{cam: cam, id: uuid.New(), sinks: sinks}
}

// ID returns the session identifier stamped on every frame.
func (s *Session) ID() uuid.UUID { return s.id }

// Params defines one acquisition run.
type Params struct {
	Count           uint64 // 0 = until ctx ends
	Strategy        pylon.GrabStrategy
	Timeout         time.Duration
	TimeoutHandling pylon.TimeoutHandling
	MaxNumBuffer    int64 // 0 keeps the camera's value
	OutputQueueSize int64 // 0 keeps the camera's value

	Trigger         camera.Trigger // nil = free-running
	TriggerInterval time.Duration  // delay before each trigger
}

// ParamsFromConfig builds run parameters from the grab and trigger sections.
// The trigger itself is attached by the caller.
func ParamsFromConfig(cfg *config.Config) (Params, error) {
	strategy, ok := pylon.ParseGrabStrategy(cfg.Grab.Strategy)
	if !ok {
		return Params{}, fmt.Errorf("unknown grab strategy %q", cfg.Grab.Strategy)
	}
	th := pylon.ThrowException
	if cfg.Grab.TimeoutHandling == "Return" {
		th = pylon.Return
	}
	return Params{
		Count:           cfg.Grab.Count,
		Strategy:        strategy,
		Timeout:         cfg.GrabTimeout(),
		TimeoutHandling: th,
		MaxNumBuffer:    cfg.Grab.MaxNumBuffer,
		OutputQueueSize: cfg.Grab.OutputQueueSize,
		TriggerInterval: cfg.TriggerInterval(),
	}, nil
}

// Stats summarizes a run.
type Stats struct {
	Session   uuid.UUID
	Retrieved int // results returned by RetrieveResult
	Succeeded int
	Failed    int // retrieved but GrabSucceeded() == false
	Timeouts  int // retrievals that found nothing under TimeoutHandling Return
	Duration  time.Duration
}

// Configure applies the camera section to the device: feature file first,
// then pixel format, exposure, gain and area of interest. Zero values keep
// the device's current setting.
func (s *Session) Configure(cc config.CameraConfig) error {
	debug.Section("Configure")
	nm, err := s.cam.NodeMap()
	if err != nil {
		return fmt.Errorf("configure: %w", err)
	}

	if cc.FeaturesFile != "" {
		debug.Step(1, "load features from "+cc.FeaturesFile)
		if err := nm.Load(cc.FeaturesFile, cc.ValidateFeatures); err != nil {
			return fmt.Errorf("configure: load %s: %w", cc.FeaturesFile, err)
		}
	}
	if cc.PixelFormat != "" {
		if err := setEnum(nm, "PixelFormat", cc.PixelFormat); err != nil {
			return err
		}
	}
	if cc.ExposureUs > 0 {
		if err := setEnum(nm, "ExposureAuto", "Off"); err != nil && !errors.Is(err, pylon.ErrAccess) {
			return err
		}
		if err := setFloat(nm, "ExposureTime", cc.ExposureUs); err != nil {
			return err
		}
	}
	if cc.Gain > 0 {
		if err := setFloat(nm, "Gain", cc.Gain); err != nil {
			return err
		}
	}
	if cc.Width > 0 || cc.Height > 0 {
		limits, err := roi.ReadLimits(nm)
		if err != nil {
			return fmt.Errorf("configure: %w", err)
		}
		plan, err := roi.Calculate(limits, cc.Width, cc.Height, cc.CenterROI)
		if err != nil {
			return fmt.Errorf("configure: %w", err)
		}
		if err := roi.Apply(nm, plan); err != nil {
			return fmt.Errorf("configure: %w", err)
		}
	}
	return nil
}

// Run grabs until Count frames were retrieved, the camera stops grabbing or
// ctx ends. A boundary error ends the run; a failed grab is counted and
// passed to the sinks like any other frame.
func (s *Session) Run(ctx context.Context, p Params) (*Stats, error) {
	stats := &Stats{Session: s.id}
	start := time.Now()
	defer func() { stats.Duration = time.Since(start) }()

	info, err := s.cam.DeviceInfo()
	if err != nil {
		return stats, fmt.Errorf("capture: %w", err)
	}
	debug.Section("Capture " + s.id.String())
	debug.Value("Device", info.FullName())
	debug.Value("Strategy", p.Strategy)
	debug.Value("Count", p.Count)

	if err := s.configureBuffers(p); err != nil {
		return stats, err
	}

	res, err := pylon.NewGrabResult()
	if err != nil {
		return stats, fmt.Errorf("capture: %w", err)
	}
	defer res.Release()

	opts := pylon.GrabOptions{}.WithStrategy(p.Strategy)
	if p.Count > 0 {
		opts = opts.WithCount(p.Count)
	}
	if err := s.cam.StartGrabbing(opts); err != nil {
		return stats, fmt.Errorf("capture: start grabbing: %w", err)
	}
	defer func() {
		if grabbing, _ := s.cam.IsGrabbing(); grabbing {
			_ = s.cam.StopGrabbing()
		}
	}()

	begin := Begin{Session: s.id, Device: info.FullName(), Serial: info.SerialNumber(), Strategy: p.Strategy.String(), Count: p.Count, Started: start}
	for _, sink := range s.sinks {
		if err := sink.Begin(begin); err != nil {
			return stats, fmt.Errorf("capture: sink: %w", err)
		}
	}

	runErr := s.loop(ctx, p, res, stats)
	stats.Duration = time.Since(start)

	for _, sink := range s.sinks {
		if err := sink.End(*stats, runErr); err != nil && runErr == nil {
			runErr = fmt.Errorf("capture: sink: %w", err)
		}
	}
	debug.Info("Capture done: %d retrieved, %d failed, %d timeouts", stats.Retrieved, stats.Failed, stats.Timeouts)
	return stats, runErr
}

func (s *Session) loop(ctx context.Context, p Params, res *pylon.GrabResult, stats *Stats) error {
	for p.Count == 0 || uint64(stats.Retrieved) < p.Count {
		if err := ctx.Err(); err != nil {
			return err
		}

		if p.Trigger != nil {
			if p.TriggerInterval > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(p.TriggerInterval):
				}
			}
			if err := p.Trigger.Fire(); err != nil {
				return fmt.Errorf("capture: trigger: %w", err)
			}
		}

		found, err := s.cam.RetrieveResult(p.Timeout, res, p.TimeoutHandling)
		if err != nil {
			return fmt.Errorf("capture: retrieve: %w", err)
		}
		if !found {
			grabbing, err := s.cam.IsGrabbing()
			if err != nil {
				return fmt.Errorf("capture: %w", err)
			}
			if !grabbing {
				return nil
			}
			stats.Timeouts++
			debug.Live("Retrieve timed out after %v", p.Timeout)
			continue
		}

		frame, err := newFrame(s.id, stats.Retrieved, res)
		if err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		stats.Retrieved++
		if frame.Succeeded {
			stats.Succeeded++
		} else {
			stats.Failed++
			debug.Live("Grab failed: 0x%X %s", frame.ErrorCode, frame.ErrorDescription)
		}
		debug.Grab(frame.BlockID, uint64(frame.Width), uint64(frame.Height), frame.Succeeded)

		for _, sink := range s.sinks {
			if err := sink.Frame(frame); err != nil {
				return fmt.Errorf("capture: sink: %w", err)
			}
		}
	}
	return nil
}

func (s *Session) configureBuffers(p Params) error {
	if p.MaxNumBuffer == 0 && p.OutputQueueSize == 0 {
		return nil
	}
	nm, err := s.cam.InstantCameraNodeMap()
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if p.MaxNumBuffer > 0 {
		if err := setInt(nm, "MaxNumBuffer", p.MaxNumBuffer); err != nil {
			return err
		}
	}
	if p.OutputQueueSize > 0 {
		if err := setInt(nm, "OutputQueueSize", p.OutputQueueSize); err != nil {
			return err
		}
	}
	return nil
}

func setEnum(nm *pylon.NodeMap, name, v string) error {
	p, err := nm.Enum(name)
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	defer p.Release()
	if err := p.SetValue(v); err != nil {
		return fmt.Errorf("set %s=%s: %w", name, v, err)
	}
	debug.Node("set", name, v)
	return nil
}

func setFloat(nm *pylon.NodeMap, name string, v float64) error {
	p, err := nm.Float(name)
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	defer p.Release()
	if err := p.SetValue(v); err != nil {
		return fmt.Errorf("set %s=%g: %w", name, v, err)
	}
	debug.Node("set", name, v)
	return nil
}

func setInt(nm *pylon.NodeMap, name string, v int64) error {
	p, err := nm.Integer(name)
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	defer p.Release()
	if err := p.SetValue(v); err != nil {
		return fmt.Errorf("set %s=%d: %w", name, v, err)
	}
	debug.Node("set", name, v)
	return nil
}
