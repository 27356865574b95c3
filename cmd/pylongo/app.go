package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/cjeanneret/PylonGo/cmd/pylongo/interactive"
	"github.com/cjeanneret/PylonGo/internal/config"
	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/internal/emu"
	"github.com/cjeanneret/PylonGo/internal/hw/camera"
	"github.com/cjeanneret/PylonGo/internal/hw/gpio"
	"github.com/cjeanneret/PylonGo/internal/logic/capture"
	"github.com/cjeanneret/PylonGo/internal/record"
	"github.com/cjeanneret/PylonGo/pylon"
)

var errUsage = errors.New("usage")

// chunkNames lists the chunks enabled by the chunks command, in selector order.
var chunkNames = []string{"Timestamp", "Framecounter", "ExposureTime", "PayloadCRC16"}

// app runs one CLI command against the initialized SDK.
type app struct {
	cfg     *config.Config
	out     io.Writer
	verbose bool
}

func (a *app) run(ctx context.Context, args []string) error {
	cmd := "grab"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "devices":
		return a.devices()
	case "grab":
		_, err := a.grab(ctx, a.cfg)
		return err
	case "features":
		return a.features(args)
	case "pixel-formats":
		return a.pixelFormats()
	case "exposure":
		return a.exposure(args)
	case "reset":
		return a.reset()
	case "chunks":
		n := uint64(5)
		if len(args) > 0 {
			v, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || v == 0 {
				return fmt.Errorf("chunks: invalid frame count %q", args[0])
			}
			n = v
		}
		return a.chunks(ctx, n)
	case "log":
		if len(args) != 1 {
			return errUsage
		}
		return a.summarize(args[0])
	case "shell":
		sh, err := interactive.New(a.cfg.Camera.Serial)
		if err != nil {
			return err
		}
		defer sh.Close()
		return sh.Run(ctx)
	case "version":
		return a.version()
	}
	return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
}

// openCamera creates and opens the configured device: the one with the
// configured serial number, or the first one.
func (a *app) openCamera() (*pylon.InstantCamera, error) {
	cam, err := interactive.CreateCamera(a.cfg.Camera.Serial)
	if err != nil {
		return nil, err
	}
	if err := cam.Open(); err != nil {
		cam.Release()
		return nil, fmt.Errorf("open camera: %w", err)
	}
	return cam, nil
}

// withCamera opens the camera, runs fn with its device node map and releases
// everything afterwards.
func (a *app) withCamera(fn func(cam *pylon.InstantCamera, nm *pylon.NodeMap) error) error {
	cam, err := a.openCamera()
	if err != nil {
		return err
	}
	defer cam.Release()
	defer cam.Close()
	nm, err := cam.NodeMap()
	if err != nil {
		return err
	}
	return fn(cam, nm)
}

func (a *app) devices() error {
	infos, err := pylon.EnumerateDevices()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(a.out, "no camera found")
		return nil
	}
	for i, info := range infos {
		debug.Device(i, info.FullName())
		fmt.Fprintf(a.out, "%d: %s (%s, serial %s)\n", i, info.FriendlyName(), info.ModelName(), info.SerialNumber())
		if !a.verbose {
			continue
		}
		names := info.PropertyNames()
		sort.Strings(names)
		for _, name := range names {
			v, err := info.PropertyValue(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "   %s = %s\n", name, v)
		}
	}
	return nil
}

// grab opens the camera, applies cfg and runs one capture session with the
// configured trigger and sinks.
func (a *app) grab(ctx context.Context, cfg *config.Config, extra ...capture.Sink) (*capture.Stats, error) {
	cam, err := a.openCamera()
	if err != nil {
		return nil, err
	}
	defer cam.Release()
	defer cam.Close()

	sinks := append([]capture.Sink{}, extra...)
	if len(extra) == 0 {
		sinks = append(sinks, capture.FrameFunc(a.printFrame))
	}
	if cfg.Record.Path != "" {
		rec, err := record.Open(cfg.Record.Path)
		if err != nil {
			return nil, err
		}
		defer rec.Close()
		sinks = append(sinks, rec)
	}
	if cfg.Record.SaveFramesDir != "" {
		dir, err := capture.NewDirSink(cfg.Record.SaveFramesDir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, dir)
	}

	s := capture.NewSession(cam, sinks...)
	if err := s.Configure(cfg.Camera); err != nil {
		return nil, err
	}
	p, err := capture.ParamsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	trig, err := newTrigger(cam, cfg)
	if err != nil {
		return nil, err
	}
	if trig != nil {
		defer trig.Close()
		p.Trigger = trig
	}

	stats, err := s.Run(ctx, p)
	debug.Summary("Session " + s.ID().String())
	if stats != nil && len(extra) == 0 {
		fmt.Fprintf(a.out, "session %s: %d retrieved, %d succeeded, %d failed, %d timeouts in %s\n",
			stats.Session, stats.Retrieved, stats.Succeeded, stats.Failed, stats.Timeouts, stats.Duration.Round(time.Millisecond))
	}
	return stats, err
}

func (a *app) printFrame(f *capture.Frame) error {
	if !f.Succeeded {
		fmt.Fprintf(a.out, "#%d block %d: error 0x%08X %s\n", f.Index, f.BlockID, f.ErrorCode, f.ErrorDescription)
		return nil
	}
	first := -1
	if len(f.Data) > 0 {
		first = int(f.Data[0])
	}
	fmt.Fprintf(a.out, "#%d block %d: %dx%d, first pixel %d\n", f.Index, f.BlockID, f.Width, f.Height, first)
	return nil
}

// newTrigger arms the camera for the configured trigger mode. It returns nil
// for free-running acquisition.
func newTrigger(cam *pylon.InstantCamera, cfg *config.Config) (camera.Trigger, error) {
	nm, err := cam.NodeMap()
	if err != nil {
		return nil, err
	}
	switch cfg.Trigger.Mode {
	case config.TriggerSoftware:
		if err := camera.Arm(nm, camera.SourceSoftware); err != nil {
			return nil, err
		}
		return camera.NewSoftwareTrigger(nm)
	case config.TriggerLine:
		if err := camera.Arm(nm, cfg.Trigger.Line); err != nil {
			return nil, err
		}
		drv, err := lineDriver(cam, cfg)
		if err != nil {
			return nil, err
		}
		trig, err := camera.NewLineTrigger(drv, cfg.Trigger.GPIOPin, cfg.TriggerPulse())
		if err != nil {
			return nil, errors.Join(err, drv.Close())
		}
		return &lineTrigger{LineTrigger: trig, drv: drv}, nil
	}
	return nil, camera.Disarm(nm)
}

// lineDriver returns the GPIO driver for line triggers. With mock GPIO on the
// emulation backend the pin is wired to the emulated camera's input line.
func lineDriver(cam *pylon.InstantCamera, cfg *config.Config) (gpio.Driver, error) {
	if !cfg.Defaults.MockGPIO {
		return gpio.NewDriver(false)
	}
	if cfg.Backend != config.BackendEmulation {
		return gpio.NewDriver(true)
	}
	info, err := cam.DeviceInfo()
	if err != nil {
		return nil, err
	}
	serial, line, pin := info.SerialNumber(), cfg.Trigger.Line, cfg.Trigger.GPIOPin
	return gpio.NewMockDriver(func(p int, level gpio.Level) error {
		if p != pin {
			return nil
		}
		return emu.DriveLine(serial, line, bool(level))
	}), nil
}

// lineTrigger closes the GPIO driver along with the trigger.
type lineTrigger struct {
	*camera.LineTrigger
	drv gpio.Driver
}

func (l *lineTrigger) Close() error {
	return errors.Join(l.LineTrigger.Close(), l.drv.Close())
}

func (a *app) features(args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	return a.withCamera(func(_ *pylon.InstantCamera, nm *pylon.NodeMap) error {
		switch {
		case args[0] == "save" && len(args) == 2:
			if err := nm.Save(args[1]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "saved features to %s\n", args[1])
		case args[0] == "load" && len(args) == 2:
			if err := nm.Load(args[1], a.cfg.Camera.ValidateFeatures); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "loaded features from %s\n", args[1])
		case args[0] == "show" && len(args) == 1:
			s, err := nm.SaveToString()
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, s)
		default:
			return errUsage
		}
		return nil
	})
}

func (a *app) pixelFormats() error {
	return a.withCamera(func(_ *pylon.InstantCamera, nm *pylon.NodeMap) error {
		pf, err := nm.Enum("PixelFormat")
		if err != nil {
			return err
		}
		defer pf.Release()
		current, err := pf.Value()
		if err != nil {
			return err
		}
		values, err := pf.SettableValues()
		if err != nil {
			return err
		}
		for _, v := range values {
			mark := " "
			if v == current {
				mark = "*"
			}
			fmt.Fprintf(a.out, "%s %s\n", mark, v)
		}
		return nil
	})
}

func (a *app) exposure(args []string) error {
	var set float64
	if len(args) > 0 {
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("exposure: invalid value %q", args[0])
		}
		set = v
	}
	return a.withCamera(func(_ *pylon.InstantCamera, nm *pylon.NodeMap) error {
		if set > 0 {
			if auto, err := nm.Enum("ExposureAuto"); err == nil {
				err = auto.SetValue("Off")
				auto.Release()
				if err != nil && !errors.Is(err, pylon.ErrAccess) {
					return err
				}
			}
			et, err := nm.Float("ExposureTime")
			if err != nil {
				return err
			}
			err = et.SetValue(set)
			et.Release()
			if err != nil {
				return err
			}
		}
		for _, name := range []string{"ExposureTime", "Gain"} {
			line, err := describeFloat(nm, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, line)
		}
		return nil
	})
}

func describeFloat(nm *pylon.NodeMap, name string) (string, error) {
	p, err := nm.Float(name)
	if err != nil {
		return "", err
	}
	defer p.Release()
	v, err := p.Value()
	if err != nil {
		return "", err
	}
	lo, err := p.Min()
	if err != nil {
		return "", err
	}
	hi, err := p.Max()
	if err != nil {
		return "", err
	}
	u, ok, err := p.Unit()
	if err != nil {
		return "", err
	}
	if !ok {
		u = "-"
	}
	return fmt.Sprintf("%s = %g [%g .. %g] %s", name, v, lo, hi, u), nil
}

// reset restores the factory settings of every reachable device.
func (a *app) reset() error {
	infos, err := pylon.EnumerateDevices()
	if err != nil {
		return err
	}
	for _, info := range infos {
		if err := resetDevice(info); err != nil {
			return fmt.Errorf("reset %s: %w", info.SerialNumber(), err)
		}
		fmt.Fprintf(a.out, "reset %s\n", info.FriendlyName())
	}
	return nil
}

func resetDevice(info pylon.DeviceInfo) error {
	cam, err := pylon.CreateDevice(info)
	if err != nil {
		return err
	}
	defer cam.Release()
	if err := cam.Open(); err != nil {
		return err
	}
	defer cam.Close()
	nm, err := cam.NodeMap()
	if err != nil {
		return err
	}
	cmd, err := nm.Command("DeviceReset")
	if err != nil {
		return err
	}
	defer cmd.Release()
	return cmd.Execute(true)
}

// chunks grabs n frames with every chunk enabled and prints the chunk values
// carried by each result.
func (a *app) chunks(ctx context.Context, n uint64) error {
	return a.withCamera(func(cam *pylon.InstantCamera, nm *pylon.NodeMap) (err error) {
		if err := enableChunks(nm); err != nil {
			return err
		}
		if err := cam.StartGrabbing(pylon.GrabOptions{}.WithCount(n)); err != nil {
			return err
		}
		defer stopGrabbing(cam, &err)

		for res, err := range cam.Results(ctx) {
			if err != nil {
				return err
			}
			err := a.printChunks(res)
			res.Release()
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// stopGrabbing ends a grab that has not already run to its frame count and
// joins any failure into *err.
func stopGrabbing(cam *pylon.InstantCamera, err *error) {
	grabbing, serr := cam.IsGrabbing()
	if serr == nil && grabbing {
		serr = cam.StopGrabbing()
	}
	if serr != nil {
		*err = errors.Join(*err, fmt.Errorf("stop grabbing: %w", serr))
	}
}

func enableChunks(nm *pylon.NodeMap) error {
	active, err := nm.Boolean("ChunkModeActive")
	if err != nil {
		return err
	}
	defer active.Release()
	if err := active.SetValue(true); err != nil {
		return err
	}
	sel, err := nm.Enum("ChunkSelector")
	if err != nil {
		return err
	}
	defer sel.Release()
	enable, err := nm.Boolean("ChunkEnable")
	if err != nil {
		return err
	}
	defer enable.Release()
	for _, name := range chunkNames {
		if err := sel.SetValue(name); err != nil {
			return err
		}
		if err := enable.SetValue(true); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) printChunks(res *pylon.GrabResult) error {
	block, err := res.BlockID()
	if err != nil {
		return err
	}
	ok, err := res.GrabSucceeded()
	if err != nil {
		return err
	}
	if !ok {
		desc, err := res.ErrorDescription()
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "block %d: grab failed: %s\n", block, desc)
		return nil
	}
	cm, err := res.ChunkDataNodeMap()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "block %d:", block)
	for _, name := range chunkNames {
		var v string
		if name == "ExposureTime" {
			p, err := cm.Float("Chunk" + name)
			if err != nil {
				return err
			}
			f, err := p.Value()
			p.Release()
			if err != nil {
				return err
			}
			v = strconv.FormatFloat(f, 'g', -1, 64)
		} else {
			p, err := cm.Integer("Chunk" + name)
			if err != nil {
				return err
			}
			i, err := p.Value()
			p.Release()
			if err != nil {
				return err
			}
			v = strconv.FormatInt(i, 10)
		}
		fmt.Fprintf(a.out, " %s=%s", name, v)
	}
	fmt.Fprintln(a.out)
	return nil
}

func (a *app) summarize(path string) error {
	sums, err := record.Summarize(path)
	if err != nil {
		return err
	}
	for _, s := range sums {
		state := "incomplete"
		if s.Completed {
			state = "completed"
		}
		fmt.Fprintf(a.out, "%s %s %s: %d frames, %d failed, %d gaps, %s",
			s.Session, s.Started.Format(time.RFC3339), s.Device, s.Frames, s.Failed, s.Gaps, state)
		if s.Error != "" {
			fmt.Fprintf(a.out, " (%s)", s.Error)
		}
		fmt.Fprintln(a.out)
	}
	return nil
}

func (a *app) version() error {
	v, err := pylon.SDKVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "pylon %s\nbackends: %v\n", v, pylon.Backends())
	return nil
}
