// Package interactive provides the interactive node map shell of pylongo.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/pylon"
)

// Shell reads commands from the terminal and applies them to one camera.
type Shell struct {
	rl     *readline.Instance
	out    io.Writer
	serial string

	cam *pylon.InstantCamera
	nm  *pylon.NodeMap
}

// New creates a shell that opens the device with the given serial number,
// or the first device when serial is empty.
func New(serial string) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pylon> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	s := newShell(rl.Stdout(), serial)
	s.rl = rl
	// Debug output goes through readline so it does not garble the prompt.
	debug.SetOutput(rl.Stdout())
	return s, nil
}

func newShell(out io.Writer, serial string) *Shell {
	return &Shell{out: out, serial: serial}
}

// Close releases the camera and the terminal.
func (s *Shell) Close() error {
	s.closeCamera()
	if s.rl != nil {
		debug.SetOutput(nil)
		return s.rl.Close()
	}
	return nil
}

// Run starts the interactive command loop. It returns when the user quits,
// on EOF or when ctx ends.
func (s *Shell) Run(ctx context.Context) error {
	s.printHelp()
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			return nil
		}
		if s.Execute(ctx, line) {
			return nil
		}
	}
}

// Execute runs one command line and reports whether the shell should exit.
// Errors are printed, not returned.
func (s *Shell) Execute(ctx context.Context, line string) (quit bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		s.printHelp()
	case "devices", "d":
		err = s.cmdDevices()
	case "open", "o":
		err = s.cmdOpen(args)
	case "close":
		s.closeCamera()
	case "get", "g":
		err = s.withArgs(args, 1, s.cmdGet)
	case "set", "s":
		err = s.withArgs(args, 2, s.cmdSet)
	case "exec", "x":
		err = s.withArgs(args, 1, s.cmdExec)
	case "values", "v":
		err = s.withArgs(args, 1, s.cmdValues)
	case "save":
		err = s.withArgs(args, 1, func(a []string) error { return s.nm.Save(a[0]) })
	case "load":
		err = s.withArgs(args, 1, func(a []string) error { return s.nm.Load(a[0], true) })
	case "dump":
		err = s.withArgs(args, 0, s.cmdDump)
	case "grab":
		err = s.cmdGrab(ctx, args)
	case "quit", "exit", "q":
		return true
	default:
		err = fmt.Errorf("unknown command %q, type help", cmd)
	}
	if err != nil {
		if kind, ok := pylon.KindOf(err); ok {
			fmt.Fprintf(s.out, "%s: %v\n", kind, err)
		} else {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.out, `Commands:
  devices            list reachable cameras
  open [SERIAL]      open a camera (default: configured or first)
  close              close the camera
  get NAME           print a feature and its limits
  set NAME VALUE     set a feature
  exec NAME          execute a command feature
  values NAME        list the settable values of an enumeration
  save FILE          save the node map to a .pfs file
  load FILE          load a .pfs file with validation
  dump               print the node map as text
  grab [N]           grab N frames (default 1)
  quit               leave the shell
`)
}

// withArgs checks that a camera is open and that exactly n arguments were
// given before calling fn.
func (s *Shell) withArgs(args []string, n int, fn func([]string) error) error {
	if len(args) != n {
		return fmt.Errorf("expected %d argument(s), got %d", n, len(args))
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return fn(args)
}

func (s *Shell) ensureOpen() error {
	if s.cam != nil {
		return nil
	}
	return s.cmdOpen(nil)
}

func (s *Shell) cmdDevices() error {
	infos, err := pylon.EnumerateDevices()
	if err != nil {
		return err
	}
	for i, info := range infos {
		fmt.Fprintf(s.out, "%d: %s\n", i, info)
	}
	if len(infos) == 0 {
		fmt.Fprintln(s.out, "no camera found")
	}
	return nil
}

func (s *Shell) cmdOpen(args []string) error {
	serial := s.serial
	if len(args) > 0 {
		serial = args[0]
	}
	s.closeCamera()
	cam, err := CreateCamera(serial)
	if err != nil {
		return err
	}
	if err := cam.Open(); err != nil {
		cam.Release()
		return err
	}
	nm, err := cam.NodeMap()
	if err != nil {
		cam.Release()
		return err
	}
	s.cam, s.nm = cam, nm
	info, err := cam.DeviceInfo()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "opened %s\n", info)
	return nil
}

func (s *Shell) closeCamera() {
	if s.cam == nil {
		return
	}
	s.cam.Close()
	s.cam.Release()
	s.cam, s.nm = nil, nil
}

// cmdGet prints the value of a feature of any readable type.
func (s *Shell) cmdGet(args []string) error {
	line, err := Describe(s.nm, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, line)
	return nil
}

func (s *Shell) cmdSet(args []string) error {
	if err := SetFeature(s.nm, args[0], args[1]); err != nil {
		return err
	}
	return s.cmdGet(args[:1])
}

func (s *Shell) cmdExec(args []string) error {
	cmd, err := s.nm.Command(args[0])
	if err != nil {
		return err
	}
	defer cmd.Release()
	return cmd.Execute(true)
}

func (s *Shell) cmdValues(args []string) error {
	e, err := s.nm.Enum(args[0])
	if err != nil {
		return err
	}
	defer e.Release()
	values, err := e.SettableValues()
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, strings.Join(values, " "))
	return nil
}

func (s *Shell) cmdDump([]string) error {
	text, err := s.nm.SaveToString()
	if err != nil {
		return err
	}
	fmt.Fprint(s.out, text)
	return nil
}

func (s *Shell) cmdGrab(ctx context.Context, args []string) (err error) {
	n := uint64(1)
	if len(args) > 0 {
		v, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil || v == 0 {
			return fmt.Errorf("invalid frame count %q", args[0])
		}
		n = v
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}
	res, err := pylon.NewGrabResult()
	if err != nil {
		return err
	}
	defer res.Release()
	if err := s.cam.StartGrabbing(pylon.GrabOptions{}.WithCount(n)); err != nil {
		return err
	}
	defer func() {
		grabbing, serr := s.cam.IsGrabbing()
		if serr == nil && grabbing {
			serr = s.cam.StopGrabbing()
		}
		if serr != nil {
			err = errors.Join(err, fmt.Errorf("stop grabbing: %w", serr))
		}
	}()
	for i := uint64(0); i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.cam.RetrieveResult(5*time.Second, res, pylon.ThrowException); err != nil {
			return err
		}
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
			fmt.Fprintf(s.out, "block %d: failed: %s\n", block, desc)
			continue
		}
		w, err := res.Width()
		if err != nil {
			return err
		}
		h, err := res.Height()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "block %d: %dx%d\n", block, w, h)
	}
	return nil
}

// CreateCamera creates the camera with the given serial number, or the first
// camera when serial is empty. The camera is not opened.
func CreateCamera(serial string) (*pylon.InstantCamera, error) {
	if serial == "" {
		return pylon.CreateFirstDevice()
	}
	infos, err := pylon.EnumerateDevices()
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.SerialNumber() == serial {
			return pylon.CreateDevice(info)
		}
	}
	return nil, fmt.Errorf("no camera with serial number %q", serial)
}

// Describe returns "Name = value" for a feature of any value type, with the
// limits and unit when the type has them.
func Describe(nm *pylon.NodeMap, name string) (string, error) {
	if p, err := nm.Integer(name); err == nil {
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
		inc, err := p.Inc()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %d [%d .. %d step %d]%s", name, v, lo, hi, inc, unitSuffix(p.Unit())), nil
	} else if !errors.Is(err, pylon.ErrCast) {
		return "", err
	}
	if p, err := nm.Float(name); err == nil {
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
		return fmt.Sprintf("%s = %g [%g .. %g]%s", name, v, lo, hi, unitSuffix(p.Unit())), nil
	} else if !errors.Is(err, pylon.ErrCast) {
		return "", err
	}
	if p, err := nm.Enum(name); err == nil {
		defer p.Release()
		v, err := p.Value()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", name, v), nil
	} else if !errors.Is(err, pylon.ErrCast) {
		return "", err
	}
	p, err := nm.Boolean(name)
	if err != nil {
		if errors.Is(err, pylon.ErrCast) {
			return fmt.Sprintf("%s (command)", name), nil
		}
		return "", err
	}
	defer p.Release()
	v, err := p.Value()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s = %t", name, v), nil
}

func unitSuffix(u string, ok bool, err error) string {
	if err != nil || !ok || u == "" {
		return ""
	}
	return " " + u
}

// SetFeature parses value according to the feature's type and sets it.
func SetFeature(nm *pylon.NodeMap, name, value string) error {
	if p, err := nm.Integer(name); err == nil {
		defer p.Release()
		v, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return fmt.Errorf("%s expects an integer: %w", name, err)
		}
		return p.SetValue(v)
	} else if !errors.Is(err, pylon.ErrCast) {
		return err
	}
	if p, err := nm.Float(name); err == nil {
		defer p.Release()
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s expects a number: %w", name, err)
		}
		return p.SetValue(v)
	} else if !errors.Is(err, pylon.ErrCast) {
		return err
	}
	if p, err := nm.Enum(name); err == nil {
		defer p.Release()
		return p.SetValue(value)
	} else if !errors.Is(err, pylon.ErrCast) {
		return err
	}
	p, err := nm.Boolean(name)
	if err != nil {
		return err
	}
	defer p.Release()
	v, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s expects true or false: %w", name, err)
	}
	return p.SetValue(v)
}
