package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/PylonGo/pylon"
)

// Frame is an owned copy of one retrieved result. Data is nil for failed
// grabs.
type Frame struct {
	Session          uuid.UUID
	Index            int
	BlockID          uint64
	TimeStamp        uint64
	Width, Height    uint32
	OffsetX, OffsetY uint32
	PixelType        uint32
	Succeeded        bool
	ErrorCode        uint32
	ErrorDescription string
	Data             []byte
}

// Begin describes a run to the sinks before the first frame.
type Begin struct {
	Session  uuid.UUID
	Device   string
	Serial   string
	Strategy string
	Count    uint64
	Started  time.Time
}

// Sink consumes the frames of a run. Frame must not keep f.Data beyond the
// call unless it owns it; every frame gets its own copy.
type Sink interface {
	Begin(b Begin) error
	Frame(f *Frame) error
	End(stats Stats, runErr error) error
}

// FrameFunc adapts a function to a Sink that ignores Begin and End.
type FrameFunc func(f *Frame) error

func (fn FrameFunc) Begin(Begin) error      { return nil }
func (fn FrameFunc) Frame(f *Frame) error   { return fn(f) }
func (fn FrameFunc) End(Stats, error) error { return nil }

func newFrame(session uuid.UUID, index int, res *pylon.GrabResult) (*Frame, error) {
	f := &Frame{Session: session, Index: index}
	var err error
	if f.Succeeded, err = res.GrabSucceeded(); err != nil {
		return nil, err
	}
	if f.BlockID, err = res.BlockID(); err != nil {
		return nil, err
	}
	if f.TimeStamp, err = res.TimeStamp(); err != nil {
		return nil, err
	}
	if !f.Succeeded {
		if f.ErrorCode, err = res.ErrorCode(); err != nil {
			return nil, err
		}
		if f.ErrorDescription, err = res.ErrorDescription(); err != nil {
			return nil, err
		}
		return f, nil
	}
	for _, field := range []struct {
		dst *uint32
		get func() (uint32, error)
	}{
		{&f.Width, res.Width},
		{&f.Height, res.Height},
		{&f.OffsetX, res.OffsetX},
		{&f.OffsetY, res.OffsetY},
		{&f.PixelType, res.PixelType},
	} {
		if *field.dst, err = field.get(); err != nil {
			return nil, err
		}
	}
	if f.Data, err = res.CopyBuffer(); err != nil {
		return nil, err
	}
	return f, nil
}

// DirSink writes the raw bytes of every successful frame to
// <dir>/<session>-<index>.raw.
type DirSink struct {
	dir string
}

// NewDirSink creates dir if needed.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("frame dir: %w", err)
	}
	return &DirSink{dir: dir}, nil
}

func (d *DirSink) Begin(Begin) error { return nil }

func (d *DirSink) Frame(f *Frame) error {
	if !f.Succeeded {
		return nil
	}
	return os.WriteFile(d.Path(f), f.Data, 0o644)
}

func (d *DirSink) End(Stats, error) error { return nil }

// Path returns the file a frame is written to.
func (d *DirSink) Path(f *Frame) string {
	return filepath.Join(d.dir, fmt.Sprintf("%s-%06d.raw", f.Session, f.Index))
}
