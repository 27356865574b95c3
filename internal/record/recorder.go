package record

import (
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/internal/logic/capture"
)

// Recorder appends the events of capture sessions to a CBOR file. It is a
// capture.Sink and is safe for concurrent use.
type Recorder struct {
	file    *os.File
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
	now     func() time.Time
}

// Open creates path or appends to it.
func Open(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	debug.Verbose("Recording grab events to %s", path)
	return &Recorder{file: f, encoder: newEncoder(f), now: time.Now}, nil
}

func (r *Recorder) write(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return os.ErrClosed
	}
	e.Timestamp = r.now()
	return r.encoder.Encode(e)
}

func (r *Recorder) Begin(b capture.Begin) error {
	return r.write(Event{
		Session: b.Session.String(),
		Kind:    KindSessionStart,
		Start: &StartEvent{
			Device:   b.Device,
			Serial:   b.Serial,
			Strategy: b.Strategy,
			Count:    b.Count,
		},
	})
}

func (r *Recorder) Frame(f *capture.Frame) error {
	return r.write(Event{
		Session: f.Session.String(),
		Kind:    KindFrame,
		Frame: &FrameEvent{
			Index:            f.Index,
			BlockID:          f.BlockID,
			TimeStamp:        f.TimeStamp,
			Succeeded:        f.Succeeded,
			Width:            f.Width,
			Height:           f.Height,
			PixelType:        f.PixelType,
			Size:             len(f.Data),
			ErrorCode:        f.ErrorCode,
			ErrorDescription: f.ErrorDescription,
		},
	})
}

func (r *Recorder) End(s capture.Stats, runErr error) error {
	end := &EndEvent{
		Retrieved:  s.Retrieved,
		Succeeded:  s.Succeeded,
		Failed:     s.Failed,
		Timeouts:   s.Timeouts,
		DurationNs: int64(s.Duration),
	}
	if runErr != nil {
		end.Error = runErr.Error()
	}
	return r.write(Event{Session: s.Session.String(), Kind: KindSessionEnd, End: end})
}

// Close closes the file. It is safe to call Close multiple times.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

var _ capture.Sink = (*Recorder)(nil)
