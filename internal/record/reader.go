package record

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Reader streams the events of a recording.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	session string
}

// NewReader reads every event of the file at path.
func NewReader(path string) (*Reader, error) {
	return NewSessionReader(path, "")
}

// NewSessionReader reads only the events of one session; an empty session
// matches all.
func NewSessionReader(path, session string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, decoder: newDecoder(f), session: session}, nil
}

// Next returns the next matching event, or io.EOF.
func (r *Reader) Next() (Event, error) {
	for {
		var e Event
		if err := r.decoder.Decode(&e); err != nil {
			return Event{}, err
		}
		if r.session == "" || e.Session == r.session {
			return e, nil
		}
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Summary aggregates one session of a recording.
type Summary struct {
	Session   string
	Device    string
	Started   time.Time
	Frames    int
	Failed    int
	Gaps      int // block IDs skipped between consecutive frames
	Completed bool
	Error     string
}

// Summarize reads the whole recording and returns one summary per session in
// order of first appearance.
func Summarize(path string) ([]Summary, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []Summary
	index := map[string]int{}
	lastBlock := map[string]uint64{}
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		i, ok := index[e.Session]
		if !ok {
			i = len(out)
			index[e.Session] = i
			out = append(out, Summary{Session: e.Session, Started: e.Timestamp})
		}
		s := &out[i]
		switch e.Kind {
		case KindSessionStart:
			if e.Start != nil {
				s.Device = e.Start.Device
			}
		case KindFrame:
			if e.Frame == nil {
				continue
			}
			s.Frames++
			if !e.Frame.Succeeded {
				s.Failed++
			}
			if prev, seen := lastBlock[e.Session]; seen && e.Frame.BlockID > prev+1 {
				s.Gaps += int(e.Frame.BlockID - prev - 1)
			}
			lastBlock[e.Session] = e.Frame.BlockID
		case KindSessionEnd:
			s.Completed = true
			if e.End != nil {
				s.Error = e.End.Error
			}
		}
	}
}
