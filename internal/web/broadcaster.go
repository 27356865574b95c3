package web

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/PylonGo/internal/logic/capture"
)

// StatusEvent represents a single status message for SSE.
// Frame events additionally carry the block ID and grab outcome.
type StatusEvent struct {
	Time    string `json:"t"`
	Level   string `json:"l,omitempty"`
	Msg     string `json:"msg"`
	Session string `json:"session,omitempty"`
	BlockID uint64 `json:"block,omitempty"`
	OK      *bool  `json:"ok,omitempty"`
}

// frameEventInterval is the minimum spacing of successful frame events, so a
// fast camera cannot crowd the other messages out of the client buffers.
// Failed frames are always published.
const frameEventInterval = 100 * time.Millisecond

// StatusBroadcaster distributes status messages to multiple SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}

	frameMu   sync.Mutex
	lastFrame time.Time
	skipped   int // successful frames not published since lastFrame
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}

// Broadcast sends a message to all subscribed clients.
// Messages are sent as JSON: {"t":"...","l":"info","msg":"..."}
// Slow clients may miss messages (non-blocking, buffered).
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.publish(StatusEvent{Level: level, Msg: msg})
}

func (b *StatusBroadcaster) publish(evt StatusEvent) {
	evt.Time = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// Begin, Frame and End make the broadcaster a capture.Sink so live-view
// clients follow a run frame by frame.
func (b *StatusBroadcaster) Begin(c capture.Begin) error {
	b.frameMu.Lock()
	b.lastFrame, b.skipped = time.Time{}, 0
	b.frameMu.Unlock()
	b.publish(StatusEvent{Level: "info", Session: c.Session.String(),
		Msg: fmt.Sprintf("Capture started on %s (%s)", c.Device, c.Strategy)})
	return nil
}

func (b *StatusBroadcaster) Frame(f *capture.Frame) error {
	ok := f.Succeeded
	evt := StatusEvent{Level: "frame", Session: f.Session.String(), BlockID: f.BlockID, OK: &ok}
	if ok {
		b.frameMu.Lock()
		now := time.Now()
		if now.Sub(b.lastFrame) < frameEventInterval {
			b.skipped++
			b.frameMu.Unlock()
			return nil
		}
		b.lastFrame = now
		skipped := b.skipped
		b.skipped = 0
		b.frameMu.Unlock()
		evt.Msg = fmt.Sprintf("Frame %d: %dx%d", f.Index+1, f.Width, f.Height)
		if skipped > 0 {
			evt.Msg += fmt.Sprintf(" (%d more)", skipped)
		}
	} else {
		evt.Level = "warn"
		evt.Msg = fmt.Sprintf("Frame %d failed: %s", f.Index+1, f.ErrorDescription)
	}
	b.publish(evt)
	return nil
}

func (b *StatusBroadcaster) End(s capture.Stats, runErr error) error {
	msg := fmt.Sprintf("Capture finished: %d frames, %d failed", s.Retrieved, s.Failed)
	level := "info"
	if runErr != nil {
		level = "error"
		msg += ": " + runErr.Error()
	}
	b.publish(StatusEvent{Level: level, Session: s.Session.String(), Msg: msg})
	return nil
}

// BroadcastWriter implements io.Writer; each Write broadcasts the content to SSE clients.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter wraps StatusBroadcaster as io.Writer for use with log.SetOutput.
type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.BroadcastMsg(msg)
	}
	return len(p), nil
}
