package web

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/cjeanneret/PylonGo/internal/logic/capture"
)

// pixelTypeMono8 is the PFNC code of 8-bit monochrome.
const pixelTypeMono8 = 0x01080001

// LatestFrame keeps the most recent successful frame of any run. It is a
// capture.Sink.
type LatestFrame struct {
	mu    sync.RWMutex
	frame *capture.Frame
}

func (l *LatestFrame) Begin(capture.Begin) error { return nil }

func (l *LatestFrame) Frame(f *capture.Frame) error {
	if !f.Succeeded {
		return nil
	}
	l.mu.Lock()
	l.frame = f
	l.mu.Unlock()
	return nil
}

func (l *LatestFrame) End(capture.Stats, error) error { return nil }

// Get returns the latest frame, or nil.
func (l *LatestFrame) Get() *capture.Frame {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frame
}

// ServeHTTP writes the latest frame. Mono8 frames are served as a binary
// PGM image; other pixel formats as raw bytes with the geometry in headers.
func (l *LatestFrame) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f := l.Get()
	if f == nil {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}
	h := w.Header()
	h.Set("Cache-Control", "no-store")
	h.Set("X-Session", f.Session.String())
	h.Set("X-Block-Id", strconv.FormatUint(f.BlockID, 10))
	h.Set("X-Width", strconv.FormatUint(uint64(f.Width), 10))
	h.Set("X-Height", strconv.FormatUint(uint64(f.Height), 10))
	h.Set("X-Pixel-Type", fmt.Sprintf("0x%08X", f.PixelType))

	if f.PixelType == pixelTypeMono8 && r.URL.Query().Get("format") != "raw" {
		h.Set("Content-Type", "image/x-portable-graymap")
		fmt.Fprintf(w, "P5\n%d %d\n255\n", f.Width, f.Height)
		w.Write(f.Data)
		return
	}
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.Write(f.Data)
}
