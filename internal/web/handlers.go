package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"math"
	"net/http"
	"sync"
	"time"
)

// MaxBodyBytes bounds the JSON body of POST /capture.
const MaxBodyBytes = 1 << 20

// minRunInterval is the shortest delay between two accepted captures.
const minRunInterval = 5 * time.Second

var (
	strategies   = []string{"OneByOne", "LatestImageOnly", "LatestImages", "UpcomingImage"}
	triggerModes = []string{"off", "software", "line"}
)

// CaptureRequest holds capture parameters that override config defaults.
// Empty strings and zeros keep the default.
type CaptureRequest struct {
	Count      uint64  `json:"count"`
	Strategy   string  `json:"strategy"`
	ExposureUs float64 `json:"exposure_us"`
	Trigger    string  `json:"trigger"`
}

// ValidateRequest checks the ranges of a capture request.
func ValidateRequest(r CaptureRequest) error {
	if r.Count == 0 || r.Count > 1_000_000 {
		return errors.New("count must be between 1 and 1000000")
	}
	if r.Strategy != "" && !contains(strategies, r.Strategy) {
		return fmt.Errorf("strategy must be one of %v", strategies)
	}
	if math.IsNaN(r.ExposureUs) || math.IsInf(r.ExposureUs, 0) || r.ExposureUs < 0 || r.ExposureUs > 10_000_000 {
		return errors.New("exposure_us must be between 0 and 10000000")
	}
	if r.Trigger != "" && !contains(triggerModes, r.Trigger) {
		return fmt.Errorf("trigger must be one of %v", triggerModes)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// RunCaptureFunc runs a capture with the given request.
// It is called from the POST /capture handler in a goroutine.
type RunCaptureFunc func(ctx context.Context, req CaptureRequest) error

// Device is the JSON form of a discovered camera.
type Device struct {
	FullName     string `json:"full_name"`
	ModelName    string `json:"model_name"`
	SerialNumber string `json:"serial_number"`
	VendorName   string `json:"vendor_name"`
}

// DevicesFunc lists the reachable cameras.
type DevicesFunc func() ([]Device, error)

// FormConfig holds default values for the capture form (from config).
type FormConfig struct {
	Count      uint64   `json:"count"`
	Strategy   string   `json:"strategy"`
	ExposureUs float64  `json:"exposure_us"`
	Trigger    string   `json:"trigger"`
	Strategies []string `json:"strategies"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	Latest       *LatestFrame
	Devices      DevicesFunc
	RunCapture   RunCaptureFunc
	FormDefaults FormConfig
	runningMu    sync.Mutex
	running      bool
	cancel       context.CancelFunc
	done         chan struct{} // closed when the running capture returns
	lastStart    time.Time
	staticFS     fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If runCapture is nil, POST /capture will return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, latest *LatestFrame, devices DevicesFunc, runCapture RunCaptureFunc, formDefaults FormConfig, staticFS fs.FS) *Handlers {
	if formDefaults.Strategies == nil {
		formDefaults.Strategies = strategies
	}
	return &Handlers{
		Broadcaster:  broadcaster,
		Latest:       latest,
		Devices:      devices,
		RunCapture:   runCapture,
		FormDefaults: formDefaults,
		staticFS:     staticFS,
	}
}

// HandleConfig returns the form default values (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.FormDefaults)
}

// HandleDevices returns the reachable cameras as JSON.
func (h *Handlers) HandleDevices(w http.ResponseWriter, r *http.Request) {
	if h.Devices == nil {
		http.Error(w, "device discovery not configured", http.StatusServiceUnavailable)
		return
	}
	devices, err := h.Devices()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if devices == nil {
		devices = []Device{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(devices)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCapture handles POST /capture to start a capture.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CaptureRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Count == 0 {
		req.Count = h.FormDefaults.Count
	}
	if err := ValidateRequest(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.RunCapture == nil {
		http.Error(w, "capture not configured", http.StatusServiceUnavailable)
		return
	}

	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		http.Error(w, "capture already in progress", http.StatusConflict)
		return
	}
	if !h.lastStart.IsZero() && time.Since(h.lastStart) < minRunInterval {
		h.runningMu.Unlock()
		http.Error(w, "too many captures, retry later", http.StatusTooManyRequests)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h.running = true
	h.cancel = cancel
	h.done = done
	h.lastStart = time.Now()
	h.runningMu.Unlock()

	// Run in goroutine; clear running when done
	go func() {
		defer func() {
			cancel()
			h.runningMu.Lock()
			h.running = false
			h.cancel = nil
			h.done = nil
			h.runningMu.Unlock()
			close(done)
		}()

		if err := h.RunCapture(ctx, req); err != nil {
			h.Broadcaster.Broadcast("error", "Capture failed: "+err.Error())
			log.Printf("capture failed: %v", err)
		} else {
			h.Broadcaster.Broadcast("info", "Capture complete")
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}

// HandleStop handles POST /capture/stop by cancelling the running capture.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.runningMu.Lock()
	cancel := h.cancel
	h.runningMu.Unlock()
	if cancel == nil {
		http.Error(w, "no capture in progress", http.StatusConflict)
		return
	}
	cancel()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "stopping"})
}

// StopAndWait cancels the running capture, if any, and waits until it has
// returned or ctx ends.
func (h *Handlers) StopAndWait(ctx context.Context) error {
	h.runningMu.Lock()
	cancel, done := h.cancel, h.done
	h.runningMu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
