package emu

import (
	"fmt"
	"os"
	"strconv"

	"github.com/cjeanneret/PylonGo/internal/native"
)

// EnvDeviceCount is the environment variable that sets the number of
// emulated devices when the settings do not.
const EnvDeviceCount = "PYLON_CAMEMU"

// Config tunes the emulated transport layer.
type Config struct {
	Devices   int     // number of emulated devices
	FailEvery uint64  // every Nth frame is delivered as a failed grab, 0 = never
	FrameRate float64 // sensor frame rate cap in Hz
}

// DefaultConfig returns one device at 30 Hz without failures.
func DefaultConfig() Config {
	return Config{Devices: 1, FrameRate: 30}
}

// ConfigFromSettings reads "devices", "fail_every" and "frame_rate".
func ConfigFromSettings(s native.Settings) (Config, error) {
	cfg := DefaultConfig()
	if v := os.Getenv(EnvDeviceCount); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("%s must be a non-negative integer, got %q", EnvDeviceCount, v)
		}
		cfg.Devices = n
	}
	if v, ok := s["devices"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("devices must be a non-negative integer, got %q", v)
		}
		cfg.Devices = n
	}
	if v, ok := s["fail_every"]; ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("fail_every must be a non-negative integer, got %q", v)
		}
		cfg.FailEvery = n
	}
	if v, ok := s["frame_rate"]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return cfg, fmt.Errorf("frame_rate must be > 0, got %q", v)
		}
		cfg.FrameRate = f
	}
	return cfg, nil
}
