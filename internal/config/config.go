package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes is the largest configuration file Load accepts.
const MaxConfigFileBytes = 64 << 10

// Backend names accepted in the backend section.
const (
	BackendEmulation = "emulation"
	BackendPylon     = "pylon"
)

// Trigger modes.
const (
	TriggerOff      = "off"
	TriggerSoftware = "software"
	TriggerLine     = "line"
)

// EmulationConfig tunes the emulated transport layer.
type EmulationConfig struct {
	Devices   int     `yaml:"devices"`    // number of emulated cameras
	FailEvery uint64  `yaml:"fail_every"` // deliver every Nth frame as a failed grab (0 = never)
	FrameRate float64 `yaml:"frame_rate"` // Hz
}

// CameraConfig selects a device and the features applied after open.
// Zero values leave the device's current setting untouched.
type CameraConfig struct {
	Serial           string  `yaml:"serial"` // empty = first device
	PixelFormat      string  `yaml:"pixel_format"`
	ExposureUs       float64 `yaml:"exposure_us"`
	Gain             float64 `yaml:"gain"`
	Width            int64   `yaml:"width"`
	Height           int64   `yaml:"height"`
	CenterROI        bool    `yaml:"center_roi"`
	FeaturesFile     string  `yaml:"features_file"` // .pfs loaded after open
	ValidateFeatures bool    `yaml:"validate_features"`
}

// GrabConfig controls StartGrabbing and RetrieveResult.
type GrabConfig struct {
	Count           uint64 `yaml:"count"` // 0 = unbounded
	Strategy        string `yaml:"strategy"`
	TimeoutMs       int    `yaml:"timeout_ms"`
	TimeoutHandling string `yaml:"timeout_handling"` // Return or ThrowException
	OutputQueueSize int64  `yaml:"output_queue_size"`
	MaxNumBuffer    int64  `yaml:"max_num_buffer"`
}

// TriggerConfig describes how frames are triggered.
type TriggerConfig struct {
	Mode       string `yaml:"mode"`        // off, software or line
	Line       string `yaml:"line"`        // camera input line, e.g. Line1
	GPIOPin    int    `yaml:"gpio_pin"`    // BCM pin wired to the camera line
	PulseUs    int    `yaml:"pulse_us"`    // pulse width for line triggers
	IntervalMs int    `yaml:"interval_ms"` // delay between two triggers
}

// RecordConfig enables the grab event log.
type RecordConfig struct {
	Path          string `yaml:"path"`            // CBOR event file, empty = disabled
	SaveFramesDir string `yaml:"save_frames_dir"` // raw frame dumps, empty = disabled
}

// DefaultsConfig contains process-wide parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Backend   string          `yaml:"backend"`
	Emulation EmulationConfig `yaml:"emulation"`
	Camera    CameraConfig    `yaml:"camera"`
	Grab      GrabConfig      `yaml:"grab"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Record    RecordConfig    `yaml:"record"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

var strategies = []string{"OneByOne", "LatestImageOnly", "LatestImages", "UpcomingImage"}

// ValidateConfigPath checks that path names a .yaml file directly inside a
// configs/ directory and does not climb out of it.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	_ = cfg.normalize()
	return &cfg
}

// Validate fills defaults and checks ranges. Callers that modify a loaded
// config run it again before use.
func (c *Config) Validate() error {
	return c.normalize()
}

func (c *Config) normalize() error {
	switch c.Backend {
	case "":
		c.Backend = BackendEmulation
	case BackendEmulation, BackendPylon:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendEmulation, BackendPylon, c.Backend)
	}

	if c.Emulation.Devices < 0 {
		return fmt.Errorf("emulation.devices must be >= 0, got %d", c.Emulation.Devices)
	}
	if c.Emulation.FrameRate < 0 {
		return fmt.Errorf("emulation.frame_rate must be > 0, got %.2f", c.Emulation.FrameRate)
	}
	if c.Emulation.FrameRate == 0 {
		c.Emulation.FrameRate = 30
	}

	if c.Camera.ExposureUs < 0 {
		return fmt.Errorf("camera.exposure_us must be >= 0, got %.2f", c.Camera.ExposureUs)
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		return fmt.Errorf("camera.width and camera.height must be >= 0")
	}

	if c.Grab.Strategy == "" {
		c.Grab.Strategy = strategies[0]
	}
	known := false
	for _, s := range strategies {
		known = known || s == c.Grab.Strategy
	}
	if !known {
		return fmt.Errorf("grab.strategy must be one of %s, got %q", strings.Join(strategies, ", "), c.Grab.Strategy)
	}
	switch c.Grab.TimeoutHandling {
	case "":
		c.Grab.TimeoutHandling = "ThrowException"
	case "Return", "ThrowException":
	default:
		return fmt.Errorf("grab.timeout_handling must be Return or ThrowException, got %q", c.Grab.TimeoutHandling)
	}
	if c.Grab.TimeoutMs <= 0 {
		c.Grab.TimeoutMs = 5000
	}
	if c.Grab.OutputQueueSize < 0 || c.Grab.MaxNumBuffer < 0 {
		return fmt.Errorf("grab.output_queue_size and grab.max_num_buffer must be >= 0")
	}

	switch c.Trigger.Mode {
	case "":
		c.Trigger.Mode = TriggerOff
	case TriggerOff, TriggerSoftware:
	case TriggerLine:
		if c.Trigger.GPIOPin <= 0 {
			return fmt.Errorf("trigger.gpio_pin is required for line triggers")
		}
	default:
		return fmt.Errorf("trigger.mode must be off, software or line, got %q", c.Trigger.Mode)
	}
	if c.Trigger.Line == "" {
		c.Trigger.Line = "Line1"
	}
	if c.Trigger.PulseUs <= 0 {
		c.Trigger.PulseUs = 100
	}
	if c.Trigger.IntervalMs <= 0 {
		c.Trigger.IntervalMs = 100
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// Settings returns the backend settings passed to pylon.Initialize.
// Emulation settings left at zero fall back to the emulator's own defaults.
func (c *Config) Settings() map[string]string {
	s := map[string]string{}
	if c.Backend != BackendEmulation {
		return s
	}
	if c.Emulation.Devices > 0 {
		s["devices"] = strconv.Itoa(c.Emulation.Devices)
	}
	if c.Emulation.FailEvery > 0 {
		s["fail_every"] = strconv.FormatUint(c.Emulation.FailEvery, 10)
	}
	s["frame_rate"] = strconv.FormatFloat(c.Emulation.FrameRate, 'g', -1, 64)
	return s
}

// GrabTimeout returns the retrieval timeout.
func (c *Config) GrabTimeout() time.Duration {
	return time.Duration(c.Grab.TimeoutMs) * time.Millisecond
}

// TriggerPulse returns the line trigger pulse width.
func (c *Config) TriggerPulse() time.Duration {
	return time.Duration(c.Trigger.PulseUs) * time.Microsecond
}

// TriggerInterval returns the delay between two triggers.
func (c *Config) TriggerInterval() time.Duration {
	return time.Duration(c.Trigger.IntervalMs) * time.Millisecond
}
