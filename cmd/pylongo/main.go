package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cjeanneret/PylonGo/internal/config"
	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/internal/web"
	"github.com/cjeanneret/PylonGo/pylon"
)

const usage = `usage: pylongo [flags] [command] [args]

commands:
  devices               list reachable cameras (-v: every property)
  grab                  grab frames with the configured options (default)
  features save FILE    save the device node map to a .pfs file
  features load FILE    load a .pfs file into the device node map
  features show         print the device node map as text
  pixel-formats         list the settable pixel formats
  exposure [US]         show exposure and gain, optionally set the exposure
  reset                 restore factory settings on every device
  chunks [N]            grab N frames with chunk data and print the chunks
  log FILE              summarize a recorded grab event file
  shell                 interactive node map shell
  version               print the SDK version and available backends

flags:
`

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file; empty for built-in defaults")
	count := flag.Uint64("count", 0, "override grab.count (number of frames)")
	strategy := flag.String("strategy", "", "override grab.strategy (OneByOne, LatestImageOnly, LatestImages, UpcomingImage)")
	exposureUs := flag.Float64("exposure_us", 0, "override camera.exposure_us")
	serial := flag.String("serial", "", "override camera.serial")
	verbose := flag.Bool("v", false, "verbose output for devices")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Validate CLI overrides (only non-zero values are applied; zero means "use config default")
	if err := validateCLIOverrides(*count, *strategy, *exposureUs); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, web.CaptureRequest{Count: *count, Strategy: *strategy, ExposureUs: *exposureUs})
	if *serial != "" {
		cfg.Camera.Serial = *serial
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Backend", cfg.Backend)
	debug.PrintStruct("Config", *cfg)

	if err := initSDK(cfg); err != nil {
		log.Fatalf("init %s backend failed: %v", cfg.Backend, err)
	}
	defer pylon.Terminate()

	a := &app{cfg: cfg, out: os.Stdout, verbose: *verbose}

	if port := webPort.port(); port > 0 {
		if err := a.serveWeb(ctx, port); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	if err := a.run(ctx, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		debug.Error(err)
		if kind, ok := pylon.KindOf(err); ok {
			log.Printf("%s from the camera SDK", kind)
		}
		log.Fatalf("%v", err)
	}
}

// loadConfig validates and loads path; an empty path selects the built-in
// defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	if err := config.ValidateConfigPath(path); err != nil {
		return nil, err
	}
	return config.Load(path)
}

// initSDK selects the backend and passes the emulation settings.
func initSDK(cfg *config.Config) error {
	opts := []pylon.Option{pylon.WithBackend(cfg.Backend)}
	for k, v := range cfg.Settings() {
		opts = append(opts, pylon.WithSetting(k, v))
	}
	return pylon.Initialize(opts...)
}

// validateCLIOverrides checks that non-zero CLI overrides are within valid ranges.
// Zero values are ignored (they mean "use config default").
func validateCLIOverrides(count uint64, strategy string, exposureUs float64) error {
	if count > 1_000_000 {
		return fmt.Errorf("count must be at most 1000000, got %d", count)
	}
	if strategy != "" {
		if _, ok := pylon.ParseGrabStrategy(strategy); !ok {
			return fmt.Errorf("unknown grab strategy %q", strategy)
		}
	}
	if exposureUs != 0 {
		if math.IsNaN(exposureUs) || math.IsInf(exposureUs, 0) || exposureUs < 0 || exposureUs > 10_000_000 {
			return fmt.Errorf("exposure_us must be between 0 and 10000000, got %g", exposureUs)
		}
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-zero override values are applied.
func applyOverrides(cfg *config.Config, o web.CaptureRequest) {
	if o.Count > 0 {
		cfg.Grab.Count = o.Count
	}
	if o.Strategy != "" {
		cfg.Grab.Strategy = o.Strategy
	}
	if o.ExposureUs > 0 {
		cfg.Camera.ExposureUs = o.ExposureUs
	}
	if o.Trigger != "" {
		cfg.Trigger.Mode = o.Trigger
	}
}

// applyOverridesToCopy returns a new config with overrides applied.
// Zero values in overrides mean "use base config".
func applyOverridesToCopy(baseCfg *config.Config, o web.CaptureRequest) *config.Config {
	cfg := *baseCfg
	applyOverrides(&cfg, o)
	return &cfg
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// teeDebug sends debug output to stdout and w.
func teeDebug(w io.Writer) {
	debug.SetOutput(io.MultiWriter(os.Stdout, w))
}
