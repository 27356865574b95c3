package main

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cjeanneret/PylonGo/internal/config"
	"github.com/cjeanneret/PylonGo/internal/web"
	"github.com/cjeanneret/PylonGo/pylon"
)

func TestMain(m *testing.M) {
	cfg := config.Default()
	cfg.Emulation.Devices = 2
	cfg.Emulation.FrameRate = 200
	if err := initSDK(cfg); err != nil {
		panic(err)
	}
	code := m.Run()
	pylon.Terminate()
	os.Exit(code)
}

// ---------- validateCLIOverrides ----------

func TestValidateCLIOverrides_AllZero(t *testing.T) {
	if err := validateCLIOverrides(0, "", 0); err != nil {
		t.Errorf("all zeros should be valid (use config defaults), got: %v", err)
	}
}

func TestValidateCLIOverrides_Valid(t *testing.T) {
	cases := []struct {
		name     string
		count    uint64
		strategy string
		exposure float64
	}{
		{"min_count", 1, "", 0},
		{"max_count", 1_000_000, "", 0},
		{"strategy", 0, "LatestImages", 0},
		{"min_exposure", 0, "", 0.001},
		{"max_exposure", 0, "", 10_000_000},
		{"all", 10, "UpcomingImage", 5000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateCLIOverrides(tc.count, tc.strategy, tc.exposure); err != nil {
				t.Errorf("expected valid, got: %v", err)
			}
		})
	}
}

func TestValidateCLIOverrides_Invalid(t *testing.T) {
	cases := []struct {
		name     string
		count    uint64
		strategy string
		exposure float64
	}{
		{"count_too_large", 1_000_001, "", 0},
		{"unknown_strategy", 0, "Newest", 0},
		{"strategy_case", 0, "onebyone", 0},
		{"exposure_negative", 0, "", -1},
		{"exposure_too_large", 0, "", 10_000_001},
		{"exposure_NaN", 0, "", math.NaN()},
		{"exposure_+Inf", 0, "", math.Inf(1)},
		{"exposure_-Inf", 0, "", math.Inf(-1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateCLIOverrides(tc.count, tc.strategy, tc.exposure); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

// ---------- webPortFlag ----------

func TestWebPortFlag_EmptyString(t *testing.T) {
	w := &webPortFlag{defaultPort: 8080}
	if err := w.Set(""); err != nil {
		t.Fatalf("Set(\"\") error: %v", err)
	}
	if w.port() != 8080 {
		t.Errorf("expected default port 8080, got %d", w.port())
	}
}

func TestWebPortFlag_ValidPorts(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"8080", 8080},
		{"1", 1},
		{"65535", 65535},
		{"3000", 3000},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(tc.input); err != nil {
				t.Fatalf("Set(%q) error: %v", tc.input, err)
			}
			if w.port() != tc.want {
				t.Errorf("port() = %d, want %d", w.port(), tc.want)
			}
		})
	}
}

func TestWebPortFlag_InvalidPorts(t *testing.T) {
	cases := []string{"0", "65536", "-1", "abc", "8080.5"}
	for _, input := range cases {
		t.Run(input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(input); err == nil {
				t.Errorf("Set(%q) should fail, got nil", input)
			}
		})
	}
}

func TestWebPortFlag_String(t *testing.T) {
	w := &webPortFlag{val: 0}
	if s := w.String(); s != "0" {
		t.Errorf("String() = %q, want \"0\"", s)
	}
	w.val = 9090
	if s := w.String(); s != "9090" {
		t.Errorf("String() = %q, want \"9090\"", s)
	}
}

// ---------- applyOverrides ----------

func TestApplyOverrides_NonZero(t *testing.T) {
	cfg := config.Default()
	applyOverrides(cfg, web.CaptureRequest{Count: 7, Strategy: "LatestImageOnly", ExposureUs: 1200, Trigger: "software"})
	if cfg.Grab.Count != 7 {
		t.Errorf("Grab.Count = %d, want 7", cfg.Grab.Count)
	}
	if cfg.Grab.Strategy != "LatestImageOnly" {
		t.Errorf("Grab.Strategy = %q, want LatestImageOnly", cfg.Grab.Strategy)
	}
	if cfg.Camera.ExposureUs != 1200 {
		t.Errorf("Camera.ExposureUs = %g, want 1200", cfg.Camera.ExposureUs)
	}
	if cfg.Trigger.Mode != "software" {
		t.Errorf("Trigger.Mode = %q, want software", cfg.Trigger.Mode)
	}
}

func TestApplyOverrides_ZeroKeepsConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Grab.Count = 3
	cfg.Camera.ExposureUs = 800
	applyOverrides(cfg, web.CaptureRequest{})
	if cfg.Grab.Count != 3 || cfg.Camera.ExposureUs != 800 || cfg.Grab.Strategy != "OneByOne" || cfg.Trigger.Mode != "off" {
		t.Errorf("zero overrides changed the config: %+v", cfg)
	}
}

func TestApplyOverridesToCopy_BaseUnchanged(t *testing.T) {
	base := config.Default()
	base.Grab.Count = 3
	cfg := applyOverridesToCopy(base, web.CaptureRequest{Count: 9})
	if cfg.Grab.Count != 9 {
		t.Errorf("copy Grab.Count = %d, want 9", cfg.Grab.Count)
	}
	if base.Grab.Count != 3 {
		t.Errorf("base Grab.Count = %d, want 3", base.Grab.Count)
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig(\"\"): %v", err)
	}
	if cfg.Backend != config.BackendEmulation {
		t.Errorf("Backend = %q, want emulation", cfg.Backend)
	}
	if _, err := loadConfig("../../etc/passwd"); err == nil {
		t.Error("loadConfig accepted a path outside configs/")
	}
	if _, err := loadConfig(filepath.Join("..", "..", "configs", "default.yaml")); err == nil {
		t.Error("loadConfig accepted a path with '..'")
	}
}

// ---------- commands ----------

// newTestApp returns an app on the emulator with every device reset to
// factory settings and a small image.
func newTestApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg := config.Default()
	cfg.Camera.Width = 32
	cfg.Camera.Height = 16
	a := &app{cfg: cfg, out: &out}
	if err := a.run(context.Background(), []string{"reset"}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	out.Reset()
	return a, &out
}

func runCommand(t *testing.T, a *app, out *bytes.Buffer, args ...string) string {
	t.Helper()
	out.Reset()
	if err := a.run(context.Background(), args); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestRun_Devices(t *testing.T) {
	a, out := newTestApp(t)
	got := runCommand(t, a, out, "devices")
	for _, serial := range []string{"0815-0000", "0815-0001"} {
		if !strings.Contains(got, serial) {
			t.Errorf("devices output misses %s:\n%s", serial, got)
		}
	}

	a.verbose = true
	got = runCommand(t, a, out, "devices")
	if !strings.Contains(got, "SerialNumber = 0815-0000") {
		t.Errorf("verbose devices output misses properties:\n%s", got)
	}
}

func TestRun_GrabRecordAndLog(t *testing.T) {
	a, out := newTestApp(t)
	dir := t.TempDir()
	a.cfg.Grab.Count = 4
	a.cfg.Record.Path = filepath.Join(dir, "grab.cbor")
	a.cfg.Record.SaveFramesDir = filepath.Join(dir, "frames")

	got := runCommand(t, a, out)
	if n := strings.Count(got, "32x16"); n != 4 {
		t.Errorf("grab printed %d frames, want 4:\n%s", n, got)
	}
	if !strings.Contains(got, "4 retrieved, 4 succeeded, 0 failed") {
		t.Errorf("grab summary missing:\n%s", got)
	}
	frames, err := os.ReadDir(a.cfg.Record.SaveFramesDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(frames) != 4 {
		t.Errorf("saved %d frames, want 4", len(frames))
	}

	got = runCommand(t, a, out, "log", a.cfg.Record.Path)
	if !strings.Contains(got, "4 frames, 0 failed, 0 gaps, completed") {
		t.Errorf("log output:\n%s", got)
	}
}

func TestRun_GrabTriggered(t *testing.T) {
	cases := []struct {
		name string
		mode string
	}{
		{"software", config.TriggerSoftware},
		{"line", config.TriggerLine},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, out := newTestApp(t)
			a.cfg.Grab.Count = 2
			a.cfg.Trigger.Mode = tc.mode
			a.cfg.Trigger.GPIOPin = 17
			a.cfg.Trigger.IntervalMs = 5
			a.cfg.Defaults.MockGPIO = true

			got := runCommand(t, a, out, "grab")
			if !strings.Contains(got, "2 retrieved, 2 succeeded") {
				t.Errorf("triggered grab output:\n%s", got)
			}
		})
	}
}

func TestRun_Features(t *testing.T) {
	a, out := newTestApp(t)
	path := filepath.Join(t.TempDir(), "camera.pfs")

	runCommand(t, a, out, "exposure", "1500")
	runCommand(t, a, out, "features", "save", path)
	runCommand(t, a, out, "exposure", "3000")
	got := runCommand(t, a, out, "features", "load", path)
	if !strings.Contains(got, "loaded features") {
		t.Errorf("features load output: %s", got)
	}
	got = runCommand(t, a, out, "exposure")
	if !strings.Contains(got, "ExposureTime = 1500 ") {
		t.Errorf("exposure after load:\n%s", got)
	}
	if !strings.Contains(got, "Gain = ") {
		t.Errorf("exposure output misses gain:\n%s", got)
	}
	got = runCommand(t, a, out, "features", "show")
	if !strings.Contains(got, "ExposureTime") {
		t.Errorf("features show:\n%s", got)
	}
}

func TestRun_PixelFormats(t *testing.T) {
	a, out := newTestApp(t)
	got := runCommand(t, a, out, "pixel-formats")
	if !strings.Contains(got, "* Mono8\n") {
		t.Errorf("pixel-formats does not mark Mono8 as current:\n%s", got)
	}
}

func TestRun_Chunks(t *testing.T) {
	a, out := newTestApp(t)
	got := runCommand(t, a, out, "chunks", "3")
	if n := strings.Count(got, "Framecounter="); n != 3 {
		t.Errorf("chunks printed %d frames, want 3:\n%s", n, got)
	}
	for _, name := range chunkNames {
		if !strings.Contains(got, name+"=") {
			t.Errorf("chunks output misses %s:\n%s", name, got)
		}
	}
}

func TestStopGrabbing(t *testing.T) {
	cam, err := pylon.CreateFirstDevice()
	if err != nil {
		t.Fatal(err)
	}
	if err := cam.Open(); err != nil {
		cam.Release()
		t.Fatal(err)
	}

	var stopErr error
	stopGrabbing(cam, &stopErr)
	if stopErr != nil {
		t.Errorf("stopping an idle camera: %v", stopErr)
	}

	if err := cam.StartGrabbing(pylon.GrabOptions{}); err != nil {
		t.Fatal(err)
	}
	stopGrabbing(cam, &stopErr)
	if stopErr != nil {
		t.Errorf("stopping a grab: %v", stopErr)
	}
	if grabbing, _ := cam.IsGrabbing(); grabbing {
		t.Error("camera still grabbing")
	}

	// A failure is joined to the error already returned.
	first := errors.New("first")
	stopErr = first
	if err := cam.Release(); err != nil {
		t.Fatal(err)
	}
	stopGrabbing(cam, &stopErr)
	if !errors.Is(stopErr, first) || !errors.Is(stopErr, pylon.ErrReleased) {
		t.Errorf("stopGrabbing on a released camera = %v", stopErr)
	}
}

func TestRun_Version(t *testing.T) {
	a, out := newTestApp(t)
	got := runCommand(t, a, out, "version")
	if !strings.Contains(got, "emulation") {
		t.Errorf("version output: %s", got)
	}
}

func TestRun_Usage(t *testing.T) {
	a, _ := newTestApp(t)
	cases := [][]string{
		{"frobnicate"},
		{"features"},
		{"features", "save"},
		{"log"},
	}
	for _, args := range cases {
		if err := a.run(context.Background(), args); !errors.Is(err, errUsage) {
			t.Errorf("run(%v) = %v, want errUsage", args, err)
		}
	}
	if err := a.run(context.Background(), []string{"chunks", "0"}); err == nil {
		t.Error("chunks 0 should fail")
	}
}

func TestRun_UnknownSerial(t *testing.T) {
	a, _ := newTestApp(t)
	a.cfg.Camera.Serial = "9999-9999"
	if err := a.run(context.Background(), []string{"pixel-formats"}); err == nil {
		t.Error("expected an error for an unknown serial number")
	}
}
