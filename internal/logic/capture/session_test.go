package capture

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/cjeanneret/PylonGo/internal/config"
	"github.com/cjeanneret/PylonGo/internal/hw/camera"
	"github.com/cjeanneret/PylonGo/pylon"
)

func TestMain(m *testing.M) {
	err := pylon.Initialize(
		pylon.WithSetting("devices", "1"),
		pylon.WithSetting("frame_rate", "200"),
		pylon.WithSetting("fail_every", "3"),
	)
	if err != nil {
		panic(err)
	}
	code := m.Run()
	pylon.Terminate()
	os.Exit(code)
}

// collector records everything a run hands to its sinks.
type collector struct {
	begins []Begin
	frames []*Frame
	ends   []Stats
	endErr error
	failAt int // Frame returns an error at this index, -1 = never
}

func newCollector() *collector { return &collector{failAt: -1} }

func (c *collector) Begin(b Begin) error { c.begins = append(c.begins, b); return nil }

func (c *collector) Frame(f *Frame) error {
	if f.Index == c.failAt {
		return errors.New("sink full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *collector) End(s Stats, err error) error {
	c.ends = append(c.ends, s)
	c.endErr = err
	return nil
}

func openCamera(t *testing.T) *pylon.InstantCamera {
	t.Helper()
	cam, err := pylon.CreateFirstDevice()
	if err != nil {
		t.Fatalf("CreateFirstDevice: %v", err)
	}
	t.Cleanup(func() { cam.Release() })
	if err := cam.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	nm, err := cam.NodeMap()
	if err != nil {
		t.Fatalf("NodeMap: %v", err)
	}
	reset, err := nm.Command("DeviceReset")
	if err != nil {
		t.Fatalf("DeviceReset: %v", err)
	}
	defer reset.Release()
	if err := reset.Execute(true); err != nil {
		t.Fatalf("DeviceReset: %v", err)
	}
	return cam
}

func newSession(t *testing.T, sinks ...Sink) (*Session, *pylon.InstantCamera) {
	t.Helper()
	cam := openCamera(t)
	s := NewSession(cam, sinks...)
	if err := s.Configure(config.CameraConfig{Width: 64, Height: 48, ExposureUs: 1000}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return s, cam
}

func baseParams() Params {
	return Params{
		Count:           6,
		Strategy:        pylon.OneByOne,
		Timeout:         2 * time.Second,
		TimeoutHandling: pylon.ThrowException,
	}
}

func TestRun_CountedFreeRunning(t *testing.T) {
	col := newCollector()
	s, cam := newSession(t, col)

	stats, err := s.Run(context.Background(), baseParams())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Retrieved != 6 {
		t.Errorf("Retrieved = %d, want 6", stats.Retrieved)
	}
	if stats.Succeeded+stats.Failed != stats.Retrieved {
		t.Errorf("Succeeded %d + Failed %d != Retrieved %d", stats.Succeeded, stats.Failed, stats.Retrieved)
	}
	if stats.Session != s.ID() {
		t.Errorf("stats session = %v, want %v", stats.Session, s.ID())
	}
	if len(col.begins) != 1 || len(col.ends) != 1 || col.endErr != nil {
		t.Fatalf("sink saw begins=%d ends=%d endErr=%v", len(col.begins), len(col.ends), col.endErr)
	}
	if col.begins[0].Serial != "0815-0000" || col.begins[0].Strategy != "OneByOne" {
		t.Errorf("Begin = %+v", col.begins[0])
	}

	var last uint64
	for i, f := range col.frames {
		if f.Index != i || f.Session != s.ID() {
			t.Errorf("frame %d: index %d session %v", i, f.Index, f.Session)
		}
		if i > 0 && f.BlockID <= last {
			t.Errorf("frame %d: block ID %d not after %d", i, f.BlockID, last)
		}
		last = f.BlockID
		if f.Succeeded && (f.Width != 64 || f.Height != 48 || len(f.Data) != 64*48) {
			t.Errorf("frame %d: %dx%d with %d bytes", i, f.Width, f.Height, len(f.Data))
		}
	}

	grabbing, err := cam.IsGrabbing()
	if err != nil || grabbing {
		t.Errorf("IsGrabbing() = %v, %v after run, want false", grabbing, err)
	}
}

func TestRun_FailedGrabsAreFramesNotErrors(t *testing.T) {
	col := newCollector()
	s, _ := newSession(t, col)

	stats, err := s.Run(context.Background(), baseParams())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Failed == 0 {
		t.Fatal("expected failed grabs with fail_every=3")
	}
	for _, f := range col.frames {
		if f.Succeeded {
			continue
		}
		if f.ErrorCode != 0xE1000014 || f.ErrorDescription == "" {
			t.Errorf("failed frame %d: code 0x%X description %q", f.Index, f.ErrorCode, f.ErrorDescription)
		}
		if f.Data != nil {
			t.Errorf("failed frame %d carries %d bytes", f.Index, len(f.Data))
		}
	}
}

func TestRun_SoftwareTrigger(t *testing.T) {
	col := newCollector()
	s, cam := newSession(t, col)
	nm, err := cam.NodeMap()
	if err != nil {
		t.Fatalf("NodeMap: %v", err)
	}
	if err := camera.Arm(nm, camera.SourceSoftware); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	trig, err := camera.NewSoftwareTrigger(nm)
	if err != nil {
		t.Fatalf("NewSoftwareTrigger: %v", err)
	}
	defer trig.Close()

	p := baseParams()
	p.Count = 3
	p.Trigger = trig
	p.TriggerInterval = time.Millisecond
	stats, err := s.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Retrieved != 3 || stats.Timeouts != 0 {
		t.Errorf("stats = %+v, want 3 retrieved without timeouts", stats)
	}
}

func TestRun_ReturnPolicyCountsTimeouts(t *testing.T) {
	s, cam := newSession(t)
	nm, err := cam.NodeMap()
	if err != nil {
		t.Fatalf("NodeMap: %v", err)
	}
	// Armed but never fired: nothing arrives.
	if err := camera.Arm(nm, camera.SourceSoftware); err != nil {
		t.Fatalf("Arm: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	p := baseParams()
	p.Timeout = 50 * time.Millisecond
	p.TimeoutHandling = pylon.Return
	stats, err := s.Run(ctx, p)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run error = %v, want %v", err, context.DeadlineExceeded)
	}
	if stats.Timeouts == 0 || stats.Retrieved != 0 {
		t.Errorf("stats = %+v, want timeouts and nothing retrieved", stats)
	}
}

func TestRun_ThrowPolicyEndsRun(t *testing.T) {
	col := newCollector()
	s, cam := newSession(t, col)
	nm, err := cam.NodeMap()
	if err != nil {
		t.Fatalf("NodeMap: %v", err)
	}
	if err := camera.Arm(nm, camera.SourceSoftware); err != nil {
		t.Fatalf("Arm: %v", err)
	}

	p := baseParams()
	p.Timeout = 50 * time.Millisecond
	_, err = s.Run(context.Background(), p)
	if !errors.Is(err, pylon.ErrTimeout) {
		t.Fatalf("Run error = %v, want %v", err, pylon.ErrTimeout)
	}
	if !errors.Is(col.endErr, pylon.ErrTimeout) {
		t.Errorf("End saw %v, want the timeout", col.endErr)
	}
	if grabbing, _ := cam.IsGrabbing(); grabbing {
		t.Error("camera still grabbing after a failed run")
	}
}

func TestRun_SinkErrorStopsRun(t *testing.T) {
	col := newCollector()
	col.failAt = 1
	s, _ := newSession(t, col)

	stats, err := s.Run(context.Background(), baseParams())
	if err == nil {
		t.Fatal("expected sink error, got nil")
	}
	if stats.Retrieved != 2 || len(col.frames) != 1 {
		t.Errorf("retrieved %d, sink kept %d frames", stats.Retrieved, len(col.frames))
	}
}

func TestRun_BufferSettings(t *testing.T) {
	s, cam := newSession(t)
	p := baseParams()
	p.Count = 2
	p.Strategy = pylon.LatestImages
	p.MaxNumBuffer = 4
	p.OutputQueueSize = 2
	if _, err := s.Run(context.Background(), p); err != nil {
		t.Fatalf("Run: %v", err)
	}
	nm, err := cam.InstantCameraNodeMap()
	if err != nil {
		t.Fatalf("InstantCameraNodeMap: %v", err)
	}
	for name, want := range map[string]int64{"MaxNumBuffer": 4, "OutputQueueSize": 2} {
		param, err := nm.Integer(name)
		if err != nil {
			t.Fatalf("Integer(%s): %v", name, err)
		}
		got, err := param.Value()
		param.Release()
		if err != nil || got != want {
			t.Errorf("%s = %d (%v), want %d", name, got, err, want)
		}
	}
}

func TestConfigure_AppliesCameraSection(t *testing.T) {
	cam := openCamera(t)
	s := NewSession(cam)
	err := s.Configure(config.CameraConfig{
		PixelFormat: "Mono12",
		ExposureUs:  2500,
		Gain:        3,
		Width:       128,
		Height:      96,
		CenterROI:   true,
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	nm, err := cam.NodeMap()
	if err != nil {
		t.Fatalf("NodeMap: %v", err)
	}
	pf, err := nm.Enum("PixelFormat")
	if err != nil {
		t.Fatalf("Enum: %v", err)
	}
	defer pf.Release()
	if v, _ := pf.Value(); v != "Mono12" {
		t.Errorf("PixelFormat = %q, want Mono12", v)
	}
	exp, err := nm.Float("ExposureTime")
	if err != nil {
		t.Fatalf("Float: %v", err)
	}
	defer exp.Release()
	if v, _ := exp.Value(); v != 2500 {
		t.Errorf("ExposureTime = %v, want 2500", v)
	}
	ox, err := nm.Integer("OffsetX")
	if err != nil {
		t.Fatalf("Integer: %v", err)
	}
	defer ox.Release()
	if v, _ := ox.Value(); v == 0 {
		t.Error("OffsetX = 0, want a centered area")
	}
}

func TestConfigure_Errors(t *testing.T) {
	cam := openCamera(t)
	s := NewSession(cam)
	if err := s.Configure(config.CameraConfig{PixelFormat: "RGB48"}); !errors.Is(err, pylon.ErrInvalidArgument) {
		t.Errorf("unknown pixel format error = %v, want %v", err, pylon.ErrInvalidArgument)
	}
	if err := s.Configure(config.CameraConfig{FeaturesFile: "missing.pfs"}); err == nil {
		t.Error("expected error for missing features file, got nil")
	}
}

func TestDirSink_WritesSucceededFrames(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewDirSink(dir)
	if err != nil {
		t.Fatalf("NewDirSink: %v", err)
	}
	s, _ := newSession(t, sink)
	p := baseParams()
	p.Count = 2
	if _, err := s.Run(context.Background(), p); err != nil {
		t.Fatalf("Run: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("%d files written, want 2", len(entries))
	}
	info, err := entries[0].Info()
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 64*48 {
		t.Errorf("frame file size = %d, want %d", info.Size(), 64*48)
	}
}

func TestParamsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Grab.Count = 4
	cfg.Grab.Strategy = "LatestImageOnly"
	cfg.Grab.TimeoutHandling = "Return"
	p, err := ParamsFromConfig(cfg)
	if err != nil {
		t.Fatalf("ParamsFromConfig: %v", err)
	}
	if p.Count != 4 || p.Strategy != pylon.LatestImageOnly || p.TimeoutHandling != pylon.Return {
		t.Errorf("Params = %+v", p)
	}
	if p.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", p.Timeout)
	}

	cfg.Grab.Strategy = "Newest"
	if _, err := ParamsFromConfig(cfg); err == nil {
		t.Error("expected error for unknown strategy, got nil")
	}
}
