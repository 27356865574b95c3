package emu

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cjeanneret/PylonGo/internal/native"
)

const (
	sensorWidth  = 1024
	sensorHeight = 1040
	minWidth     = 16
	minHeight    = 16
)

// deviceState is the feature state held by the emulated camera itself.
// It survives camera objects being destroyed and recreated, like the
// state of a powered device.
type deviceState struct {
	width, height     int64
	offsetX, offsetY  int64
	pixelFormat       string
	exposureAuto      string
	exposureTime      float64
	gain              float64
	blackLevel        float64
	gamma             float64
	frameRateEnable   bool
	frameRate         float64
	triggerSelector   string
	triggerMode       string
	triggerSource     string
	triggerActivation string
	lineSelector      string
	testImage         string
	chunkModeActive   bool
	chunkSelector     string
	chunkEnable       map[string]bool
	timestampLatch    int64
}

func defaultDeviceState() deviceState {
	return deviceState{
		width: sensorWidth, height: sensorHeight,
		pixelFormat:       "Mono8",
		exposureAuto:      "Off",
		exposureTime:      10000,
		gamma:             1,
		frameRate:         30,
		triggerSelector:   "FrameStart",
		triggerMode:       "Off",
		triggerSource:     "Software",
		triggerActivation: "RisingEdge",
		lineSelector:      "Line1",
		testImage:         "Off",
		chunkSelector:     "Timestamp",
		chunkEnable:       make(map[string]bool),
	}
}

// device is one emulated physical camera.
type device struct {
	props  native.DeviceProperties
	serial string
	epoch  time.Time
	// sensorRate caps the frame rate, in Hz.
	sensorRate float64
	failEvery  uint64

	mu       sync.Mutex
	st       deviceState
	openedBy *camera
	line1    bool
}

func newDevice(index int, cfg Config) *device {
	serial := fmt.Sprintf("0815-%04d", index)
	d := &device{
		serial: serial,
		props: native.DeviceProperties{
			"VendorName":      "Basler",
			"ModelName":       "Emulation",
			"DeviceClass":     "BaslerCamEmu",
			"SerialNumber":    serial,
			"FullName":        fmt.Sprintf("Emulation (%s)", serial),
			"FriendlyName":    fmt.Sprintf("Basler Emulation (%s)", serial),
			"UserDefinedName": "",
			"DeviceVersion":   sdkVersionString,
			"DeviceFactory":   "Pylon::CameraEmulatorTLFactory",
		},
		epoch:      time.Now(),
		sensorRate: cfg.FrameRate,
		failEvery:  cfg.FailEvery,
		st:         defaultDeviceState(),
	}
	return d
}

// matches reports whether every property in filter equals ours.
func (d *device) matches(filter native.DeviceProperties) bool {
	for k, v := range filter {
		if d.props[k] != v {
			return false
		}
	}
	return true
}

func (d *device) clock() uint64 { return uint64(time.Since(d.epoch).Nanoseconds()) }

// grabbing reports whether the owning camera is acquiring. Caller holds d.mu.
func (d *device) grabbing() bool {
	return d.openedBy != nil && d.openedBy.grab.isGrabbing()
}

func (d *device) imageSize() int64 {
	return lookupPixelFormat(d.st.pixelFormat).imageSize(d.st.width, d.st.height)
}

func (d *device) enabledChunks() []string {
	if !d.st.chunkModeActive {
		return nil
	}
	var out []string
	for _, name := range chunkNames {
		if d.st.chunkEnable[name] {
			out = append(out, name)
		}
	}
	return out
}

func (d *device) payloadSize() int64 {
	return d.imageSize() + chunkOverhead(d.enabledChunks())
}

// framePeriod is the time between two free-running frames.
func (d *device) framePeriod() time.Duration {
	rate := d.resultingFrameRate()
	return time.Duration(float64(time.Second) / rate)
}

func (d *device) resultingFrameRate() float64 {
	rate := d.sensorRate
	if rate <= 0 {
		rate = 30
	}
	if exp := d.exposure(); exp > 0 {
		rate = math.Min(rate, 1e6/exp)
	}
	if d.st.frameRateEnable {
		rate = math.Min(rate, d.st.frameRate)
	}
	return rate
}

// exposure is the effective exposure time in microseconds.
func (d *device) exposure() float64 {
	if d.st.exposureAuto == "Continuous" {
		return d.autoExposure()
	}
	return d.st.exposureTime
}

func (d *device) autoExposure() float64 {
	return math.Max(10, 10000/math.Pow(10, d.st.gain/20))
}

// snapshot captures the state a frame is rendered from. Caller holds d.mu.
func (d *device) snapshot() frameParams {
	return frameParams{
		width: d.st.width, height: d.st.height,
		offsetX: d.st.offsetX, offsetY: d.st.offsetY,
		format:     lookupPixelFormat(d.st.pixelFormat),
		exposureUs: d.exposure(),
		gainDB:     d.st.gain,
		blackLevel: d.st.blackLevel,
		gamma:      d.st.gamma,
		testImage:  d.st.testImage,
		chunks:     d.enabledChunks(),
	}
}

// trigger forwards a trigger event from source to the acquiring camera and
// reports whether a grab session accepted it. Caller holds d.mu.
func (d *device) trigger(source string) bool {
	if d.st.triggerMode != "On" || d.st.triggerSource != source || d.openedBy == nil {
		return false
	}
	return d.openedBy.grab.trigger()
}

// driveLine sets the level of an input line and fires a trigger on the
// configured edge.
func (d *device) driveLine(line string, high bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if line != "Line1" {
		panic(native.InvalidArgument("Line '%s' does not exist on device %s", line, d.serial))
	}
	prev := d.line1
	d.line1 = high
	rising := !prev && high
	falling := prev && !high
	if (rising && d.st.triggerActivation == "RisingEdge") || (falling && d.st.triggerActivation == "FallingEdge") {
		d.trigger(line)
	}
}

func (d *device) reset() {
	d.st = defaultDeviceState()
}
