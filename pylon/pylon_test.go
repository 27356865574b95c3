package pylon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := Initialize(WithSetting("devices", "2"), WithSetting("frame_rate", "200")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	code := m.Run()
	Terminate()
	os.Exit(code)
}

func openFirst(t *testing.T) *InstantCamera {
	t.Helper()
	cam, err := CreateFirstDevice()
	require.NoError(t, err)
	t.Cleanup(func() { cam.Release() })
	require.NoError(t, cam.Open())
	// Devices keep their settings across camera objects.
	nm, err := cam.NodeMap()
	require.NoError(t, err)
	reset, err := nm.Command("DeviceReset")
	require.NoError(t, err)
	defer reset.Release()
	require.NoError(t, reset.Execute(true))
	return cam
}

func newResult(t *testing.T) *GrabResult {
	t.Helper()
	res, err := NewGrabResult()
	require.NoError(t, err)
	t.Cleanup(func() { res.Release() })
	return res
}

// fastROI shrinks the image and exposure so frames arrive quickly.
func fastROI(t *testing.T, cam *InstantCamera) {
	t.Helper()
	nm, err := cam.NodeMap()
	require.NoError(t, err)
	for name, v := range map[string]int64{"Width": 64, "Height": 48} {
		p, err := nm.Integer(name)
		require.NoError(t, err)
		require.NoError(t, p.SetValue(v))
		require.NoError(t, p.Release())
	}
	exp, err := nm.Float("ExposureTime")
	require.NoError(t, err)
	defer exp.Release()
	require.NoError(t, exp.SetValue(1000))
}

func TestDevices_OpenCloseEveryDevice(t *testing.T) {
	infos, err := EnumerateDevices()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	for _, info := range infos {
		t.Run(info.SerialNumber(), func(t *testing.T) {
			cam, err := CreateDevice(info)
			require.NoError(t, err)
			defer cam.Release()
			require.NoError(t, cam.Open())
			require.NoError(t, cam.Close())
			open, err := cam.IsOpen()
			require.NoError(t, err)
			assert.False(t, open)

			got, err := cam.DeviceInfo()
			require.NoError(t, err)
			assert.Equal(t, info.SerialNumber(), got.SerialNumber())
		})
	}
}

func TestDevices_UnknownDevice(t *testing.T) {
	_, err := CreateDevice(NewDeviceInfo(map[string]string{PropertySerialNumber: "nope"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRuntime)
}

func TestDeviceInfo_Properties(t *testing.T) {
	infos, err := EnumerateDevices()
	require.NoError(t, err)
	info := infos[0]
	assert.Equal(t, "Emulation", info.ModelName())
	assert.Contains(t, info.PropertyNames(), PropertyFullName)
	v, err := info.PropertyValue(PropertyVendorName)
	require.NoError(t, err)
	assert.Equal(t, "Basler", v)

	_, err = info.PropertyValue("NoSuchProperty")
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, StandardError, kind)
}

func TestCamera_OpenTwice(t *testing.T) {
	cam := openFirst(t)
	err := cam.Open()
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Contains(t, []Kind{AccessError, RuntimeError}, kind)

	require.NoError(t, cam.Close())
	assert.ErrorIs(t, cam.Close(), ErrRuntime)
}

func TestCamera_NodeMapsAreSeparate(t *testing.T) {
	cam := openFirst(t)
	dev, err := cam.NodeMap()
	require.NoError(t, err)
	tl, err := cam.TLNodeMap()
	require.NoError(t, err)

	_, err = tl.Integer("Width")
	assert.ErrorIs(t, err, ErrAccess)
	hb, err := tl.Integer("HeartbeatTimeout")
	require.NoError(t, err)
	defer hb.Release()
	_, err = dev.Integer("HeartbeatTimeout")
	assert.ErrorIs(t, err, ErrAccess)

	for _, get := range []func() (*NodeMap, error){cam.StreamGrabberNodeMap, cam.EventGrabberNodeMap, cam.InstantCameraNodeMap} {
		_, err := get()
		assert.NoError(t, err)
	}
}

func TestParameters_TypeMismatch(t *testing.T) {
	cam := openFirst(t)
	nm, err := cam.NodeMap()
	require.NoError(t, err)
	_, err = nm.Float("Width")
	assert.ErrorIs(t, err, ErrCast)
}

func TestParameters_IntegerBounds(t *testing.T) {
	cam := openFirst(t)
	nm, err := cam.NodeMap()
	require.NoError(t, err)
	w, err := nm.Integer("Width")
	require.NoError(t, err)
	defer w.Release()
	assert.Equal(t, "Width", w.Name())

	lo, err := w.Min()
	require.NoError(t, err)
	hi, err := w.Max()
	require.NoError(t, err)
	for _, v := range []int64{lo, hi, (lo + hi) / 2} {
		require.NoError(t, w.SetValue(v))
		got, err := w.Value()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	for _, v := range []int64{lo - 1, hi + 1} {
		err := w.SetValue(v)
		require.Error(t, err)
		kind, _ := KindOf(err)
		assert.Contains(t, []Kind{OutOfRangeError, InvalidArgumentError}, kind)
	}
}

func TestParameters_FloatBoundsAndUnits(t *testing.T) {
	cam := openFirst(t)
	nm, err := cam.NodeMap()
	require.NoError(t, err)
	gain, err := nm.Float("Gain")
	require.NoError(t, err)
	defer gain.Release()

	require.NoError(t, gain.SetValue(6.5))
	v, err := gain.Value()
	require.NoError(t, err)
	assert.Equal(t, 6.5, v)
	hi, err := gain.Max()
	require.NoError(t, err)
	assert.ErrorIs(t, gain.SetValue(hi+1), ErrOutOfRange)

	u, ok, err := gain.Unit()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dB", u)

	gamma, err := nm.Float("Gamma")
	require.NoError(t, err)
	defer gamma.Release()
	_, ok, err = gamma.Unit()
	require.NoError(t, err)
	assert.False(t, ok, "Gamma has no unit")

	w, err := nm.Integer("Width")
	require.NoError(t, err)
	defer w.Release()
	_, ok, err = w.Unit()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParameters_EnumSettableValues(t *testing.T) {
	cam := openFirst(t)
	nm, err := cam.NodeMap()
	require.NoError(t, err)
	for _, name := range []string{"PixelFormat", "TriggerMode", "ExposureAuto", "TestImageSelector"} {
		t.Run(name, func(t *testing.T) {
			e, err := nm.Enum(name)
			require.NoError(t, err)
			defer e.Release()
			values, err := e.SettableValues()
			require.NoError(t, err)
			assert.NotContains(t, values, "")
			current, err := e.Value()
			require.NoError(t, err)
			assert.Contains(t, values, current)
		})
	}

	pf, err := nm.Enum("PixelFormat")
	require.NoError(t, err)
	defer pf.Release()
	require.NoError(t, pf.SetValue("Mono12"))
	v, err := pf.Value()
	require.NoError(t, err)
	assert.Equal(t, "Mono12", v)
	assert.ErrorIs(t, pf.SetValue("NoSuchFormat"), ErrInvalidArgument)
}

func TestParameters_Command(t *testing.T) {
	cam := openFirst(t)
	nm, err := cam.NodeMap()
	require.NoError(t, err)
	latch, err := nm.Command("TimestampLatch")
	require.NoError(t, err)
	defer latch.Release()
	require.NoError(t, latch.Execute(true))
	value, err := nm.Integer("TimestampLatchValue")
	require.NoError(t, err)
	defer value.Release()
	ts, err := value.Value()
	require.NoError(t, err)
	assert.Positive(t, ts)
}

func TestParameters_EnumSettableValuesFollowWidth(t *testing.T) {
	cam := openFirst(t)
	nm, err := cam.NodeMap()
	require.NoError(t, err)
	w, err := nm.Integer("Width")
	require.NoError(t, err)
	defer w.Release()
	pf, err := nm.Enum("PixelFormat")
	require.NoError(t, err)
	defer pf.Release()

	// 17 pixels of a packed format do not end on a byte boundary.
	require.NoError(t, w.SetValue(17))
	values, err := pf.SettableValues()
	require.NoError(t, err)
	assert.NotContains(t, values, "Mono10p")
	assert.NotContains(t, values, "Mono12p")
	assert.Contains(t, values, "Mono8")
	err = pf.SetValue("Mono12p")
	assert.ErrorIs(t, err, ErrAccess)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, AccessError, kind)

	require.NoError(t, w.SetValue(16))
	values, err = pf.SettableValues()
	require.NoError(t, err)
	assert.Contains(t, values, "Mono10p")
	assert.Contains(t, values, "Mono12p")
	require.NoError(t, pf.SetValue("Mono12p"))
}

func TestParameters_CommandVerify(t *testing.T) {
	cam := openFirst(t)
	fastROI(t, cam)
	nm, err := cam.NodeMap()
	require.NoError(t, err)
	fire, err := nm.Command("TriggerSoftware")
	require.NoError(t, err)
	defer fire.Release()

	// Nothing waits for a software trigger yet.
	require.NoError(t, fire.Execute(false))
	assert.ErrorIs(t, fire.Execute(true), ErrRuntime)

	mode, err := nm.Enum("TriggerMode")
	require.NoError(t, err)
	defer mode.Release()
	require.NoError(t, mode.SetValue("On"))
	assert.ErrorIs(t, fire.Execute(true), ErrRuntime)

	res := newResult(t)
	require.NoError(t, cam.StartGrabbing(GrabOptions{}.WithCount(1)))
	require.NoError(t, fire.Execute(true))
	ok, err := cam.RetrieveResult(2*time.Second, res, ThrowException)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParameters_BindingsReleaseIndependently(t *testing.T) {
	cam := openFirst(t)
	nm, err := cam.NodeMap()
	require.NoError(t, err)
	a, err := nm.Integer("Width")
	require.NoError(t, err)
	b, err := nm.Integer("Width")
	require.NoError(t, err)
	defer b.Release()

	require.NoError(t, a.Release())
	assert.ErrorIs(t, a.Release(), ErrReleased)
	_, err = a.Value()
	assert.ErrorIs(t, err, ErrReleased)
	v, err := b.Value()
	require.NoError(t, err)
	assert.Positive(t, v)
	assert.Equal(t, "Width", b.Name())
}

func TestPersistence_StringRoundTrip(t *testing.T) {
	cam := openFirst(t)
	nm, err := cam.NodeMap()
	require.NoError(t, err)
	w, err := nm.Integer("Width")
	require.NoError(t, err)
	defer w.Release()
	gain, err := nm.Float("Gain")
	require.NoError(t, err)
	defer gain.Release()
	pf, err := nm.Enum("PixelFormat")
	require.NoError(t, err)
	defer pf.Release()

	require.NoError(t, w.SetValue(640))
	require.NoError(t, gain.SetValue(3.25))
	require.NoError(t, pf.SetValue("Mono12p"))
	saved, err := nm.SaveToString()
	require.NoError(t, err)

	require.NoError(t, w.SetValue(320))
	require.NoError(t, gain.SetValue(0))
	require.NoError(t, pf.SetValue("Mono8"))
	require.NoError(t, nm.LoadFromString(saved, true))

	wv, _ := w.Value()
	gv, _ := gain.Value()
	pv, _ := pf.Value()
	assert.Equal(t, int64(640), wv)
	assert.Equal(t, 3.25, gv)
	assert.Equal(t, "Mono12p", pv)
}

func TestPersistence_File(t *testing.T) {
	cam := openFirst(t)
	nm, err := cam.NodeMap()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "camera.pfs")
	require.NoError(t, nm.Save(path))
	require.NoError(t, nm.Load(path, true))
	assert.ErrorIs(t, nm.Load(filepath.Join(t.TempDir(), "missing.pfs"), true), ErrRuntime)
	assert.ErrorIs(t, nm.LoadFromString("NoSuchFeature\t1\n", true), ErrRuntime)
	assert.NoError(t, nm.LoadFromString("NoSuchFeature\t1\n", false))
}

func TestRetrieve_TimeoutHandling(t *testing.T) {
	cam := openFirst(t)
	res := newResult(t)
	found, err := cam.RetrieveResult(time.Millisecond, res, Return)
	require.NoError(t, err)
	assert.False(t, found)
	_, err = cam.RetrieveResult(time.Millisecond, res, ThrowException)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestGrab_CountedOneByOne(t *testing.T) {
	cam := openFirst(t)
	fastROI(t, cam)
	res := newResult(t)
	require.NoError(t, cam.StartGrabbing(GrabOptions{}.WithStrategy(OneByOne).WithCount(3)))

	var last uint64
	for i := range 3 {
		found, err := cam.RetrieveResult(2*time.Second, res, ThrowException)
		require.NoError(t, err)
		require.True(t, found, "retrieval %d", i)
		ok, err := res.GrabSucceeded()
		require.NoError(t, err)
		assert.True(t, ok)
		id, err := res.BlockID()
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}
	found, err := cam.RetrieveResult(50*time.Millisecond, res, Return)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGrab_StateErrors(t *testing.T) {
	cam := openFirst(t)
	assert.ErrorIs(t, cam.StopGrabbing(), ErrRuntime)
	require.NoError(t, cam.StartGrabbing(GrabOptions{}))
	assert.ErrorIs(t, cam.StartGrabbing(GrabOptions{}), ErrRuntime)
	grabbing, err := cam.IsGrabbing()
	require.NoError(t, err)
	assert.True(t, grabbing)
	require.NoError(t, cam.StopGrabbing())
}

func TestGrabResult_Metadata(t *testing.T) {
	cam := openFirst(t)
	fastROI(t, cam)
	res := newResult(t)
	require.NoError(t, cam.StartGrabbing(GrabOptions{}.WithCount(1)))
	_, err := cam.RetrieveResult(2*time.Second, res, ThrowException)
	require.NoError(t, err)

	w, _ := res.Width()
	h, _ := res.Height()
	assert.Equal(t, uint32(64), w)
	assert.Equal(t, uint32(48), h)
	stride, err := res.Stride()
	require.NoError(t, err)
	assert.Equal(t, uint64(64), stride)
	size, err := res.ImageSize()
	require.NoError(t, err)
	data, err := res.CopyBuffer()
	require.NoError(t, err)
	assert.Len(t, data, int(size))
	code, err := res.ErrorCode()
	require.NoError(t, err)
	assert.Zero(t, code)

	require.NoError(t, res.WithBuffer(func(b []byte) error {
		assert.Len(t, b, int(size))
		return nil
	}))
}

func TestOwnership_BufferViewInvalidatedByRetrieve(t *testing.T) {
	cam := openFirst(t)
	fastROI(t, cam)
	res := newResult(t)
	require.NoError(t, cam.StartGrabbing(GrabOptions{}.WithCount(2)))
	_, err := cam.RetrieveResult(2*time.Second, res, ThrowException)
	require.NoError(t, err)

	view, err := res.Buffer()
	require.NoError(t, err)
	_, err = view.Bytes()
	require.NoError(t, err)
	chunks, err := res.ChunkDataNodeMap()
	require.NoError(t, err)

	_, err = cam.RetrieveResult(2*time.Second, res, ThrowException)
	require.NoError(t, err)
	_, err = view.Bytes()
	assert.ErrorIs(t, err, ErrInvalidated)
	assert.Zero(t, view.Len())
	_, err = chunks.Integer("ChunkTimestamp")
	assert.ErrorIs(t, err, ErrInvalidated)
}

func TestOwnership_ReleasedResult(t *testing.T) {
	cam := openFirst(t)
	fastROI(t, cam)
	res, err := NewGrabResult()
	require.NoError(t, err)
	require.NoError(t, cam.StartGrabbing(GrabOptions{}.WithCount(1)))
	_, err = cam.RetrieveResult(2*time.Second, res, ThrowException)
	require.NoError(t, err)
	view, err := res.Buffer()
	require.NoError(t, err)

	require.NoError(t, res.Release())
	assert.ErrorIs(t, res.Release(), ErrReleased)
	_, err = view.Bytes()
	assert.ErrorIs(t, err, ErrReleased)
	_, err = res.Width()
	assert.ErrorIs(t, err, ErrReleased)
	_, err = cam.RetrieveResult(0, res, Return)
	assert.ErrorIs(t, err, ErrReleased)
}

func TestOwnership_ReleasedCamera(t *testing.T) {
	cam, err := CreateFirstDevice()
	require.NoError(t, err)
	require.NoError(t, cam.Open())
	nm, err := cam.NodeMap()
	require.NoError(t, err)
	w, err := nm.Integer("Width")
	require.NoError(t, err)
	wait, err := cam.WaitObject()
	require.NoError(t, err)

	require.NoError(t, cam.Release())
	assert.ErrorIs(t, cam.Release(), ErrReleased)
	assert.ErrorIs(t, cam.Open(), ErrReleased)
	_, err = nm.Integer("Height")
	assert.ErrorIs(t, err, ErrReleased)
	_, err = w.Value()
	assert.ErrorIs(t, err, ErrReleased)
	_, err = wait.Wait(0)
	assert.ErrorIs(t, err, ErrReleased)

	// The parameter binding is still owned and released on its own.
	require.NoError(t, w.Release())
	assert.ErrorIs(t, w.Release(), ErrReleased)

	// The device is free again.
	again := openFirst(t)
	open, err := again.IsOpen()
	require.NoError(t, err)
	assert.True(t, open)
}

func TestWaitObject_SignalsReadyResults(t *testing.T) {
	cam := openFirst(t)
	fastROI(t, cam)
	w, err := cam.WaitObject()
	require.NoError(t, err)
	ready, err := w.Wait(0)
	require.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, cam.StartGrabbing(GrabOptions{}.WithCount(1)))
	ready, err = w.Wait(2 * time.Second)
	require.NoError(t, err)
	require.True(t, ready)
	// Waiting does not consume the result.
	ready, err = w.Wait(0)
	require.NoError(t, err)
	assert.True(t, ready)

	res := newResult(t)
	found, err := cam.RetrieveResult(0, res, ThrowException)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestResults_Iterator(t *testing.T) {
	cam := openFirst(t)
	fastROI(t, cam)
	require.NoError(t, cam.StartGrabbing(GrabOptions{}.WithCount(4)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n := 0
	for res, err := range cam.Results(ctx) {
		require.NoError(t, err)
		ok, err := res.GrabSucceeded()
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, res.Release())
		n++
	}
	assert.Equal(t, 4, n)
}

func TestResults_ContextEnds(t *testing.T) {
	cam := openFirst(t)
	nm, err := cam.NodeMap()
	require.NoError(t, err)
	mode, err := nm.Enum("TriggerMode")
	require.NoError(t, err)
	defer mode.Release()
	require.NoError(t, mode.SetValue("On"))
	require.NoError(t, cam.StartGrabbing(GrabOptions{}))
	defer cam.StopGrabbing()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	var last error
	for res, err := range cam.Results(ctx) {
		if res != nil {
			res.Release()
		}
		last = err
	}
	assert.True(t, errors.Is(last, context.DeadlineExceeded))
}

func TestGrab_StrideUnavailable(t *testing.T) {
	cam := openFirst(t)
	fastROI(t, cam)
	nm, err := cam.NodeMap()
	require.NoError(t, err)
	pf, err := nm.Enum("PixelFormat")
	require.NoError(t, err)
	defer pf.Release()
	require.NoError(t, pf.SetValue("Mono10p"))
	w, err := nm.Integer("Width")
	require.NoError(t, err)
	defer w.Release()
	require.NoError(t, w.SetValue(33))

	res := newResult(t)
	require.NoError(t, cam.StartGrabbing(GrabOptions{}.WithCount(1)))
	_, err = cam.RetrieveResult(2*time.Second, res, ThrowException)
	require.NoError(t, err)
	_, err = res.Stride()
	assert.ErrorIs(t, err, ErrLogical)
}
