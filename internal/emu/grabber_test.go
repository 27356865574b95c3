package emu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/PylonGo/internal/native"
)

const generous = 2000 // ms

func fastBackend(t *testing.T) *Backend {
	t.Helper()
	return newTestBackend(t, Config{Devices: 1, FrameRate: 200})
}

func smallROI(t *testing.T, b *Backend, cam native.Handle) {
	t.Helper()
	require.NoError(t, b.SetIntegerValue(param(t, b, cam, native.NodeMapDevice, "Width", native.NodeInteger), 64))
	require.NoError(t, b.SetIntegerValue(param(t, b, cam, native.NodeMapDevice, "Height", native.NodeInteger), 48))
	require.NoError(t, b.SetFloatValue(param(t, b, cam, native.NodeMapDevice, "ExposureTime", native.NodeFloat), 1000))
}

func newResultHandle(t *testing.T, b *Backend) native.Handle {
	t.Helper()
	r, err := b.NewGrabResult()
	require.NoError(t, err)
	t.Cleanup(func() { b.DestroyGrabResult(r) })
	return r
}

func uintField(t *testing.T, b *Backend, r native.Handle, f native.ResultField) uint64 {
	t.Helper()
	v, err := b.GrabResultUint(r, f)
	require.NoError(t, err)
	return v
}

func TestGrab_CountedOneByOne(t *testing.T) {
	b := fastBackend(t)
	cam := openCamera(t, b)
	smallROI(t, b, cam)
	res := newResultHandle(t, b)

	require.NoError(t, b.StartGrabbing(cam, native.StartOptions{Count: 3, HasCount: true}))
	var last uint64
	for i := range 3 {
		ok, err := b.RetrieveResult(cam, generous, res, native.TimeoutHandlingThrowException)
		require.NoError(t, err)
		require.True(t, ok, "retrieval %d", i)
		succeeded, err := b.GrabSucceeded(res)
		require.NoError(t, err)
		assert.True(t, succeeded)
		id := uintField(t, b, res, native.FieldBlockID)
		assert.Greater(t, id, last)
		last = id
		assert.Equal(t, uint64(64), uintField(t, b, res, native.FieldWidth))
		assert.Equal(t, uint64(48), uintField(t, b, res, native.FieldHeight))
	}

	grabbing, err := b.IsGrabbing(cam)
	require.NoError(t, err)
	assert.False(t, grabbing)

	ok, err := b.RetrieveResult(cam, 50, res, native.TimeoutHandlingReturn)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGrab_StartStopErrors(t *testing.T) {
	b := fastBackend(t)
	cam := openCamera(t, b)
	requirePrefix(t, b.StopGrabbing(cam), native.PrefixRuntime)
	require.NoError(t, b.StartGrabbing(cam, native.StartOptions{}))
	requirePrefix(t, b.StartGrabbing(cam, native.StartOptions{}), native.PrefixRuntime)
	require.NoError(t, b.StopGrabbing(cam))
	requirePrefix(t, b.StartGrabbing(cam, native.StartOptions{Count: 0, HasCount: true}), native.PrefixInvalidArgument)
}

func TestGrab_StartOpensCamera(t *testing.T) {
	b := fastBackend(t)
	cam, err := b.CreateFirstDevice()
	require.NoError(t, err)
	defer b.DestroyCamera(cam)
	require.NoError(t, b.StartGrabbing(cam, native.StartOptions{}))
	open, err := b.IsOpen(cam)
	require.NoError(t, err)
	assert.True(t, open)

	// Close while grabbing stops grabbing first.
	require.NoError(t, b.Close(cam))
	grabbing, err := b.IsGrabbing(cam)
	require.NoError(t, err)
	assert.False(t, grabbing)
}

func TestRetrieve_TimeoutHandling(t *testing.T) {
	b := fastBackend(t)
	cam := openCamera(t, b)
	res := newResultHandle(t, b)

	ok, err := b.RetrieveResult(cam, 1, res, native.TimeoutHandlingReturn)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = b.RetrieveResult(cam, 1, res, native.TimeoutHandlingThrowException)
	requirePrefix(t, err, native.PrefixTimeout)

	// Triggered acquisition without triggers never produces a frame.
	require.NoError(t, b.SetEnumValue(param(t, b, cam, native.NodeMapDevice, "TriggerMode", native.NodeEnumeration), "On"))
	require.NoError(t, b.StartGrabbing(cam, native.StartOptions{}))
	ok, err = b.RetrieveResult(cam, 20, res, native.TimeoutHandlingReturn)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = b.RetrieveResult(cam, 20, res, native.TimeoutHandlingThrowException)
	requirePrefix(t, err, native.PrefixTimeout)
}

func TestGrab_EmptyResultAccess(t *testing.T) {
	b := fastBackend(t)
	res := newResultHandle(t, b)
	_, err := b.GrabSucceeded(res)
	requirePrefix(t, err, native.PrefixRuntime)
	_, err = b.GrabBuffer(res)
	requirePrefix(t, err, native.PrefixRuntime)
}

func TestGrab_SoftwareTrigger(t *testing.T) {
	b := fastBackend(t)
	cam := openCamera(t, b)
	smallROI(t, b, cam)
	res := newResultHandle(t, b)
	require.NoError(t, b.SetEnumValue(param(t, b, cam, native.NodeMapDevice, "TriggerMode", native.NodeEnumeration), "On"))
	fire := param(t, b, cam, native.NodeMapDevice, "TriggerSoftware", native.NodeCommand)

	require.NoError(t, b.StartGrabbing(cam, native.StartOptions{Count: 2, HasCount: true}))
	for range 2 {
		require.NoError(t, b.ExecuteCommand(fire, true))
		ok, err := b.RetrieveResult(cam, generous, res, native.TimeoutHandlingThrowException)
		require.NoError(t, err)
		require.True(t, ok)
	}
	grabbing, err := b.IsGrabbing(cam)
	require.NoError(t, err)
	assert.False(t, grabbing)
}

func TestGrab_LineTrigger(t *testing.T) {
	b := fastBackend(t)
	cam := openCamera(t, b)
	smallROI(t, b, cam)
	res := newResultHandle(t, b)
	require.NoError(t, b.SetEnumValue(param(t, b, cam, native.NodeMapDevice, "TriggerMode", native.NodeEnumeration), "On"))
	require.NoError(t, b.SetEnumValue(param(t, b, cam, native.NodeMapDevice, "TriggerSource", native.NodeEnumeration), "Line1"))
	require.NoError(t, b.StartGrabbing(cam, native.StartOptions{}))
	defer b.StopGrabbing(cam)

	// A falling edge alone does nothing.
	require.NoError(t, DriveLine("0815-0000", "Line1", false))
	ok, err := b.RetrieveResult(cam, 100, res, native.TimeoutHandlingReturn)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, DriveLine("0815-0000", "Line1", true))
	ok, err = b.RetrieveResult(cam, generous, res, native.TimeoutHandlingReturn)
	require.NoError(t, err)
	assert.True(t, ok)

	err = DriveLine("0815-0000", "Line9", true)
	requirePrefix(t, err, native.PrefixInvalidArgument)
	assert.Error(t, DriveLine("9999-0000", "Line1", true))
}

func TestGrab_LatestImageOnly(t *testing.T) {
	b := fastBackend(t)
	cam := openCamera(t, b)
	smallROI(t, b, cam)
	res := newResultHandle(t, b)
	require.NoError(t, b.StartGrabbing(cam, native.StartOptions{Strategy: native.GrabStrategyLatestImageOnly, HasStrategy: true}))
	defer b.StopGrabbing(cam)

	time.Sleep(100 * time.Millisecond)
	ok, err := b.RetrieveResult(cam, generous, res, native.TimeoutHandlingThrowException)
	require.NoError(t, err)
	require.True(t, ok)
	first := uintField(t, b, res, native.FieldBlockID)
	assert.Greater(t, first, uint64(1), "older frames must have been replaced")
	counts := native.Resolve[*camera](b.tbl, cam, "camera").grab.counts()
	assert.LessOrEqual(t, counts.ready, 1)
}

func TestGrab_FailedFrames(t *testing.T) {
	b := newTestBackend(t, Config{Devices: 1, FrameRate: 200, FailEvery: 2})
	cam := openCamera(t, b)
	smallROI(t, b, cam)
	res := newResultHandle(t, b)
	require.NoError(t, b.StartGrabbing(cam, native.StartOptions{Count: 2, HasCount: true}))

	var outcomes []bool
	for range 2 {
		ok, err := b.RetrieveResult(cam, generous, res, native.TimeoutHandlingThrowException)
		require.NoError(t, err)
		require.True(t, ok)
		succeeded, err := b.GrabSucceeded(res)
		require.NoError(t, err)
		outcomes = append(outcomes, succeeded)
		if !succeeded {
			assert.Equal(t, uint64(errorCodeIncomplete), uintField(t, b, res, native.FieldErrorCode))
			desc, err := b.GrabErrorDescription(res)
			require.NoError(t, err)
			assert.NotEmpty(t, desc)
		}
	}
	assert.Equal(t, []bool{true, false}, outcomes)

	sg, err := b.NodeMap(cam, native.NodeMapStreamGrabber)
	require.NoError(t, err)
	failed, err := b.Parameter(sg, "Statistic_Failed_Buffer_Count", native.NodeInteger)
	require.NoError(t, err)
	defer b.DestroyParameter(failed)
	n, err := b.IntegerValue(failed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGrab_StrideUnavailableForPackedOddWidth(t *testing.T) {
	b := fastBackend(t)
	cam := openCamera(t, b)
	smallROI(t, b, cam)
	require.NoError(t, b.SetEnumValue(param(t, b, cam, native.NodeMapDevice, "PixelFormat", native.NodeEnumeration), "Mono12p"))
	require.NoError(t, b.SetIntegerValue(param(t, b, cam, native.NodeMapDevice, "Width", native.NodeInteger), 17))
	res := newResultHandle(t, b)
	require.NoError(t, b.StartGrabbing(cam, native.StartOptions{Count: 1, HasCount: true}))
	ok, err := b.RetrieveResult(cam, generous, res, native.TimeoutHandlingThrowException)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = b.GrabStride(res)
	requirePrefix(t, err, native.PrefixLogicalError)
	buf, err := b.GrabBuffer(res)
	require.NoError(t, err)
	assert.Len(t, buf, (17*48*12+7)/8)
}

func TestGrab_GeometryLockedWhileGrabbing(t *testing.T) {
	b := fastBackend(t)
	cam := openCamera(t, b)
	width := param(t, b, cam, native.NodeMapDevice, "Width", native.NodeInteger)
	require.NoError(t, b.StartGrabbing(cam, native.StartOptions{}))
	requirePrefix(t, b.SetIntegerValue(width, 320), native.PrefixAccess)
	require.NoError(t, b.StopGrabbing(cam))
	require.NoError(t, b.SetIntegerValue(width, 320))
}

func TestGrab_ChunkData(t *testing.T) {
	b := fastBackend(t)
	cam := openCamera(t, b)
	smallROI(t, b, cam)
	require.NoError(t, b.SetBooleanValue(param(t, b, cam, native.NodeMapDevice, "ChunkModeActive", native.NodeBoolean), true))
	sel := param(t, b, cam, native.NodeMapDevice, "ChunkSelector", native.NodeEnumeration)
	enable := param(t, b, cam, native.NodeMapDevice, "ChunkEnable", native.NodeBoolean)
	for _, name := range []string{"Framecounter", "ExposureTime", "PayloadCRC16"} {
		require.NoError(t, b.SetEnumValue(sel, name))
		require.NoError(t, b.SetBooleanValue(enable, true))
	}

	res := newResultHandle(t, b)
	require.NoError(t, b.StartGrabbing(cam, native.StartOptions{Count: 1, HasCount: true}))
	ok, err := b.RetrieveResult(cam, generous, res, native.TimeoutHandlingThrowException)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, uint64(payloadTypeChunkData), uintField(t, b, res, native.FieldPayloadType))
	imageSize := uintField(t, b, res, native.FieldImageSize)
	assert.Equal(t, imageSize+uint64(chunkOverhead([]string{"a", "b", "c"})), uintField(t, b, res, native.FieldPayloadSize))

	nm, err := b.ChunkDataNodeMap(res)
	require.NoError(t, err)
	fc, err := b.Parameter(nm, "ChunkFramecounter", native.NodeInteger)
	require.NoError(t, err)
	defer b.DestroyParameter(fc)
	v, err := b.IntegerValue(fc)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	exp, err := b.Parameter(nm, "ChunkExposureTime", native.NodeFloat)
	require.NoError(t, err)
	defer b.DestroyParameter(exp)
	e, err := b.FloatValue(exp)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, e)

	crcParam, err := b.Parameter(nm, "ChunkPayloadCRC16", native.NodeInteger)
	require.NoError(t, err)
	defer b.DestroyParameter(crcParam)
	crc, err := b.IntegerValue(crcParam)
	require.NoError(t, err)
	buf, err := b.GrabBuffer(res)
	require.NoError(t, err)
	assert.Equal(t, int64(crc16(buf)), crc)

	// Timestamp was not enabled.
	_, err = b.Parameter(nm, "ChunkTimestamp", native.NodeInteger)
	requirePrefix(t, err, native.PrefixAccess)
}

func TestGrab_WaitObjectTracksOutputQueue(t *testing.T) {
	b := fastBackend(t)
	cam := openCamera(t, b)
	smallROI(t, b, cam)
	w, err := b.WaitObject(cam)
	require.NoError(t, err)
	res := newResultHandle(t, b)

	ready, err := w.Wait(0)
	require.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, b.StartGrabbing(cam, native.StartOptions{Count: 1, HasCount: true}))
	ready, err = w.Wait(generous * time.Millisecond)
	require.NoError(t, err)
	require.True(t, ready)

	ok, err := b.RetrieveResult(cam, 0, res, native.TimeoutHandlingThrowException)
	require.NoError(t, err)
	assert.True(t, ok)
	ready, err = w.Wait(0)
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestGrab_BufferReturnedOnReuse(t *testing.T) {
	b := fastBackend(t)
	cam := openCamera(t, b)
	smallROI(t, b, cam)
	require.NoError(t, b.SetIntegerValue(param(t, b, cam, native.NodeMapInstantCamera, "MaxNumBuffer", native.NodeInteger), 2))
	res := newResultHandle(t, b)
	require.NoError(t, b.StartGrabbing(cam, native.StartOptions{Count: 6, HasCount: true}))
	// With two buffers and one result slot reused each time, the pool never
	// runs dry for long.
	for range 6 {
		ok, err := b.RetrieveResult(cam, generous, res, native.TimeoutHandlingReturn)
		require.NoError(t, err)
		require.True(t, ok)
	}
}
