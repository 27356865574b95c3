package emu

import (
	"github.com/cjeanneret/PylonGo/internal/native"
)

// Client-side state of the maps that belong to a camera object rather than
// to the device.
type instantCameraState struct {
	maxNumBuffer        int64
	outputQueueSize     int64
	chunkNodeMapsEnable bool
	clearBufferMode     bool
	grabCameraEvents    bool
}

type streamGrabberState struct {
	maxTransferSize int64
}

type eventGrabberState struct {
	numBuffer  int64
	retryCount int64
	timeout    int64
}

type transportLayerState struct {
	heartbeatTimeout int64
	readTimeout      int64
	writeTimeout     int64
}

func defaultInstantCameraState() instantCameraState {
	return instantCameraState{maxNumBuffer: 10, outputQueueSize: 10, chunkNodeMapsEnable: true}
}

func (c *camera) rwUnlessGrabbing() accessMode {
	if c.grab.isGrabbing() {
		return accessRO
	}
	return accessRW
}

func (c *camera) requireOpen(title string) func() {
	return func() {
		if !c.open {
			panic(native.Access("The %s node map is not available. The camera %s is not open.", title, c.dev.serial))
		}
	}
}

// buildNodeMap constructs the map of the given kind. All maps of a camera
// share the device mutex.
func (c *camera) buildNodeMap(kind native.NodeMapKind) *nodeMap {
	switch kind {
	case native.NodeMapDevice:
		return c.deviceFeatures()
	case native.NodeMapTransportLayer:
		return c.transportLayerFeatures()
	case native.NodeMapStreamGrabber:
		return c.streamGrabberFeatures()
	case native.NodeMapEventGrabber:
		return c.eventGrabberFeatures()
	case native.NodeMapInstantCamera:
		return c.instantCameraFeatures()
	}
	panic(native.InvalidArgument("unknown node map kind %d", int(kind)))
}

func (c *camera) deviceFeatures() *nodeMap {
	d := c.dev
	st := &d.st
	m := newNodeMap("Device", &d.mu, c.requireOpen("Device"))
	geometry := c.rwUnlessGrabbing

	width := intNode("Width", &st.width, minWidth, sensorWidth, 1)
	width.maxInt = func() int64 { return sensorWidth - st.offsetX }
	width.access = geometry
	height := intNode("Height", &st.height, minHeight, sensorHeight, 1)
	height.maxInt = func() int64 { return sensorHeight - st.offsetY }
	height.access = geometry
	offsetX := intNode("OffsetX", &st.offsetX, 0, 0, 1)
	offsetX.maxInt = func() int64 { return sensorWidth - st.width }
	offsetX.access = geometry
	offsetY := intNode("OffsetY", &st.offsetY, 0, 0, 1)
	offsetY.maxInt = func() int64 { return sensorHeight - st.height }
	offsetY.access = geometry

	pixelFormat := enumNode("PixelFormat", &st.pixelFormat, pixelFormatNames()...)
	pixelFormat.access = geometry
	// Packed formats need rows that end on a byte boundary.
	pixelFormat.available = func(entry string) bool {
		_, ok := lookupPixelFormat(entry).stride(st.width)
		return ok
	}

	exposureAuto := enumNode("ExposureAuto", &st.exposureAuto, "Off", "Once", "Continuous")
	exposureAuto.setEnum = func(v string) {
		if v == "Once" {
			st.exposureTime = d.autoExposure()
			st.exposureAuto = "Off"
			return
		}
		st.exposureAuto = v
	}
	exposureTime := floatNode("ExposureTime", &st.exposureTime, 10, 10_000_000, "us")
	exposureTime.getFloat = d.exposure
	exposureTime.access = func() accessMode {
		if st.exposureAuto == "Continuous" {
			return accessRO
		}
		return accessRW
	}

	chunkActive := func() bool { return st.chunkModeActive }
	chunkMode := boolNode("ChunkModeActive", &st.chunkModeActive)
	chunkMode.access = geometry
	chunkSelector := enumNode("ChunkSelector", &st.chunkSelector, chunkNames...)
	chunkSelector.persist = false
	chunkSelector.access = func() accessMode {
		if !chunkActive() {
			return accessNA
		}
		return accessRW
	}
	chunkEnable := &node{
		name: "ChunkEnable", typ: native.NodeBoolean, persist: true,
		selector: chunkSelector,
		getBool:  func() bool { return st.chunkEnable[st.chunkSelector] },
		setBool:  func(b bool) { st.chunkEnable[st.chunkSelector] = b },
		access: func() accessMode {
			if !chunkActive() {
				return accessNA
			}
			return c.rwUnlessGrabbing()
		},
	}

	deviceReset := commandNode("DeviceReset", func() bool { d.reset(); return true })
	deviceReset.access = geometry

	m.add(
		readOnlyInt("SensorWidth", constInt(sensorWidth)),
		readOnlyInt("SensorHeight", constInt(sensorHeight)),
		readOnlyInt("WidthMax", func() int64 { return sensorWidth - st.offsetX }),
		readOnlyInt("HeightMax", func() int64 { return sensorHeight - st.offsetY }),
		pixelFormat,
		width, height, offsetX, offsetY,
		readOnlyInt("PayloadSize", d.payloadSize),
		exposureAuto,
		exposureTime,
		floatNode("Gain", &st.gain, 0, 24, "dB"),
		floatNode("BlackLevel", &st.blackLevel, 0, 255, ""),
		floatNode("Gamma", &st.gamma, 0.25, 4, ""),
		boolNode("AcquisitionFrameRateEnable", &st.frameRateEnable),
		floatNode("AcquisitionFrameRate", &st.frameRate, 0.1, 1000, "Hz"),
		readOnlyFloat("ResultingFrameRate", d.resultingFrameRate, "Hz"),
		enumNode("TriggerSelector", &st.triggerSelector, "FrameStart"),
		enumNode("TriggerMode", &st.triggerMode, "Off", "On"),
		enumNode("TriggerSource", &st.triggerSource, "Software", "Line1"),
		enumNode("TriggerActivation", &st.triggerActivation, "RisingEdge", "FallingEdge"),
		commandNode("TriggerSoftware", func() bool { return d.trigger("Software") }),
		enumNode("LineSelector", &st.lineSelector, "Line1"),
		&node{
			name: "LineStatus", typ: native.NodeBoolean,
			access:  func() accessMode { return accessRO },
			getBool: func() bool { return d.line1 },
		},
		enumNode("TestImageSelector", &st.testImage, "Off", "Testimage1", "Testimage2", "Testimage3"),
		chunkMode,
		chunkSelector,
		chunkEnable,
		readOnlyFloat("DeviceTemperature", func() float64 {
			return 38.5 + float64(d.clock()%10_000_000_000)/1e10
		}, "C"),
		commandNode("TimestampLatch", func() bool { st.timestampLatch = int64(d.clock()); return true }),
		withUnit(readOnlyInt("TimestampLatchValue", func() int64 { return st.timestampLatch }), "ns"),
		deviceReset,
	)
	return m
}

func (c *camera) transportLayerFeatures() *nodeMap {
	tl := &c.tl
	m := newNodeMap("TransportLayer", &c.dev.mu, nil)
	m.add(
		withUnit(intNode("HeartbeatTimeout", &tl.heartbeatTimeout, 500, 4_294_967, 1), "ms"),
		withUnit(intNode("ReadTimeout", &tl.readTimeout, 1, 1_000_000, 1), "ms"),
		withUnit(intNode("WriteTimeout", &tl.writeTimeout, 1, 1_000_000, 1), "ms"),
	)
	return m
}

func (c *camera) streamGrabberFeatures() *nodeMap {
	sg := &c.sg
	g := c.grab
	m := newNodeMap("StreamGrabber", &c.dev.mu, c.requireOpen("StreamGrabber"))
	transfer := intNode("MaxTransferSize", &sg.maxTransferSize, 1024, 4_194_304, 1024)
	transfer.access = c.rwUnlessGrabbing
	m.add(
		transfer,
		readOnlyInt("MaxBufferSize", c.dev.payloadSize),
		readOnlyInt("Statistic_Total_Buffer_Count", func() int64 { return g.statistics().total }),
		readOnlyInt("Statistic_Failed_Buffer_Count", func() int64 { return g.statistics().failed }),
		readOnlyInt("Statistic_Buffer_Underrun_Count", func() int64 { return g.statistics().underrun }),
	)
	return m
}

func (c *camera) eventGrabberFeatures() *nodeMap {
	ev := &c.ev
	m := newNodeMap("EventGrabber", &c.dev.mu, c.requireOpen("EventGrabber"))
	m.add(
		intNode("NumBuffer", &ev.numBuffer, 1, 1000, 1),
		intNode("RetryCount", &ev.retryCount, 0, 100, 1),
		withUnit(intNode("Timeout", &ev.timeout, 1, 1_000_000, 1), "ms"),
	)
	return m
}

func (c *camera) instantCameraFeatures() *nodeMap {
	ic := &c.ic
	g := c.grab
	m := newNodeMap("InstantCamera", &c.dev.mu, nil)
	maxNum := intNode("MaxNumBuffer", &ic.maxNumBuffer, 1, 1024, 1)
	maxNum.access = c.rwUnlessGrabbing
	maxNum.setInt = func(v int64) {
		ic.maxNumBuffer = v
		ic.outputQueueSize = min(ic.outputQueueSize, v)
	}
	queue := intNode("OutputQueueSize", &ic.outputQueueSize, 1, 1024, 1)
	queue.maxInt = func() int64 { return ic.maxNumBuffer }
	queue.access = c.rwUnlessGrabbing
	chunkMaps := boolNode("ChunkNodeMapsEnable", &ic.chunkNodeMapsEnable)
	chunkMaps.access = c.rwUnlessGrabbing
	m.add(
		maxNum,
		queue,
		chunkMaps,
		boolNode("ClearBufferModeEnable", &ic.clearBufferMode),
		boolNode("GrabCameraEvents", &ic.grabCameraEvents),
		readOnlyInt("NumQueuedBuffers", func() int64 { return int64(g.counts().free) }),
		readOnlyInt("NumReadyBuffers", func() int64 { return int64(g.counts().ready) }),
	)
	return m
}
