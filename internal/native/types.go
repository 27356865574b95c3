package native

import "time"

// Handle is an opaque reference to an object living on the SDK side of the
// boundary. The zero value never refers to a live object.
type Handle uintptr

// InvalidHandle is returned together with an error by constructors.
const InvalidHandle Handle = 0

// Infinite is the timeout value meaning "wait forever" in milliseconds.
const Infinite uint32 = 0xFFFFFFFF

// NodeMapKind selects one of the parameter trees reachable from a camera.
type NodeMapKind int

const (
	NodeMapDevice NodeMapKind = iota
	NodeMapTransportLayer
	NodeMapStreamGrabber
	NodeMapEventGrabber
	NodeMapInstantCamera
)

func (k NodeMapKind) String() string {
	switch k {
	case NodeMapDevice:
		return "device"
	case NodeMapTransportLayer:
		return "transport layer"
	case NodeMapStreamGrabber:
		return "stream grabber"
	case NodeMapEventGrabber:
		return "event grabber"
	case NodeMapInstantCamera:
		return "instant camera"
	}
	return "unknown"
}

// NodeType is the interface type a parameter is resolved as.
type NodeType int

const (
	NodeBoolean NodeType = iota
	NodeInteger
	NodeFloat
	NodeEnumeration
	NodeCommand
)

func (t NodeType) String() string {
	switch t {
	case NodeBoolean:
		return "IBoolean"
	case NodeInteger:
		return "IInteger"
	case NodeFloat:
		return "IFloat"
	case NodeEnumeration:
		return "IEnumeration"
	case NodeCommand:
		return "ICommand"
	}
	return "INode"
}

// GrabStrategy mirrors the SDK's EGrabStrategy values.
type GrabStrategy uint32

const (
	GrabStrategyOneByOne GrabStrategy = iota
	GrabStrategyLatestImageOnly
	GrabStrategyLatestImages
	GrabStrategyUpcomingImage
)

// TimeoutHandling mirrors the SDK's ETimeoutHandling values.
type TimeoutHandling uint32

const (
	TimeoutHandlingReturn TimeoutHandling = iota
	TimeoutHandlingThrowException
)

// StartOptions selects one of the four StartGrabbing overloads.
type StartOptions struct {
	Count       uint64
	HasCount    bool
	Strategy    GrabStrategy
	HasStrategy bool
}

// Version is the SDK version quadruple.
type Version struct {
	Major, Minor, Subminor, Build uint32
}

// DeviceProperties is a detached copy of a device description.
type DeviceProperties map[string]string

// ResultField names an unsigned integer attribute of a grab result.
type ResultField int

const (
	FieldPayloadType ResultField = iota
	FieldPixelType
	FieldWidth
	FieldHeight
	FieldOffsetX
	FieldOffsetY
	FieldPaddingX
	FieldPaddingY
	FieldPayloadSize
	FieldBufferSize
	FieldImageSize
	FieldBlockID
	FieldTimeStamp
	FieldErrorCode
)

// WaitObject is a waitable signal that is set while results are ready.
type WaitObject interface {
	Wait(timeout time.Duration) (bool, error)
}

// FdWaitObject is a WaitObject backed by a pollable file descriptor.
type FdWaitObject interface {
	WaitObject
	Fd() int
}

// HandleWaitObject is a WaitObject backed by an OS event handle.
type HandleWaitObject interface {
	WaitObject
	Handle() uintptr
}
