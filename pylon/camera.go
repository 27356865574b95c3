package pylon

import (
	"fmt"
	"maps"
	"runtime"
	"time"

	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/internal/native"
)

// InstantCamera owns one camera object of the SDK. It is not safe for
// concurrent use.
type InstantCamera struct {
	sdk     native.Backend
	h       native.Handle
	life    lifetime
	cleanup runtime.Cleanup
}

type sdkHandle struct {
	sdk native.Backend
	h   native.Handle
}

func newInstantCamera(b native.Backend, h native.Handle) *InstantCamera {
	c := &InstantCamera{sdk: b, h: h}
	c.cleanup = runtime.AddCleanup(c, func(o sdkHandle) {
		debug.Trace("destroying unreleased camera %d", o.h)
		o.sdk.DestroyCamera(o.h)
	}, sdkHandle{b, h})
	return c
}

// Release destroys the camera object, closing the device if it is open.
// Everything borrowed from the camera becomes unusable. A second call
// returns ErrReleased.
func (c *InstantCamera) Release() error {
	if !c.life.release() {
		return ErrReleased
	}
	c.cleanup.Stop()
	c.sdk.DestroyCamera(c.h)
	debug.Call("DestroyCamera", nil)
	return nil
}

func (c *InstantCamera) call(name string, fn func() error) error {
	if err := c.life.alive(); err != nil {
		return err
	}
	err := fn()
	debug.Call(name, err)
	return fromNative(err)
}

// DeviceInfo returns a copy of the description of the camera's device.
func (c *InstantCamera) DeviceInfo() (DeviceInfo, error) {
	var props native.DeviceProperties
	err := c.call("DeviceInfo", func() (err error) {
		props, err = c.sdk.CameraDeviceInfo(c.h)
		return err
	})
	if err != nil {
		return DeviceInfo{}, err
	}
	return DeviceInfo{props: maps.Clone(props)}, nil
}

// Open opens the device. Opening an open camera is an error.
func (c *InstantCamera) Open() error {
	return c.call("Open", func() error { return c.sdk.Open(c.h) })
}

// Close closes the device, stopping acquisition first. Closing a closed
// camera is an error.
func (c *InstantCamera) Close() error {
	return c.call("Close", func() error { return c.sdk.Close(c.h) })
}

// IsOpen queries the SDK; the state is not cached.
func (c *InstantCamera) IsOpen() (bool, error) {
	var open bool
	err := c.call("IsOpen", func() (err error) {
		open, err = c.sdk.IsOpen(c.h)
		return err
	})
	return open, err
}

func (c *InstantCamera) nodeMap(kind native.NodeMapKind) (*NodeMap, error) {
	var h native.Handle
	err := c.call("NodeMap "+kind.String(), func() (err error) {
		h, err = c.sdk.NodeMap(c.h, kind)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &NodeMap{sdk: c.sdk, h: h, owner: c.life.borrow(), name: kind.String()}, nil
}

// NodeMap returns the camera device's features.
func (c *InstantCamera) NodeMap() (*NodeMap, error) { return c.nodeMap(native.NodeMapDevice) }

// TLNodeMap returns the transport layer's features.
func (c *InstantCamera) TLNodeMap() (*NodeMap, error) { return c.nodeMap(native.NodeMapTransportLayer) }

// StreamGrabberNodeMap returns the stream grabber's features.
func (c *InstantCamera) StreamGrabberNodeMap() (*NodeMap, error) {
	return c.nodeMap(native.NodeMapStreamGrabber)
}

// EventGrabberNodeMap returns the event grabber's features.
func (c *InstantCamera) EventGrabberNodeMap() (*NodeMap, error) {
	return c.nodeMap(native.NodeMapEventGrabber)
}

// InstantCameraNodeMap returns the features of the camera object itself,
// such as MaxNumBuffer and OutputQueueSize.
func (c *InstantCamera) InstantCameraNodeMap() (*NodeMap, error) {
	return c.nodeMap(native.NodeMapInstantCamera)
}

// StartGrabbing starts acquisition, opening the camera if needed.
func (c *InstantCamera) StartGrabbing(opts GrabOptions) error {
	return c.call("StartGrabbing", func() error { return c.sdk.StartGrabbing(c.h, opts.native()) })
}

// StopGrabbing stops acquisition. Stopping an idle camera is an error.
func (c *InstantCamera) StopGrabbing() error {
	return c.call("StopGrabbing", func() error { return c.sdk.StopGrabbing(c.h) })
}

// IsGrabbing reports whether acquisition is running. It turns false once the
// last image of a counted acquisition has been retrieved.
func (c *InstantCamera) IsGrabbing() (bool, error) {
	var grabbing bool
	err := c.call("IsGrabbing", func() (err error) {
		grabbing, err = c.sdk.IsGrabbing(c.h)
		return err
	})
	return grabbing, err
}

// RetrieveResult waits up to timeout for the next result and stores it in
// res, invalidating whatever was borrowed from res before. found is false
// when the wait timed out and th is Return. A found result may still hold a
// failed grab; check GrabSucceeded.
func (c *InstantCamera) RetrieveResult(timeout time.Duration, res *GrabResult, th TimeoutHandling) (found bool, err error) {
	if res == nil {
		return false, fmt.Errorf("pylon: RetrieveResult: nil result")
	}
	if err := res.life.alive(); err != nil {
		return false, err
	}
	res.life.renew()
	err = c.call("RetrieveResult", func() (err error) {
		found, err = c.sdk.RetrieveResult(c.h, timeoutMs(timeout), res.h, native.TimeoutHandling(th))
		return err
	})
	return found, err
}

// WaitObject returns the camera's grab-ready signal. It is set while at
// least one result can be retrieved.
func (c *InstantCamera) WaitObject() (*WaitObject, error) {
	var w native.WaitObject
	err := c.call("WaitObject", func() (err error) {
		w, err = c.sdk.WaitObject(c.h)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &WaitObject{w: w, owner: c.life.borrow()}, nil
}
