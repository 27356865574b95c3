package emu

import (
	"github.com/cjeanneret/PylonGo/internal/native"
)

// camera is the emulated instant camera object bound to one device.
type camera struct {
	dev  *device
	open bool

	ic instantCameraState
	sg streamGrabberState
	ev eventGrabberState
	tl transportLayerState

	maps map[native.NodeMapKind]native.Handle
	grab *grabber
}

func newCamera(d *device) (*camera, error) {
	w, err := newWaitObject()
	if err != nil {
		return nil, err
	}
	c := &camera{
		dev:  d,
		ic:   defaultInstantCameraState(),
		sg:   streamGrabberState{maxTransferSize: 262144},
		ev:   eventGrabberState{numBuffer: 20, retryCount: 2, timeout: 3000},
		tl:   transportLayerState{heartbeatTimeout: 3000, readTimeout: 500, writeTimeout: 500},
		maps: make(map[native.NodeMapKind]native.Handle),
	}
	c.grab = &grabber{cam: c, wait: w}
	return c, nil
}

func (c *camera) isOpen() bool {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	return c.open
}

func (c *camera) openDevice() {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.openLocked()
}

func (c *camera) openLocked() {
	d := c.dev
	if c.open {
		panic(native.Runtime("The camera %s is already open.", d.serial))
	}
	if d.openedBy != nil {
		panic(native.Access("The device %s is controlled by another application. Err: An attempt was made to access an address location which is currently/momentary not accessible. (0xE1018006)", d.serial))
	}
	c.open = true
	d.openedBy = c
	c.grab.resetStatistics()
}

// closeDevice stops grabbing if needed, then releases the device.
func (c *camera) closeDevice() {
	c.dev.mu.Lock()
	if !c.open {
		c.dev.mu.Unlock()
		panic(native.Runtime("The camera %s is not open.", c.dev.serial))
	}
	c.dev.mu.Unlock()

	if c.grab.isGrabbing() {
		c.grab.stop()
	}

	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.open = false
	if c.dev.openedBy == c {
		c.dev.openedBy = nil
	}
}

func (c *camera) startGrabbing(opts native.StartOptions) {
	d := c.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if !c.open {
		c.openLocked()
	}
	c.grab.start(sessionConfig{
		opts:       opts,
		bufferSize: d.payloadSize(),
		numBuffers: c.ic.maxNumBuffer,
		outputCap:  c.ic.outputQueueSize,
		failEvery:  d.failEvery,
		clear:      c.ic.clearBufferMode,
		chunkMaps:  c.ic.chunkNodeMapsEnable,
	})
}

func (c *camera) destroy() {
	if c.isOpen() {
		_ = native.Try(c.closeDevice)
	}
	_ = c.grab.wait.close()
}
