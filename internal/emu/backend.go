// Package emu is a camera SDK emulation that implements the native backend
// surface in Go. Device features, the acquisition engine and the grab-ready
// signal behave like the vendor's camera emulator, and every call reports
// failures through the same encoded exception text as the real SDK.
package emu

import (
	"sync"

	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/internal/native"
)

// BackendName is the registry name of the emulated backend.
const BackendName = "emulation"

const sdkVersionString = "7.5.0.15658"

var sdkVersion = native.Version{Major: 7, Minor: 5, Subminor: 0, Build: 15658}

func init() {
	native.Register(BackendName, func(s native.Settings) (native.Backend, error) {
		cfg, err := ConfigFromSettings(s)
		if err != nil {
			return nil, err
		}
		return New(cfg), nil
	})
}

var _ native.Backend = (*Backend)(nil)

// Backend is the emulated SDK.
type Backend struct {
	cfg Config
	tbl *native.Table

	mu        sync.Mutex
	initCount int
	devices   []*device
}

// New creates an emulated SDK with cfg.Devices devices.
func New(cfg Config) *Backend {
	b := &Backend{cfg: cfg, tbl: native.NewTable()}
	for i := range cfg.Devices {
		b.devices = append(b.devices, newDevice(i, cfg))
	}
	wire(b.devices)
	debug.Trace("emu: %d emulated device(s), fail_every=%d, frame_rate=%.1f", cfg.Devices, cfg.FailEvery, cfg.FrameRate)
	return b
}

// LiveHandles returns the number of objects not yet destroyed.
func (b *Backend) LiveHandles() int { return b.tbl.Count() }

func (b *Backend) Name() string { return BackendName }

func (b *Backend) Version() native.Version { return sdkVersion }

func (b *Backend) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initCount++
	return nil
}

func (b *Backend) Terminate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initCount > 0 {
		b.initCount--
	}
}

func (b *Backend) requireInitialized() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initCount == 0 {
		panic(native.Runtime("The pylon runtime is not initialized. Call PylonInitialize first."))
	}
}

func (b *Backend) camera(h native.Handle) *camera {
	return native.Resolve[*camera](b.tbl, h, "camera")
}

func (b *Backend) nodeMap(h native.Handle) *nodeMap {
	return native.Resolve[*nodeMap](b.tbl, h, "node map")
}

func (b *Backend) parameter(h native.Handle) *parameter {
	return native.Resolve[*parameter](b.tbl, h, "parameter")
}

func (b *Backend) result(h native.Handle) *result {
	return native.Resolve[*result](b.tbl, h, "grab result")
}

// Transport-layer factory.

func (b *Backend) EnumerateDevices() (list []native.DeviceProperties, err error) {
	err = native.Try(func() {
		b.requireInitialized()
		for _, d := range b.devices {
			list = append(list, clone(d.props))
		}
	})
	return list, err
}

func (b *Backend) CreateFirstDevice() (h native.Handle, err error) {
	return b.CreateDevice(nil)
}

func (b *Backend) CreateDevice(props native.DeviceProperties) (h native.Handle, err error) {
	err = native.Try(func() {
		b.requireInitialized()
		for _, d := range b.devices {
			if !d.matches(props) {
				continue
			}
			c, cerr := newCamera(d)
			if cerr != nil {
				panic(native.Runtime("Cannot create the grab-ready signal: %v", cerr))
			}
			h = b.tbl.Register(c)
			debug.Trace("emu: camera %#x attached to %s", uintptr(h), d.serial)
			return
		}
		panic(native.Runtime("No device is available or no device contains the provided device info properties."))
	})
	return h, err
}

func clone(p native.DeviceProperties) native.DeviceProperties {
	out := make(native.DeviceProperties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Instant camera.

func (b *Backend) DestroyCamera(cam native.Handle) {
	c, ok := b.tbl.Lookup(cam).(*camera)
	if !ok {
		return
	}
	c.destroy()
	for _, h := range c.maps {
		b.tbl.Unregister(h)
	}
	b.tbl.Unregister(cam)
}

func (b *Backend) CameraDeviceInfo(cam native.Handle) (props native.DeviceProperties, err error) {
	err = native.Try(func() { props = clone(b.camera(cam).dev.props) })
	return props, err
}

func (b *Backend) Open(cam native.Handle) error {
	return native.Try(func() { b.camera(cam).openDevice() })
}

func (b *Backend) IsOpen(cam native.Handle) (open bool, err error) {
	err = native.Try(func() { open = b.camera(cam).isOpen() })
	return open, err
}

func (b *Backend) Close(cam native.Handle) error {
	return native.Try(func() { b.camera(cam).closeDevice() })
}

func (b *Backend) NodeMap(cam native.Handle, kind native.NodeMapKind) (h native.Handle, err error) {
	err = native.Try(func() {
		c := b.camera(cam)
		c.dev.mu.Lock()
		defer c.dev.mu.Unlock()
		if existing, ok := c.maps[kind]; ok {
			h = existing
			return
		}
		h = b.tbl.Register(c.buildNodeMap(kind))
		c.maps[kind] = h
	})
	return h, err
}

func (b *Backend) StartGrabbing(cam native.Handle, opts native.StartOptions) error {
	return native.Try(func() { b.camera(cam).startGrabbing(opts) })
}

func (b *Backend) StopGrabbing(cam native.Handle) error {
	return native.Try(func() { b.camera(cam).grab.stop() })
}

func (b *Backend) IsGrabbing(cam native.Handle) (grabbing bool, err error) {
	err = native.Try(func() { grabbing = b.camera(cam).grab.isGrabbing() })
	return grabbing, err
}

func (b *Backend) RetrieveResult(cam native.Handle, timeoutMs uint32, res native.Handle, th native.TimeoutHandling) (ok bool, err error) {
	err = native.Try(func() {
		c := b.camera(cam)
		r := b.result(res)
		ok = c.grab.retrieve(timeoutMs, r, th)
	})
	return ok, err
}

func (b *Backend) WaitObject(cam native.Handle) (w native.WaitObject, err error) {
	err = native.Try(func() { w = b.camera(cam).grab.wait })
	return w, err
}

// Node maps.

func (b *Backend) LoadFeatures(nm native.Handle, path string, validate bool) error {
	return native.Try(func() {
		m := b.nodeMap(nm)
		m.mu.Lock()
		defer m.mu.Unlock()
		m.loadFile(path, validate)
	})
}

func (b *Backend) SaveFeatures(nm native.Handle, path string) error {
	return native.Try(func() {
		m := b.nodeMap(nm)
		m.mu.Lock()
		defer m.mu.Unlock()
		m.saveFile(path)
	})
}

func (b *Backend) LoadFeaturesFromString(nm native.Handle, features string, validate bool) error {
	return native.Try(func() {
		m := b.nodeMap(nm)
		m.mu.Lock()
		defer m.mu.Unlock()
		m.load(features, validate)
	})
}

func (b *Backend) SaveFeaturesToString(nm native.Handle) (s string, err error) {
	err = native.Try(func() {
		m := b.nodeMap(nm)
		m.mu.Lock()
		defer m.mu.Unlock()
		s = m.save()
	})
	return s, err
}

func (b *Backend) Parameter(nm native.Handle, name string, typ native.NodeType) (h native.Handle, err error) {
	err = native.Try(func() {
		m := b.nodeMap(nm)
		m.mu.Lock()
		defer m.mu.Unlock()
		n := m.resolve(name, typ)
		h = b.tbl.Register(&parameter{nm: m, n: n})
	})
	return h, err
}

func (b *Backend) DestroyParameter(p native.Handle) {
	if _, ok := b.tbl.Lookup(p).(*parameter); ok {
		b.tbl.Unregister(p)
	}
}

// Parameters.

func (b *Backend) BooleanValue(h native.Handle) (v bool, err error) {
	err = native.Try(func() {
		p := b.parameter(h)
		defer p.lock()()
		v = p.boolValue()
	})
	return v, err
}

func (b *Backend) SetBooleanValue(h native.Handle, v bool) error {
	return native.Try(func() {
		p := b.parameter(h)
		defer p.lock()()
		p.setBoolValue(v)
	})
}

func (b *Backend) IntegerValue(h native.Handle) (v int64, err error) {
	err = native.Try(func() {
		p := b.parameter(h)
		defer p.lock()()
		v = p.intValue()
	})
	return v, err
}

func (b *Backend) IntegerMin(h native.Handle) (v int64, err error) {
	err = native.Try(func() {
		p := b.parameter(h)
		defer p.lock()()
		v = p.intMin()
	})
	return v, err
}

func (b *Backend) IntegerMax(h native.Handle) (v int64, err error) {
	err = native.Try(func() {
		p := b.parameter(h)
		defer p.lock()()
		v = p.intMax()
	})
	return v, err
}

func (b *Backend) IntegerInc(h native.Handle) (v int64, err error) {
	err = native.Try(func() {
		p := b.parameter(h)
		defer p.lock()()
		v = p.intInc()
	})
	return v, err
}

func (b *Backend) SetIntegerValue(h native.Handle, v int64) error {
	return native.Try(func() {
		p := b.parameter(h)
		defer p.lock()()
		p.setIntValue(v)
	})
}

func (b *Backend) IntegerUnit(h native.Handle) (unit string, ok bool, err error) {
	err = native.Try(func() {
		p := b.parameter(h)
		defer p.lock()()
		unit, ok = p.unit("GetUnit")
	})
	return unit, ok, err
}

func (b *Backend) FloatValue(h native.Handle) (v float64, err error) {
	err = native.Try(func() {
		p := b.parameter(h)
		defer p.lock()()
		v = p.floatValue()
	})
	return v, err
}

func (b *Backend) FloatMin(h native.Handle) (v float64, err error) {
	err = native.Try(func() {
		p := b.parameter(h)
		defer p.lock()()
		v = p.floatMin()
	})
	return v, err
}

func (b *Backend) FloatMax(h native.Handle) (v float64, err error) {
	err = native.Try(func() {
		p := b.parameter(h)
		defer p.lock()()
		v = p.floatMax()
	})
	return v, err
}

func (b *Backend) SetFloatValue(h native.Handle, v float64) error {
	return native.Try(func() {
		p := b.parameter(h)
		defer p.lock()()
		p.setFloatValue(v)
	})
}

func (b *Backend) FloatUnit(h native.Handle) (unit string, ok bool, err error) {
	err = native.Try(func() {
		p := b.parameter(h)
		defer p.lock()()
		unit, ok = p.unit("GetUnit")
	})
	return unit, ok, err
}

func (b *Backend) EnumValue(h native.Handle) (v string, err error) {
	err = native.Try(func() {
		p := b.parameter(h)
		defer p.lock()()
		v = p.enumValue()
	})
	return v, err
}

func (b *Backend) EnumSettableValues(h native.Handle) (vs []string, err error) {
	err = native.Try(func() {
		p := b.parameter(h)
		defer p.lock()()
		vs = p.enumSettable()
	})
	return vs, err
}

func (b *Backend) SetEnumValue(h native.Handle, v string) error {
	return native.Try(func() {
		p := b.parameter(h)
		defer p.lock()()
		p.setEnumValue(v)
	})
}

func (b *Backend) ExecuteCommand(h native.Handle, verify bool) error {
	return native.Try(func() {
		p := b.parameter(h)
		defer p.lock()()
		p.executeCommand(verify)
	})
}

// Grab results.

func (b *Backend) NewGrabResult() (h native.Handle, err error) {
	err = native.Try(func() { h = b.tbl.Register(newResult()) })
	return h, err
}

func (b *Backend) DestroyGrabResult(h native.Handle) {
	r, ok := b.tbl.Lookup(h).(*result)
	if !ok {
		return
	}
	r.detach()
	b.tbl.Unregister(h)
	r.mu.Lock()
	chunkHandle := r.chunkHandle
	r.mu.Unlock()
	if chunkHandle != native.InvalidHandle {
		b.tbl.Unregister(chunkHandle)
	}
}

func (b *Backend) GrabSucceeded(h native.Handle) (ok bool, err error) {
	err = native.Try(func() { ok = b.result(h).succeeded() })
	return ok, err
}

func (b *Backend) GrabErrorDescription(h native.Handle) (s string, err error) {
	err = native.Try(func() { s = b.result(h).errorDescription() })
	return s, err
}

func (b *Backend) GrabResultUint(h native.Handle, f native.ResultField) (v uint64, err error) {
	err = native.Try(func() { v = b.result(h).field(f) })
	return v, err
}

func (b *Backend) GrabStride(h native.Handle) (v uint64, err error) {
	err = native.Try(func() { v = b.result(h).stride() })
	return v, err
}

func (b *Backend) GrabBuffer(h native.Handle) (buf []byte, err error) {
	err = native.Try(func() { buf = b.result(h).bytes() })
	return buf, err
}

func (b *Backend) ChunkDataNodeMap(h native.Handle) (nm native.Handle, err error) {
	err = native.Try(func() {
		r := b.result(h)
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.chunkHandle == native.InvalidHandle {
			r.chunkHandle = b.tbl.Register(r.chunks)
		}
		nm = r.chunkHandle
	})
	return nm, err
}
