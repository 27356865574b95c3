//go:build pylon

// Package pylonsdk binds the vendor pylon C++ SDK through a small C shim.
// The shim catches every C++ exception and returns it as fault text with the
// same prefixes as the Go side, so callers see the same errors as with the
// emulation. Build with -tags pylon and the SDK installed under /opt/pylon,
// or override the paths with CGO_CXXFLAGS and CGO_LDFLAGS.
package pylonsdk

// #cgo CXXFLAGS: -std=c++14 -I/opt/pylon/include
// #cgo linux LDFLAGS: -L/opt/pylon/lib -Wl,-rpath,/opt/pylon/lib -lpylonbase -lpylonutility -lGenApi_gcc_v3_1_Basler_pylon -lGCBase_gcc_v3_1_Basler_pylon -lstdc++
// #cgo windows LDFLAGS: -lstdc++
// #include <stdlib.h>
// #include "shim.h"
import "C"

import (
	"time"
	"unsafe"

	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/internal/native"
)

// BackendName is the registry name of the vendor SDK backend.
const BackendName = "pylon"

func init() {
	native.Register(BackendName, func(native.Settings) (native.Backend, error) {
		return &Backend{}, nil
	})
}

var _ native.Backend = (*Backend)(nil)

// Backend forwards every call to the vendor SDK.
type Backend struct{}

// check converts the fault text returned by the shim and frees it.
func check(msg *C.char) error {
	if msg == nil {
		return nil
	}
	defer C.free(unsafe.Pointer(msg))
	return native.Fault(C.GoString(msg))
}

func goString(s *C.char) string {
	defer C.free(unsafe.Pointer(s))
	return C.GoString(s)
}

func goProps(p *C.pg_props) native.DeviceProperties {
	n := int(p.count)
	out := make(native.DeviceProperties, n)
	if n == 0 {
		return out
	}
	names := unsafe.Slice(p.names, n)
	values := unsafe.Slice(p.values, n)
	for i := range n {
		out[C.GoString(names[i])] = C.GoString(values[i])
	}
	return out
}

func (b *Backend) Name() string { return BackendName }

func (b *Backend) Initialize() error {
	debug.Trace("pylonsdk: PylonInitialize")
	return check(C.pg_initialize())
}

func (b *Backend) Terminate() {
	debug.Trace("pylonsdk: PylonTerminate")
	C.pg_terminate()
}

func (b *Backend) Version() native.Version {
	var major, minor, subminor, build C.uint32_t
	C.pg_version(&major, &minor, &subminor, &build)
	return native.Version{Major: uint32(major), Minor: uint32(minor), Subminor: uint32(subminor), Build: uint32(build)}
}

func (b *Backend) EnumerateDevices() ([]native.DeviceProperties, error) {
	var list *C.pg_props
	var count C.size_t
	if err := check(C.pg_enumerate_devices(&list, &count)); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	defer C.free(unsafe.Pointer(list))
	entries := unsafe.Slice(list, int(count))
	out := make([]native.DeviceProperties, len(entries))
	for i := range entries {
		out[i] = goProps(&entries[i])
		C.pg_props_free(&entries[i])
	}
	return out, nil
}

func (b *Backend) CreateFirstDevice() (native.Handle, error) {
	var cam C.pg_camera
	if err := check(C.pg_create_first_device(&cam)); err != nil {
		return native.InvalidHandle, err
	}
	return native.Handle(cam), nil
}

func (b *Backend) CreateDevice(props native.DeviceProperties) (native.Handle, error) {
	names := make([]*C.char, 0, len(props))
	values := make([]*C.char, 0, len(props))
	for k, v := range props {
		names = append(names, C.CString(k))
		values = append(values, C.CString(v))
	}
	defer func() {
		for i := range names {
			C.free(unsafe.Pointer(names[i]))
			C.free(unsafe.Pointer(values[i]))
		}
	}()
	var np, vp **C.char
	if len(names) > 0 {
		np, vp = &names[0], &values[0]
	}
	var cam C.pg_camera
	if err := check(C.pg_create_device(np, vp, C.size_t(len(names)), &cam)); err != nil {
		return native.InvalidHandle, err
	}
	return native.Handle(cam), nil
}

func (b *Backend) DestroyCamera(cam native.Handle) { C.pg_camera_destroy(C.pg_camera(cam)) }

func (b *Backend) CameraDeviceInfo(cam native.Handle) (native.DeviceProperties, error) {
	var props C.pg_props
	if err := check(C.pg_camera_device_info(C.pg_camera(cam), &props)); err != nil {
		return nil, err
	}
	defer C.pg_props_free(&props)
	return goProps(&props), nil
}

func (b *Backend) Open(cam native.Handle) error  { return check(C.pg_camera_open(C.pg_camera(cam))) }
func (b *Backend) Close(cam native.Handle) error { return check(C.pg_camera_close(C.pg_camera(cam))) }

func (b *Backend) IsOpen(cam native.Handle) (bool, error) {
	var open C.bool
	err := check(C.pg_camera_is_open(C.pg_camera(cam), &open))
	return bool(open), err
}

func (b *Backend) NodeMap(cam native.Handle, kind native.NodeMapKind) (native.Handle, error) {
	var nm C.pg_nodemap
	if err := check(C.pg_camera_node_map(C.pg_camera(cam), C.int(kind), &nm)); err != nil {
		return native.InvalidHandle, err
	}
	return native.Handle(nm), nil
}

func (b *Backend) StartGrabbing(cam native.Handle, opts native.StartOptions) error {
	return check(C.pg_camera_start_grabbing(C.pg_camera(cam), C.bool(opts.HasCount), C.uint64_t(opts.Count),
		C.bool(opts.HasStrategy), C.int(opts.Strategy)))
}

func (b *Backend) StopGrabbing(cam native.Handle) error {
	return check(C.pg_camera_stop_grabbing(C.pg_camera(cam)))
}

func (b *Backend) IsGrabbing(cam native.Handle) (bool, error) {
	var grabbing C.bool
	err := check(C.pg_camera_is_grabbing(C.pg_camera(cam), &grabbing))
	return bool(grabbing), err
}

func (b *Backend) RetrieveResult(cam native.Handle, timeoutMs uint32, result native.Handle, th native.TimeoutHandling) (bool, error) {
	var found C.bool
	err := check(C.pg_camera_retrieve_result(C.pg_camera(cam), C.uint32_t(timeoutMs), C.pg_result(result), C.int(th), &found))
	return bool(found), err
}

func (b *Backend) WaitObject(cam native.Handle) (native.WaitObject, error) {
	return &waitObject{cam: C.pg_camera(cam)}, nil
}

// waitObject is the camera's grab result wait object. It is owned by the
// camera.
type waitObject struct {
	cam C.pg_camera
}

func (w *waitObject) Wait(timeout time.Duration) (bool, error) {
	ms := C.uint32_t(native.Infinite)
	if timeout >= 0 {
		ms = C.uint32_t(min(timeout.Milliseconds(), int64(native.Infinite-1)))
	}
	var ready C.bool
	err := check(C.pg_camera_wait(w.cam, ms, &ready))
	return bool(ready), err
}

func (w *waitObject) Fd() int {
	var fd C.int
	if err := check(C.pg_camera_wait_fd(w.cam, &fd)); err != nil {
		return -1
	}
	return int(fd)
}

func (w *waitObject) Handle() uintptr {
	var h C.uintptr_t
	if err := check(C.pg_camera_wait_handle(w.cam, &h)); err != nil {
		return 0
	}
	return uintptr(h)
}

func (b *Backend) LoadFeatures(nm native.Handle, path string, validate bool) error {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	return check(C.pg_nodemap_load(C.pg_nodemap(nm), cpath, C.bool(validate)))
}

func (b *Backend) SaveFeatures(nm native.Handle, path string) error {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	return check(C.pg_nodemap_save(C.pg_nodemap(nm), cpath))
}

func (b *Backend) LoadFeaturesFromString(nm native.Handle, features string, validate bool) error {
	cs := C.CString(features)
	defer C.free(unsafe.Pointer(cs))
	return check(C.pg_nodemap_load_from_string(C.pg_nodemap(nm), cs, C.bool(validate)))
}

func (b *Backend) SaveFeaturesToString(nm native.Handle) (string, error) {
	var s *C.char
	if err := check(C.pg_nodemap_save_to_string(C.pg_nodemap(nm), &s)); err != nil {
		return "", err
	}
	return goString(s), nil
}

func (b *Backend) Parameter(nm native.Handle, name string, typ native.NodeType) (native.Handle, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	var p C.pg_param
	if err := check(C.pg_nodemap_parameter(C.pg_nodemap(nm), cname, C.int(typ), &p)); err != nil {
		return native.InvalidHandle, err
	}
	return native.Handle(p), nil
}

func (b *Backend) DestroyParameter(p native.Handle) { C.pg_param_destroy(C.pg_param(p)) }

func (b *Backend) BooleanValue(p native.Handle) (bool, error) {
	var v C.bool
	err := check(C.pg_bool_get(C.pg_param(p), &v))
	return bool(v), err
}

func (b *Backend) SetBooleanValue(p native.Handle, v bool) error {
	return check(C.pg_bool_set(C.pg_param(p), C.bool(v)))
}

// Selectors of pg_int_get and pg_float_get.
const (
	getValue = iota
	getMin
	getMax
	getInc
)

func (b *Backend) intGet(p native.Handle, which int) (int64, error) {
	var v C.int64_t
	err := check(C.pg_int_get(C.pg_param(p), C.int(which), &v))
	return int64(v), err
}

func (b *Backend) IntegerValue(p native.Handle) (int64, error) { return b.intGet(p, getValue) }
func (b *Backend) IntegerMin(p native.Handle) (int64, error)   { return b.intGet(p, getMin) }
func (b *Backend) IntegerMax(p native.Handle) (int64, error)   { return b.intGet(p, getMax) }
func (b *Backend) IntegerInc(p native.Handle) (int64, error)   { return b.intGet(p, getInc) }

func (b *Backend) SetIntegerValue(p native.Handle, v int64) error {
	return check(C.pg_int_set(C.pg_param(p), C.int64_t(v)))
}

func (b *Backend) unit(p native.Handle) (string, bool, error) {
	var u *C.char
	var present C.bool
	if err := check(C.pg_unit(C.pg_param(p), &u, &present)); err != nil {
		return "", false, err
	}
	return goString(u), bool(present), nil
}

func (b *Backend) IntegerUnit(p native.Handle) (string, bool, error) { return b.unit(p) }

func (b *Backend) floatGet(p native.Handle, which int) (float64, error) {
	var v C.double
	err := check(C.pg_float_get(C.pg_param(p), C.int(which), &v))
	return float64(v), err
}

func (b *Backend) FloatValue(p native.Handle) (float64, error) { return b.floatGet(p, getValue) }
func (b *Backend) FloatMin(p native.Handle) (float64, error)   { return b.floatGet(p, getMin) }
func (b *Backend) FloatMax(p native.Handle) (float64, error)   { return b.floatGet(p, getMax) }

func (b *Backend) SetFloatValue(p native.Handle, v float64) error {
	return check(C.pg_float_set(C.pg_param(p), C.double(v)))
}

func (b *Backend) FloatUnit(p native.Handle) (string, bool, error) { return b.unit(p) }

func (b *Backend) EnumValue(p native.Handle) (string, error) {
	var s *C.char
	if err := check(C.pg_enum_get(C.pg_param(p), &s)); err != nil {
		return "", err
	}
	return goString(s), nil
}

func (b *Backend) EnumSettableValues(p native.Handle) ([]string, error) {
	var list **C.char
	var count C.size_t
	if err := check(C.pg_enum_settable(C.pg_param(p), &list, &count)); err != nil {
		return nil, err
	}
	defer C.pg_strings_free(list, count)
	out := make([]string, 0, int(count))
	for _, s := range unsafe.Slice(list, int(count)) {
		out = append(out, C.GoString(s))
	}
	return out, nil
}

func (b *Backend) SetEnumValue(p native.Handle, v string) error {
	cv := C.CString(v)
	defer C.free(unsafe.Pointer(cv))
	return check(C.pg_enum_set(C.pg_param(p), cv))
}

func (b *Backend) ExecuteCommand(p native.Handle, verify bool) error {
	return check(C.pg_command_execute(C.pg_param(p), C.bool(verify)))
}

func (b *Backend) NewGrabResult() (native.Handle, error) {
	var r C.pg_result
	if err := check(C.pg_result_new(&r)); err != nil {
		return native.InvalidHandle, err
	}
	return native.Handle(r), nil
}

func (b *Backend) DestroyGrabResult(r native.Handle) { C.pg_result_destroy(C.pg_result(r)) }

func (b *Backend) GrabSucceeded(r native.Handle) (bool, error) {
	var ok C.bool
	err := check(C.pg_result_succeeded(C.pg_result(r), &ok))
	return bool(ok), err
}

func (b *Backend) GrabErrorDescription(r native.Handle) (string, error) {
	var s *C.char
	if err := check(C.pg_result_error_description(C.pg_result(r), &s)); err != nil {
		return "", err
	}
	return goString(s), nil
}

func (b *Backend) GrabResultUint(r native.Handle, field native.ResultField) (uint64, error) {
	var v C.uint64_t
	err := check(C.pg_result_uint(C.pg_result(r), C.int(field), &v))
	return uint64(v), err
}

func (b *Backend) GrabStride(r native.Handle) (uint64, error) {
	var v C.uint64_t
	err := check(C.pg_result_stride(C.pg_result(r), &v))
	return uint64(v), err
}

// GrabBuffer returns a view of SDK memory that stays valid until the result
// is retrieved into again or destroyed.
func (b *Backend) GrabBuffer(r native.Handle) ([]byte, error) {
	var data *C.uint8_t
	var n C.size_t
	if err := check(C.pg_result_buffer(C.pg_result(r), &data, &n)); err != nil {
		return nil, err
	}
	if data == nil || n == 0 {
		return nil, nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(data)), int(n)), nil
}

func (b *Backend) ChunkDataNodeMap(r native.Handle) (native.Handle, error) {
	var nm C.pg_nodemap
	if err := check(C.pg_result_chunk_node_map(C.pg_result(r), &nm)); err != nil {
		return native.InvalidHandle, err
	}
	return native.Handle(nm), nil
}
