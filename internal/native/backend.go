package native

import (
	"fmt"
	"sort"
	"sync"
)

// Backend is the flat call surface of a camera SDK. Every fallible call
// returns either nil or a Fault; implementations never let a panic escape.
// Handles returned by Create*/New*/Parameter are owned by the caller and must
// be passed to the matching Destroy* exactly once. Node map handles are
// borrowed from their owner and are never destroyed.
type Backend interface {
	Name() string
	Initialize() error
	Terminate()
	Version() Version

	// Transport-layer factory.
	EnumerateDevices() ([]DeviceProperties, error)
	CreateFirstDevice() (Handle, error)
	CreateDevice(props DeviceProperties) (Handle, error)

	// Instant camera.
	DestroyCamera(cam Handle)
	CameraDeviceInfo(cam Handle) (DeviceProperties, error)
	Open(cam Handle) error
	IsOpen(cam Handle) (bool, error)
	Close(cam Handle) error
	NodeMap(cam Handle, kind NodeMapKind) (Handle, error)
	StartGrabbing(cam Handle, opts StartOptions) error
	StopGrabbing(cam Handle) error
	IsGrabbing(cam Handle) (bool, error)
	RetrieveResult(cam Handle, timeoutMs uint32, result Handle, th TimeoutHandling) (bool, error)
	WaitObject(cam Handle) (WaitObject, error)

	// Node maps.
	LoadFeatures(nm Handle, path string, validate bool) error
	SaveFeatures(nm Handle, path string) error
	LoadFeaturesFromString(nm Handle, features string, validate bool) error
	SaveFeaturesToString(nm Handle) (string, error)
	Parameter(nm Handle, name string, typ NodeType) (Handle, error)
	DestroyParameter(p Handle)

	// Parameters.
	BooleanValue(p Handle) (bool, error)
	SetBooleanValue(p Handle, v bool) error
	IntegerValue(p Handle) (int64, error)
	IntegerMin(p Handle) (int64, error)
	IntegerMax(p Handle) (int64, error)
	IntegerInc(p Handle) (int64, error)
	SetIntegerValue(p Handle, v int64) error
	IntegerUnit(p Handle) (string, bool, error)
	FloatValue(p Handle) (float64, error)
	FloatMin(p Handle) (float64, error)
	FloatMax(p Handle) (float64, error)
	SetFloatValue(p Handle, v float64) error
	FloatUnit(p Handle) (string, bool, error)
	EnumValue(p Handle) (string, error)
	EnumSettableValues(p Handle) ([]string, error)
	SetEnumValue(p Handle, v string) error
	ExecuteCommand(p Handle, verify bool) error

	// Grab results.
	NewGrabResult() (Handle, error)
	DestroyGrabResult(r Handle)
	GrabSucceeded(r Handle) (bool, error)
	GrabErrorDescription(r Handle) (string, error)
	GrabResultUint(r Handle, field ResultField) (uint64, error)
	GrabStride(r Handle) (uint64, error)
	GrabBuffer(r Handle) ([]byte, error)
	ChunkDataNodeMap(r Handle) (Handle, error)
}

// Settings carries backend specific options, keyed by lower-case name.
type Settings map[string]string

// Opener constructs a backend.
type Opener func(settings Settings) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Opener)
)

// Register makes a backend available by name. It panics if the name is
// registered twice or the opener is nil.
func Register(name string, open Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if open == nil {
		panic("native: Register opener is nil")
	}
	if _, dup := registry[name]; dup {
		panic("native: Register called twice for backend " + name)
	}
	registry[name] = open
}

// Backends returns the sorted names of the registered backends.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs the named backend.
func Open(name string, settings Settings) (Backend, error) {
	registryMu.RLock()
	open, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (registered: %v)", name, Backends())
	}
	return open(settings)
}
