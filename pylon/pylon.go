package pylon

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/internal/emu"
	"github.com/cjeanneret/PylonGo/internal/native"
)

// DefaultBackend is used when Initialize is not given WithBackend.
const DefaultBackend = emu.BackendName

// Option configures Initialize.
type Option func(*options)

type options struct {
	backend  string
	settings native.Settings
}

// WithBackend selects the SDK backend by name, such as "emulation" or, in
// builds with the pylon tag, "pylon".
func WithBackend(name string) Option {
	return func(o *options) { o.backend = name }
}

// WithSetting passes a backend specific setting, for example
// WithSetting("devices", "2") for the emulation.
func WithSetting(key, value string) Option {
	return func(o *options) { o.settings[key] = value }
}

var runtimeState struct {
	mu   sync.Mutex
	sdk  native.Backend
	refs int
}

// Initialize loads the SDK. Calls are counted and every successful call must
// be matched by Terminate. Options only apply to the call that loads the SDK.
func Initialize(opts ...Option) error {
	runtimeState.mu.Lock()
	defer runtimeState.mu.Unlock()
	return initLocked(opts...)
}

func initLocked(opts ...Option) error {
	if runtimeState.sdk != nil {
		runtimeState.refs++
		return nil
	}
	o := options{backend: DefaultBackend, settings: native.Settings{}}
	for _, opt := range opts {
		opt(&o)
	}
	sdk, err := native.Open(o.backend, o.settings)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	if err := fromNative(sdk.Initialize()); err != nil {
		return err
	}
	runtimeState.sdk = sdk
	runtimeState.refs = 1
	debug.Verbose("SDK %s %s initialized", sdk.Name(), versionOf(sdk))
	return nil
}

// Terminate releases one Initialize reference and unloads the SDK when the
// last one is gone. Objects created before must have been released.
func Terminate() {
	runtimeState.mu.Lock()
	defer runtimeState.mu.Unlock()
	if runtimeState.sdk == nil {
		return
	}
	runtimeState.refs--
	if runtimeState.refs > 0 {
		return
	}
	runtimeState.sdk.Terminate()
	debug.Verbose("SDK %s terminated", runtimeState.sdk.Name())
	runtimeState.sdk = nil
}

// sdk returns the loaded backend, loading the default one on first use.
// That implicit reference is never dropped.
func sdk() (native.Backend, error) {
	runtimeState.mu.Lock()
	defer runtimeState.mu.Unlock()
	if runtimeState.sdk == nil {
		if err := initLocked(); err != nil {
			return nil, err
		}
	}
	return runtimeState.sdk, nil
}

// Version is the SDK version.
type Version struct {
	Major, Minor, Subminor, Build uint32
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Subminor, v.Build)
}

func versionOf(b native.Backend) Version {
	v := b.Version()
	return Version{Major: v.Major, Minor: v.Minor, Subminor: v.Subminor, Build: v.Build}
}

// SDKVersion returns the version of the loaded SDK.
func SDKVersion() (Version, error) {
	b, err := sdk()
	if err != nil {
		return Version{}, err
	}
	return versionOf(b), nil
}

// Backends lists the backends compiled into this binary.
func Backends() []string {
	return native.Backends()
}
