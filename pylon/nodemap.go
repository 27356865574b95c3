package pylon

import (
	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/internal/native"
)

// NodeMap is a set of named features borrowed from a camera or a grab
// result. It fails with ErrReleased once its owner is released, and a chunk
// data node map fails with ErrInvalidated once its result is retrieved into
// again.
type NodeMap struct {
	sdk   native.Backend
	h     native.Handle
	owner borrow
	name  string
}

func (m *NodeMap) call(name string, fn func() error) error {
	if err := m.owner.valid(); err != nil {
		return err
	}
	err := fn()
	debug.Call(m.name+": "+name, err)
	return fromNative(err)
}

// Load applies a feature file. With validate set, unknown or invalid entries
// fail the load; otherwise they are skipped.
func (m *NodeMap) Load(path string, validate bool) error {
	return m.call("Load "+path, func() error { return m.sdk.LoadFeatures(m.h, path, validate) })
}

// Save writes the current feature values to a file.
func (m *NodeMap) Save(path string) error {
	return m.call("Save "+path, func() error { return m.sdk.SaveFeatures(m.h, path) })
}

// LoadFromString applies features saved with SaveToString.
func (m *NodeMap) LoadFromString(features string, validate bool) error {
	return m.call("LoadFromString", func() error { return m.sdk.LoadFeaturesFromString(m.h, features, validate) })
}

// SaveToString returns the current feature values in the SDK's feature file
// format.
func (m *NodeMap) SaveToString() (string, error) {
	var s string
	err := m.call("SaveToString", func() (err error) {
		s, err = m.sdk.SaveFeaturesToString(m.h)
		return err
	})
	return s, err
}

// resolve binds name on m and builds the typed parameter in place, so its
// lifetime is never copied.
func resolve[T any, P interface {
	*T
	base() *parameter
}](m *NodeMap, name string, typ native.NodeType) (P, error) {
	var h native.Handle
	err := m.call("resolve "+typ.String()+" "+name, func() (err error) {
		h, err = m.sdk.Parameter(m.h, name, typ)
		return err
	})
	if err != nil {
		return nil, err
	}
	obj := P(new(T))
	p := obj.base()
	p.sdk, p.h, p.name, p.owner = m.sdk, h, name, m.owner
	return track[T](obj), nil
}

// Boolean resolves a boolean feature.
func (m *NodeMap) Boolean(name string) (*BooleanParameter, error) {
	return resolve[BooleanParameter](m, name, native.NodeBoolean)
}

// Integer resolves an integer feature.
func (m *NodeMap) Integer(name string) (*IntegerParameter, error) {
	return resolve[IntegerParameter](m, name, native.NodeInteger)
}

// Float resolves a floating point feature.
func (m *NodeMap) Float(name string) (*FloatParameter, error) {
	return resolve[FloatParameter](m, name, native.NodeFloat)
}

// Enum resolves an enumeration feature.
func (m *NodeMap) Enum(name string) (*EnumParameter, error) {
	return resolve[EnumParameter](m, name, native.NodeEnumeration)
}

// Command resolves a command feature.
func (m *NodeMap) Command(name string) (*CommandParameter, error) {
	return resolve[CommandParameter](m, name, native.NodeCommand)
}
