package pylon

import (
	"runtime"

	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/internal/native"
)

// parameter is the binding shared by the typed parameters. It owns its
// handle and borrows the node map's owner.
type parameter struct {
	sdk     native.Backend
	h       native.Handle
	name    string
	owner   borrow
	life    lifetime
	cleanup runtime.Cleanup
}

func (p *parameter) base() *parameter { return p }

// track attaches a cleanup that destroys the handle of a parameter that was
// never released.
func track[T any, P interface {
	*T
	base() *parameter
}](obj P) P {
	p := obj.base()
	p.cleanup = runtime.AddCleanup((*T)(obj), func(o sdkHandle) {
		debug.Trace("destroying unreleased parameter %d", o.h)
		o.sdk.DestroyParameter(o.h)
	}, sdkHandle{p.sdk, p.h})
	return obj
}

// Name returns the feature name the parameter was resolved with.
func (p *parameter) Name() string { return p.name }

// Release destroys the parameter binding. The node map is not affected.
func (p *parameter) Release() error {
	if !p.life.release() {
		return ErrReleased
	}
	p.cleanup.Stop()
	p.sdk.DestroyParameter(p.h)
	return nil
}

func (p *parameter) use() error {
	if err := p.life.alive(); err != nil {
		return err
	}
	return p.owner.valid()
}

// get runs a read and converts its error.
func get[V any](p *parameter, fn func(native.Handle) (V, error)) (V, error) {
	if err := p.use(); err != nil {
		var zero V
		return zero, err
	}
	v, err := fn(p.h)
	if err != nil {
		debug.Call("read "+p.name, err)
		return v, fromNative(err)
	}
	return v, nil
}

func set[V any](p *parameter, v V, fn func(native.Handle, V) error) error {
	if err := p.use(); err != nil {
		return err
	}
	err := fn(p.h, v)
	debug.Node("set", p.name, v)
	if err != nil {
		debug.Call("write "+p.name, err)
	}
	return fromNative(err)
}

// unit converts the (unit, present) pair of the SDK.
func unit(p *parameter, fn func(native.Handle) (string, bool, error)) (string, bool, error) {
	if err := p.use(); err != nil {
		return "", false, err
	}
	u, ok, err := fn(p.h)
	if err != nil {
		return "", false, fromNative(err)
	}
	return u, ok, nil
}

// BooleanParameter is a boolean feature.
type BooleanParameter struct{ parameter }

func (p *BooleanParameter) Value() (bool, error) { return get(&p.parameter, p.sdk.BooleanValue) }

func (p *BooleanParameter) SetValue(v bool) error {
	return set(&p.parameter, v, p.sdk.SetBooleanValue)
}

// IntegerParameter is an integer feature with bounds and an increment.
type IntegerParameter struct{ parameter }

func (p *IntegerParameter) Value() (int64, error) { return get(&p.parameter, p.sdk.IntegerValue) }
func (p *IntegerParameter) Min() (int64, error)   { return get(&p.parameter, p.sdk.IntegerMin) }
func (p *IntegerParameter) Max() (int64, error)   { return get(&p.parameter, p.sdk.IntegerMax) }
func (p *IntegerParameter) Inc() (int64, error)   { return get(&p.parameter, p.sdk.IntegerInc) }

// SetValue writes v. Values outside [Min, Max] or off the increment fail
// with OutOfRangeError.
func (p *IntegerParameter) SetValue(v int64) error {
	return set(&p.parameter, v, p.sdk.SetIntegerValue)
}

// Unit returns the physical unit. ok is false when the feature has none,
// which is distinct from an empty unit.
func (p *IntegerParameter) Unit() (u string, ok bool, err error) {
	return unit(&p.parameter, p.sdk.IntegerUnit)
}

// FloatParameter is a floating point feature with bounds.
type FloatParameter struct{ parameter }

func (p *FloatParameter) Value() (float64, error) { return get(&p.parameter, p.sdk.FloatValue) }
func (p *FloatParameter) Min() (float64, error)   { return get(&p.parameter, p.sdk.FloatMin) }
func (p *FloatParameter) Max() (float64, error)   { return get(&p.parameter, p.sdk.FloatMax) }

func (p *FloatParameter) SetValue(v float64) error {
	return set(&p.parameter, v, p.sdk.SetFloatValue)
}

// Unit returns the physical unit. ok is false when the feature has none.
func (p *FloatParameter) Unit() (u string, ok bool, err error) {
	return unit(&p.parameter, p.sdk.FloatUnit)
}

// EnumParameter is an enumeration feature addressed by entry names.
type EnumParameter struct{ parameter }

func (p *EnumParameter) Value() (string, error) { return get(&p.parameter, p.sdk.EnumValue) }

func (p *EnumParameter) SetValue(v string) error {
	return set(&p.parameter, v, p.sdk.SetEnumValue)
}

// SettableValues returns the entries that can be set right now. The set
// depends on other features and is queried on every call.
func (p *EnumParameter) SettableValues() ([]string, error) {
	return get(&p.parameter, p.sdk.EnumSettableValues)
}

// CommandParameter is a command feature.
type CommandParameter struct{ parameter }

// Execute runs the command. With verify set the SDK checks that the command
// was accepted.
func (p *CommandParameter) Execute(verify bool) error {
	return set(&p.parameter, verify, p.sdk.ExecuteCommand)
}
