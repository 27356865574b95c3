package pylon

import (
	"fmt"
	"maps"
	"slices"
)

// Well known device property names.
const (
	PropertyFullName     = "FullName"
	PropertyFriendlyName = "FriendlyName"
	PropertyModelName    = "ModelName"
	PropertySerialNumber = "SerialNumber"
	PropertyVendorName   = "VendorName"
	PropertyDeviceClass  = "DeviceClass"
)

// DeviceInfo describes a camera. It is a detached copy and stays valid after
// the camera or the SDK is gone.
type DeviceInfo struct {
	props map[string]string
}

// NewDeviceInfo builds a description to select a device with
// CreateDevice. Only the given properties are matched.
func NewDeviceInfo(props map[string]string) DeviceInfo {
	return DeviceInfo{props: maps.Clone(props)}
}

// PropertyNames returns the sorted property names.
func (d DeviceInfo) PropertyNames() []string {
	return slices.Sorted(maps.Keys(d.props))
}

// PropertyValue returns the value of a property.
func (d DeviceInfo) PropertyValue(name string) (string, error) {
	v, ok := d.props[name]
	if !ok {
		return "", &Error{Kind: StandardError, Message: fmt.Sprintf("device info has no property %q", name)}
	}
	return v, nil
}

func (d DeviceInfo) get(name string) string { return d.props[name] }

func (d DeviceInfo) ModelName() string    { return d.get(PropertyModelName) }
func (d DeviceInfo) FullName() string     { return d.get(PropertyFullName) }
func (d DeviceInfo) FriendlyName() string { return d.get(PropertyFriendlyName) }
func (d DeviceInfo) SerialNumber() string { return d.get(PropertySerialNumber) }
func (d DeviceInfo) VendorName() string   { return d.get(PropertyVendorName) }
func (d DeviceInfo) DeviceClass() string  { return d.get(PropertyDeviceClass) }

func (d DeviceInfo) String() string {
	if name := d.FriendlyName(); name != "" {
		return name
	}
	return d.ModelName()
}
