package pylon

import (
	"maps"

	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/internal/native"
)

// EnumerateDevices lists the reachable cameras in transport layer order.
// The order may change between calls.
func EnumerateDevices() ([]DeviceInfo, error) {
	b, err := sdk()
	if err != nil {
		return nil, err
	}
	list, err := b.EnumerateDevices()
	debug.Call("EnumerateDevices", err)
	if err != nil {
		return nil, fromNative(err)
	}
	infos := make([]DeviceInfo, len(list))
	for i, props := range list {
		infos[i] = DeviceInfo{props: maps.Clone(props)}
	}
	return infos, nil
}

// CreateFirstDevice creates a camera object for the first device found.
func CreateFirstDevice() (*InstantCamera, error) {
	b, err := sdk()
	if err != nil {
		return nil, err
	}
	h, err := b.CreateFirstDevice()
	debug.Call("CreateFirstDevice", err)
	if err != nil {
		return nil, fromNative(err)
	}
	return newInstantCamera(b, h), nil
}

// CreateDevice creates a camera object for the first device matching every
// property of info.
func CreateDevice(info DeviceInfo) (*InstantCamera, error) {
	b, err := sdk()
	if err != nil {
		return nil, err
	}
	h, err := b.CreateDevice(native.DeviceProperties(maps.Clone(info.props)))
	debug.Call("CreateDevice "+info.String(), err)
	if err != nil {
		return nil, fromNative(err)
	}
	return newInstantCamera(b, h), nil
}
