//go:build linux

package pylon

import (
	"errors"

	"github.com/cjeanneret/PylonGo/internal/native"
)

// Fd returns a descriptor that polls readable while a result is ready, for
// use with epoll based event loops. It stays owned by the camera.
func (w *WaitObject) Fd() (int, error) {
	if err := w.owner.valid(); err != nil {
		return -1, err
	}
	fw, ok := w.w.(native.FdWaitObject)
	if !ok {
		return -1, errors.New("pylon: the backend's wait object has no file descriptor")
	}
	return fw.Fd(), nil
}
