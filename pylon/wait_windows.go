//go:build windows

package pylon

import (
	"errors"

	"github.com/cjeanneret/PylonGo/internal/native"
)

// Handle returns a manual-reset event handle that is signaled while a result
// is ready, for WaitForMultipleObjects. It stays owned by the camera.
func (w *WaitObject) Handle() (uintptr, error) {
	if err := w.owner.valid(); err != nil {
		return 0, err
	}
	hw, ok := w.w.(native.HandleWaitObject)
	if !ok {
		return 0, errors.New("pylon: the backend's wait object has no event handle")
	}
	return hw.Handle(), nil
}
