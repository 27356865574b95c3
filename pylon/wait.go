package pylon

import (
	"time"

	"github.com/cjeanneret/PylonGo/internal/native"
)

// WaitObject is a camera's grab-ready signal, borrowed from the camera. It is
// set while a result can be retrieved; waiting never consumes a result.
type WaitObject struct {
	w     native.WaitObject
	owner borrow
}

// Wait blocks until the signal is set or timeout elapses, and reports
// whether it is set. Infinite waits without a limit.
func (w *WaitObject) Wait(timeout time.Duration) (bool, error) {
	if err := w.owner.valid(); err != nil {
		return false, err
	}
	ready, err := w.w.Wait(timeout)
	if err != nil {
		return false, fromNative(err)
	}
	return ready, nil
}
