//go:build windows

package emu

import (
	"time"

	"golang.org/x/sys/windows"
)

// eventWait is a manual-reset Win32 event.
type eventWait struct {
	h windows.Handle
}

func newWaitObject() (waitObject, error) {
	h, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return nil, err
	}
	return &eventWait{h: h}, nil
}

func (w *eventWait) signal() { _ = windows.SetEvent(w.h) }

func (w *eventWait) reset() { _ = windows.ResetEvent(w.h) }

func (w *eventWait) Handle() uintptr { return uintptr(w.h) }

func (w *eventWait) Wait(timeout time.Duration) (bool, error) {
	ms := uint32(windows.INFINITE)
	if v, infinite := waitMillis(timeout, windows.INFINITE-1); !infinite {
		ms = uint32(v)
	}
	ev, err := windows.WaitForSingleObject(w.h, ms)
	if err != nil {
		return false, waitFault(err)
	}
	return ev == windows.WAIT_OBJECT_0, nil
}

func (w *eventWait) close() error { return windows.CloseHandle(w.h) }
