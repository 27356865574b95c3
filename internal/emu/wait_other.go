//go:build !linux && !windows

package emu

import (
	"sync"
	"time"
)

// chanWait is a level-triggered signal for platforms without a native
// primitive: ch is closed while the signal is set.
type chanWait struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

func newWaitObject() (waitObject, error) {
	return &chanWait{ch: make(chan struct{})}, nil
}

func (w *chanWait) signal() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.set {
		close(w.ch)
		w.set = true
	}
}

func (w *chanWait) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.set {
		w.ch = make(chan struct{})
		w.set = false
	}
}

func (w *chanWait) Wait(timeout time.Duration) (bool, error) {
	w.mu.Lock()
	ch := w.ch
	w.mu.Unlock()
	select {
	case <-ch:
		return true, nil
	default:
	}
	if timeout < 0 {
		<-ch
		return true, nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true, nil
	case <-t.C:
		return false, nil
	}
}

func (w *chanWait) close() error { return nil }
