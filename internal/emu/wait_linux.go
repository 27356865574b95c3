//go:build linux

package emu

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// eventWait is a level-triggered signal backed by an eventfd. The
// descriptor is readable exactly while the signal is set.
type eventWait struct {
	mu  sync.Mutex
	fd  int
	set bool
}

func newWaitObject() (waitObject, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &eventWait{fd: fd}, nil
}

func (w *eventWait) signal() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.set || w.fd < 0 {
		return
	}
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(w.fd, one[:]); err == nil {
		w.set = true
	}
}

func (w *eventWait) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.set || w.fd < 0 {
		return
	}
	var buf [8]byte
	_, _ = unix.Read(w.fd, buf[:])
	w.set = false
}

func (w *eventWait) Fd() int { return w.fd }

func (w *eventWait) Wait(timeout time.Duration) (bool, error) {
	ms := -1
	if v, infinite := waitMillis(timeout, math.MaxInt32); !infinite {
		ms = int(v)
	}
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, waitFault(err)
		}
		return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
	}
}

func (w *eventWait) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fd < 0 {
		return nil
	}
	err := unix.Close(w.fd)
	w.fd = -1
	return err
}
