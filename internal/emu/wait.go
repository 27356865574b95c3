package emu

import (
	"time"

	"github.com/cjeanneret/PylonGo/internal/native"
)

// waitObject is the grab-ready signal of a camera. It is set while the
// output queue holds at least one result.
type waitObject interface {
	native.WaitObject
	signal()
	reset()
	close() error
}

// waitMillis converts timeout for a native wait limited to limit
// milliseconds. Negative timeouts wait forever. A partial millisecond rounds
// up so a short wait never turns into a poll.
func waitMillis(timeout time.Duration, limit int64) (ms int64, infinite bool) {
	if timeout < 0 {
		return 0, true
	}
	if timeout >= time.Duration(limit)*time.Millisecond {
		return limit, false
	}
	return int64((timeout + time.Millisecond - 1) / time.Millisecond), false
}

// waitFault reports a failed native wait as a runtime fault.
func waitFault(err error) error {
	return native.Encode(native.Runtime("Waiting for the grab result failed: %v", err))
}
