package pylon

import (
	"time"

	"github.com/cjeanneret/PylonGo/internal/native"
)

// GrabStrategy decides which results RetrieveResult returns and in what
// order.
type GrabStrategy int

const (
	// OneByOne returns results in arrival order.
	OneByOne GrabStrategy = iota
	// LatestImageOnly keeps only the newest result.
	LatestImageOnly
	// LatestImages keeps the newest OutputQueueSize results.
	LatestImages
	// UpcomingImage discards queued results when a retrieval starts.
	UpcomingImage
)

func (s GrabStrategy) String() string {
	switch s {
	case OneByOne:
		return "OneByOne"
	case LatestImageOnly:
		return "LatestImageOnly"
	case LatestImages:
		return "LatestImages"
	case UpcomingImage:
		return "UpcomingImage"
	}
	return "Unknown"
}

// ParseGrabStrategy maps a strategy name to its value.
func ParseGrabStrategy(name string) (GrabStrategy, bool) {
	for s := OneByOne; s <= UpcomingImage; s++ {
		if s.String() == name {
			return s, true
		}
	}
	return OneByOne, false
}

// TimeoutHandling decides what RetrieveResult does when no result arrives in
// time.
type TimeoutHandling int

const (
	// Return reports found=false.
	Return TimeoutHandling = iota
	// ThrowException returns a TimeoutError.
	ThrowException
)

// Infinite makes RetrieveResult and WaitObject.Wait block until a result is
// ready.
const Infinite time.Duration = -1

// GrabOptions configures StartGrabbing. The zero value grabs until stopped
// with the OneByOne strategy.
type GrabOptions struct {
	count       uint64
	hasCount    bool
	strategy    GrabStrategy
	hasStrategy bool
}

// WithCount stops acquisition after n images.
func (o GrabOptions) WithCount(n uint64) GrabOptions {
	o.count, o.hasCount = n, true
	return o
}

// WithStrategy selects the grab strategy.
func (o GrabOptions) WithStrategy(s GrabStrategy) GrabOptions {
	o.strategy, o.hasStrategy = s, true
	return o
}

func (o GrabOptions) native() native.StartOptions {
	return native.StartOptions{
		Count:       o.count,
		HasCount:    o.hasCount,
		Strategy:    native.GrabStrategy(o.strategy),
		HasStrategy: o.hasStrategy,
	}
}

// timeoutMs converts a timeout to the SDK's millisecond argument.
func timeoutMs(d time.Duration) uint32 {
	if d < 0 {
		return native.Infinite
	}
	ms := d.Milliseconds()
	if ms >= int64(native.Infinite) {
		return native.Infinite - 1
	}
	return uint32(ms)
}
