package pylon

import (
	"errors"
	"strings"

	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/internal/native"
)

// Kind classifies an error raised by the SDK.
type Kind int

const (
	StandardError Kind = iota
	AccessError
	FatalWriterError
	AllocationError
	CastError
	InvalidArgumentError
	LogicalError
	OutOfRangeError
	PropertyError
	RuntimeError
	TimeoutError
	GenericDeviceError
)

var kindNames = [...]string{
	StandardError:        "StandardError",
	AccessError:          "AccessError",
	FatalWriterError:     "FatalWriterError",
	AllocationError:      "AllocationError",
	CastError:            "CastError",
	InvalidArgumentError: "InvalidArgumentError",
	LogicalError:         "LogicalError",
	OutOfRangeError:      "OutOfRangeError",
	PropertyError:        "PropertyError",
	RuntimeError:         "RuntimeError",
	TimeoutError:         "TimeoutError",
	GenericDeviceError:   "GenericDeviceError",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UnknownError"
}

// prefixKinds maps the encoded exception prefixes to kinds. The order is
// irrelevant since no prefix is a prefix of another.
var prefixKinds = map[string]Kind{
	native.PrefixStd:             StandardError,
	native.PrefixAccess:          AccessError,
	native.PrefixAviWriterFatal:  FatalWriterError,
	native.PrefixBadAlloc:        AllocationError,
	native.PrefixDynamicCast:     CastError,
	native.PrefixInvalidArgument: InvalidArgumentError,
	native.PrefixLogicalError:    LogicalError,
	native.PrefixOutOfRange:      OutOfRangeError,
	native.PrefixProperty:        PropertyError,
	native.PrefixRuntime:         RuntimeError,
	native.PrefixTimeout:         TimeoutError,
	native.PrefixGeneric:         GenericDeviceError,
}

// Error is an exception raised inside the SDK, reconstructed from the text
// that crossed the boundary.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Message
}

// Is reports whether target is the sentinel of e's kind, so that
// errors.Is(err, pylon.ErrTimeout) matches every timeout.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is, one per kind.
var (
	ErrStandard        = &Error{Kind: StandardError}
	ErrAccess          = &Error{Kind: AccessError}
	ErrFatalWriter     = &Error{Kind: FatalWriterError}
	ErrAllocation      = &Error{Kind: AllocationError}
	ErrCast            = &Error{Kind: CastError}
	ErrInvalidArgument = &Error{Kind: InvalidArgumentError}
	ErrLogical         = &Error{Kind: LogicalError}
	ErrOutOfRange      = &Error{Kind: OutOfRangeError}
	ErrProperty        = &Error{Kind: PropertyError}
	ErrRuntime         = &Error{Kind: RuntimeError}
	ErrTimeout         = &Error{Kind: TimeoutError}
	ErrGenericDevice   = &Error{Kind: GenericDeviceError}
)

// Ownership violations detected on the Go side. They never come from the SDK.
var (
	// ErrReleased is returned when an object, or the object it was borrowed
	// from, has been released.
	ErrReleased = errors.New("pylon: object has been released")
	// ErrInvalidated is returned when a borrowed view outlived the retrieval
	// it was taken from.
	ErrInvalidated = errors.New("pylon: view invalidated by a later retrieval or release")
)

// KindOf returns the kind of the SDK error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// parseError rebuilds a typed error from text encoded by the boundary.
// Text without a known prefix becomes a StandardError carrying the whole
// text.
func parseError(text string) *Error {
	if i := strings.Index(text, ": "); i >= 0 {
		if k, ok := prefixKinds[text[:i+2]]; ok {
			return &Error{Kind: k, Message: text[i+2:]}
		}
	}
	debug.Verbose("unrecognized SDK error text: %q", text)
	return &Error{Kind: StandardError, Message: text}
}

// fromNative converts an error returned by a backend call.
func fromNative(err error) error {
	if err == nil {
		return nil
	}
	return parseError(err.Error())
}
