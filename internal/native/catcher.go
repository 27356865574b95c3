package native

import (
	"fmt"
	"strings"
)

// Prefixes of the encoded fault text. The C++ shim of the vendor backend
// writes the same strings.
const (
	PrefixAccess          = "Pylon::AccessException: "
	PrefixAviWriterFatal  = "Pylon::AviWriterFatalException: "
	PrefixBadAlloc        = "Pylon::BadAllocException: "
	PrefixDynamicCast     = "Pylon::DynamicCastException: "
	PrefixInvalidArgument = "Pylon::InvalidArgumentException: "
	PrefixLogicalError    = "Pylon::LogicalErrorException: "
	PrefixOutOfRange      = "Pylon::OutOfRangeException: "
	PrefixProperty        = "Pylon::PropertyException: "
	PrefixRuntime         = "Pylon::RuntimeException: "
	PrefixTimeout         = "Pylon::TimeoutException: "
	PrefixGeneric         = "Pylon::GenericException: "
	PrefixStd             = "std::exception: "
)

// Fault is an exception that crossed the boundary, encoded as
// "<kind prefix><message>".
type Fault string

func (f Fault) Error() string { return string(f) }

// Split returns the prefix and message of f. ok is false when f carries no
// known prefix.
func (f Fault) Split() (prefix, message string, ok bool) {
	s := string(f)
	for _, c := range catchChain {
		if strings.HasPrefix(s, c.prefix) {
			return c.prefix, s[len(c.prefix):], true
		}
	}
	return "", s, false
}

type catcher struct {
	prefix string
	match  func(r any) (string, bool)
}

func catches[T error](prefix string) catcher {
	return catcher{prefix: prefix, match: func(r any) (string, bool) {
		e, ok := r.(T)
		if !ok {
			return "", false
		}
		return e.Error(), true
	}}
}

// catchChain is tried in order; the first match wins. Specific kinds come
// before GenericException, and plain Go errors are tried last.
var catchChain = buildChain()

func buildChain() []catcher {
	chain := []catcher{catches[*AccessException](PrefixAccess)}
	chain = append(chain, platformCatchers()...)
	return append(chain,
		catches[*BadAllocException](PrefixBadAlloc),
		catches[*DynamicCastException](PrefixDynamicCast),
		catches[*InvalidArgumentException](PrefixInvalidArgument),
		catches[*LogicalErrorException](PrefixLogicalError),
		catches[*OutOfRangeException](PrefixOutOfRange),
		catches[*PropertyException](PrefixProperty),
		catches[*RuntimeException](PrefixRuntime),
		catches[*TimeoutException](PrefixTimeout),
		catches[*GenericException](PrefixGeneric),
		catches[error](PrefixStd),
	)
}

// Try runs fn and converts a panic raised inside it into a Fault. It returns
// nil when fn completes normally. Values that are not errors are reported as
// standard exceptions, so no panic escapes the boundary.
func Try(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Encode(r)
		}
	}()
	fn()
	return nil
}

// Encode converts a raised value into its Fault text.
func Encode(r any) Fault {
	for _, c := range catchChain {
		if msg, ok := c.match(r); ok {
			return Fault(c.prefix + msg)
		}
	}
	return Fault(PrefixStd + fmt.Sprintf("unknown exception: %v", r))
}
