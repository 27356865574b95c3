package native

import "fmt"

// GenericException is the root of the SDK exception hierarchy. Backends
// raise exceptions by panicking with one of the types in this file; Try
// converts them into Fault values.
type GenericException struct {
	Description string
}

func (e *GenericException) Error() string { return e.Description }

// AccessException reports a node or device that cannot be accessed.
type AccessException struct{ GenericException }

// AviWriterFatalException reports a failure of the video writer.
type AviWriterFatalException struct{ GenericException }

// BadAllocException reports an allocation failure.
type BadAllocException struct{ GenericException }

// DynamicCastException reports a node resolved as the wrong interface.
type DynamicCastException struct{ GenericException }

// InvalidArgumentException reports an argument the SDK rejected.
type InvalidArgumentException struct{ GenericException }

// LogicalErrorException reports a value that is undefined in the current state.
type LogicalErrorException struct{ GenericException }

// OutOfRangeException reports a value outside the node's range.
type OutOfRangeException struct{ GenericException }

// PropertyException reports a missing or invalid property.
type PropertyException struct{ GenericException }

// RuntimeException reports an operation invalid in the current state.
type RuntimeException struct{ GenericException }

// TimeoutException reports an expired wait.
type TimeoutException struct{ GenericException }

func describe(format string, args []any) GenericException {
	return GenericException{Description: fmt.Sprintf(format, args...)}
}

func Generic(format string, args ...any) *GenericException {
	e := describe(format, args)
	return &e
}

func Access(format string, args ...any) *AccessException {
	return &AccessException{describe(format, args)}
}

func AviWriterFatal(format string, args ...any) *AviWriterFatalException {
	return &AviWriterFatalException{describe(format, args)}
}

func BadAlloc(format string, args ...any) *BadAllocException {
	return &BadAllocException{describe(format, args)}
}

func DynamicCast(format string, args ...any) *DynamicCastException {
	return &DynamicCastException{describe(format, args)}
}

func InvalidArgument(format string, args ...any) *InvalidArgumentException {
	return &InvalidArgumentException{describe(format, args)}
}

func LogicalError(format string, args ...any) *LogicalErrorException {
	return &LogicalErrorException{describe(format, args)}
}

func OutOfRange(format string, args ...any) *OutOfRangeException {
	return &OutOfRangeException{describe(format, args)}
}

func Property(format string, args ...any) *PropertyException {
	return &PropertyException{describe(format, args)}
}

func Runtime(format string, args ...any) *RuntimeException {
	return &RuntimeException{describe(format, args)}
}

func Timeout(format string, args ...any) *TimeoutException {
	return &TimeoutException{describe(format, args)}
}
