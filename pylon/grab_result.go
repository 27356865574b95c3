package pylon

import (
	"runtime"

	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/internal/native"
)

// GrabResult owns one result slot. RetrieveResult fills it; retrieving into
// it again or releasing it returns the buffer to the acquisition engine and
// invalidates every BufferView and chunk node map taken from it.
type GrabResult struct {
	sdk     native.Backend
	h       native.Handle
	life    lifetime
	cleanup runtime.Cleanup
}

// NewGrabResult allocates an empty result slot.
func NewGrabResult() (*GrabResult, error) {
	b, err := sdk()
	if err != nil {
		return nil, err
	}
	h, err := b.NewGrabResult()
	if err != nil {
		return nil, fromNative(err)
	}
	r := &GrabResult{sdk: b, h: h}
	r.cleanup = runtime.AddCleanup(r, func(o sdkHandle) {
		debug.Trace("destroying unreleased grab result %d", o.h)
		o.sdk.DestroyGrabResult(o.h)
	}, sdkHandle{b, h})
	return r, nil
}

// Release destroys the result and returns its buffer.
func (r *GrabResult) Release() error {
	if !r.life.release() {
		return ErrReleased
	}
	r.cleanup.Stop()
	r.sdk.DestroyGrabResult(r.h)
	return nil
}

func resultGet[V any](r *GrabResult, fn func() (V, error)) (V, error) {
	if err := r.life.alive(); err != nil {
		var zero V
		return zero, err
	}
	v, err := fn()
	return v, fromNative(err)
}

func (r *GrabResult) field(f native.ResultField) (uint64, error) {
	return resultGet(r, func() (uint64, error) { return r.sdk.GrabResultUint(r.h, f) })
}

func (r *GrabResult) field32(f native.ResultField) (uint32, error) {
	v, err := r.field(f)
	return uint32(v), err
}

// GrabSucceeded reports whether the image was grabbed completely. A failed
// grab is not an error; its cause is in ErrorCode and ErrorDescription.
func (r *GrabResult) GrabSucceeded() (bool, error) {
	return resultGet(r, func() (bool, error) { return r.sdk.GrabSucceeded(r.h) })
}

func (r *GrabResult) ErrorDescription() (string, error) {
	return resultGet(r, func() (string, error) { return r.sdk.GrabErrorDescription(r.h) })
}

func (r *GrabResult) ErrorCode() (uint32, error)   { return r.field32(native.FieldErrorCode) }
func (r *GrabResult) PayloadType() (uint32, error) { return r.field32(native.FieldPayloadType) }
func (r *GrabResult) PixelType() (uint32, error)   { return r.field32(native.FieldPixelType) }
func (r *GrabResult) Width() (uint32, error)       { return r.field32(native.FieldWidth) }
func (r *GrabResult) Height() (uint32, error)      { return r.field32(native.FieldHeight) }
func (r *GrabResult) OffsetX() (uint32, error)     { return r.field32(native.FieldOffsetX) }
func (r *GrabResult) OffsetY() (uint32, error)     { return r.field32(native.FieldOffsetY) }
func (r *GrabResult) PaddingX() (uint32, error)    { return r.field32(native.FieldPaddingX) }
func (r *GrabResult) PaddingY() (uint32, error)    { return r.field32(native.FieldPaddingY) }
func (r *GrabResult) PayloadSize() (uint64, error) { return r.field(native.FieldPayloadSize) }
func (r *GrabResult) BufferSize() (uint64, error)  { return r.field(native.FieldBufferSize) }
func (r *GrabResult) ImageSize() (uint64, error)   { return r.field(native.FieldImageSize) }
func (r *GrabResult) BlockID() (uint64, error)     { return r.field(native.FieldBlockID) }
func (r *GrabResult) TimeStamp() (uint64, error)   { return r.field(native.FieldTimeStamp) }

// Stride returns the number of bytes per image line. It fails with
// LogicalError for packed formats whose lines do not end on a byte.
func (r *GrabResult) Stride() (uint64, error) {
	return resultGet(r, func() (uint64, error) { return r.sdk.GrabStride(r.h) })
}

// Buffer borrows the image bytes until the next retrieval into r or its
// release.
func (r *GrabResult) Buffer() (*BufferView, error) {
	data, err := resultGet(r, func() ([]byte, error) { return r.sdk.GrabBuffer(r.h) })
	if err != nil {
		return nil, err
	}
	return &BufferView{data: data, owner: r.life.borrow()}, nil
}

// WithBuffer calls fn with the image bytes. fn must not keep the slice.
func (r *GrabResult) WithBuffer(fn func([]byte) error) error {
	v, err := r.Buffer()
	if err != nil {
		return err
	}
	return fn(v.data)
}

// CopyBuffer returns a copy of the image bytes that the caller owns.
func (r *GrabResult) CopyBuffer() ([]byte, error) {
	v, err := r.Buffer()
	if err != nil {
		return nil, err
	}
	return v.Copy()
}

// ChunkDataNodeMap returns the chunk features of the current result, such as
// ChunkTimestamp. It is invalidated with the result's buffer.
func (r *GrabResult) ChunkDataNodeMap() (*NodeMap, error) {
	h, err := resultGet(r, func() (native.Handle, error) { return r.sdk.ChunkDataNodeMap(r.h) })
	if err != nil {
		return nil, err
	}
	return &NodeMap{sdk: r.sdk, h: h, owner: r.life.borrow(), name: "chunk data"}, nil
}

// BufferView is a borrowed view of a result's image bytes.
type BufferView struct {
	data  []byte
	owner borrow
}

// Bytes returns the borrowed bytes, or ErrInvalidated once the result moved
// on. The slice must not be used after that.
func (v *BufferView) Bytes() ([]byte, error) {
	if err := v.owner.valid(); err != nil {
		return nil, err
	}
	return v.data, nil
}

// Len returns the view's length, or 0 once invalidated.
func (v *BufferView) Len() int {
	if v.owner.valid() != nil {
		return 0
	}
	return len(v.data)
}

// Copy returns an owned copy of the bytes.
func (v *BufferView) Copy() ([]byte, error) {
	b, err := v.Bytes()
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}
