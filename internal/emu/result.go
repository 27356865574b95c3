package emu

import (
	"sync"

	"github.com/cjeanneret/PylonGo/internal/native"
)

// result is the emulated grab result slot. It references at most one pool
// buffer at a time.
type result struct {
	mu     sync.Mutex
	g      *grabber
	buf    *buffer
	cv     chunkValues
	chunks *nodeMap
	// chunkHandle is the table entry of chunks, registered on first use.
	chunkHandle native.Handle
}

func newResult() *result {
	r := &result{}
	r.chunks = newNodeMap("ChunkData", &r.mu, func() {
		if r.buf == nil {
			panic(native.Access("The chunk data node map is not available. The grab result is empty."))
		}
	})
	return r
}

// detach returns the referenced buffer to its pool.
func (r *result) detach() {
	r.mu.Lock()
	b, g := r.buf, r.g
	r.buf, r.g = nil, nil
	r.chunks.nodes = make(map[string]*node)
	r.chunks.order = nil
	r.mu.Unlock()
	if b != nil {
		g.release(b)
	}
}

func (r *result) attach(g *grabber, b *buffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.g, r.buf = g, b
	r.cv = chunkValues{}
	if !b.failed && b.sess.chunkMaps {
		r.cv = parseChunks(b.data[:b.payload])
	}
	cv := &r.cv
	for _, name := range chunkNames {
		if !cv.present[name] {
			continue
		}
		switch name {
		case "Timestamp":
			r.chunks.add(readOnlyInt("ChunkTimestamp", func() int64 { return cv.timestamp }))
		case "Framecounter":
			r.chunks.add(readOnlyInt("ChunkFramecounter", func() int64 { return cv.framecounter }))
		case "ExposureTime":
			r.chunks.add(readOnlyFloat("ChunkExposureTime", func() float64 { return cv.exposure }, "us"))
		case "PayloadCRC16":
			r.chunks.add(readOnlyInt("ChunkPayloadCRC16", func() int64 { return cv.crc }))
		}
	}
}

// current returns the attached buffer. Caller holds r.mu.
func (r *result) current() *buffer {
	if r.buf == nil {
		panic(native.Runtime("The grab result is not valid. Retrieve a result first."))
	}
	return r.buf
}

func (r *result) succeeded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.current().failed
}

func (r *result) errorDescription() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current().failed {
		return errorTextIncomplete
	}
	return ""
}

func (r *result) field(f native.ResultField) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.current()
	p := b.params
	switch f {
	case native.FieldPayloadType:
		if len(p.chunks) > 0 {
			return payloadTypeChunkData
		}
		return payloadTypeImage
	case native.FieldPixelType:
		return uint64(p.format.code)
	case native.FieldWidth:
		return uint64(p.width)
	case native.FieldHeight:
		return uint64(p.height)
	case native.FieldOffsetX:
		return uint64(p.offsetX)
	case native.FieldOffsetY:
		return uint64(p.offsetY)
	case native.FieldPaddingX, native.FieldPaddingY:
		return 0
	case native.FieldPayloadSize:
		return uint64(b.payload)
	case native.FieldBufferSize:
		return uint64(len(b.data))
	case native.FieldImageSize:
		return uint64(b.imageLen)
	case native.FieldBlockID:
		return b.blockID
	case native.FieldTimeStamp:
		return b.timestamp
	case native.FieldErrorCode:
		if b.failed {
			return errorCodeIncomplete
		}
		return 0
	}
	panic(native.InvalidArgument("unknown grab result field %d", int(f)))
}

func (r *result) stride() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.current().params
	s, ok := p.format.stride(p.width)
	if !ok {
		panic(native.LogicalError("The stride is not available for pixel format %s with a width of %d. Lines do not end on a byte boundary.", p.format.name, p.width))
	}
	return uint64(s)
}

func (r *result) bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.current()
	return b.data[:b.imageLen]
}

// GenTL payload type values.
const (
	payloadTypeImage     = 0x0001
	payloadTypeChunkData = 0x0004
)
