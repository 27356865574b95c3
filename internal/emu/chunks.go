package emu

import (
	"encoding/binary"
	"math"
)

// Chunk identifiers written in the trailer of each chunk.
const (
	chunkIDImage        uint32 = 0x00000001
	chunkIDTimestamp    uint32 = 0x0A5A5A20
	chunkIDFramecounter uint32 = 0x0A5A5A21
	chunkIDExposureTime uint32 = 0x0A5A5A22
	chunkIDPayloadCRC16 uint32 = 0x0A5A5A23
)

var chunkNames = []string{"Timestamp", "Framecounter", "ExposureTime", "PayloadCRC16"}

var chunkIDs = map[string]uint32{
	"Timestamp":    chunkIDTimestamp,
	"Framecounter": chunkIDFramecounter,
	"ExposureTime": chunkIDExposureTime,
	"PayloadCRC16": chunkIDPayloadCRC16,
}

const chunkTrailerLen = 8

// chunkOverhead is the payload added after the image when chunks are on.
func chunkOverhead(enabled []string) int64 {
	if len(enabled) == 0 {
		return 0
	}
	return chunkTrailerLen + int64(len(enabled))*(8+chunkTrailerLen)
}

// writeChunks appends the image trailer and one chunk per enabled name
// after the image bytes. It returns the payload length.
func writeChunks(buf []byte, imageLen int, p frameParams) int {
	if len(p.chunks) == 0 {
		return imageLen
	}
	pos := imageLen
	putTrailer := func(id uint32, n int) {
		binary.BigEndian.PutUint32(buf[pos:], id)
		binary.BigEndian.PutUint32(buf[pos+4:], uint32(n))
		pos += chunkTrailerLen
	}
	putTrailer(chunkIDImage, imageLen)
	for _, name := range p.chunks {
		var v uint64
		switch name {
		case "Timestamp":
			v = p.timestampNs
		case "Framecounter":
			v = p.frameCounter
		case "ExposureTime":
			v = math.Float64bits(p.exposureUs)
		case "PayloadCRC16":
			v = uint64(crc16(buf[:imageLen]))
		}
		binary.LittleEndian.PutUint64(buf[pos:], v)
		pos += 8
		putTrailer(chunkIDs[name], 8)
	}
	return pos
}

// chunkValues holds the values parsed from a payload's chunk section.
type chunkValues struct {
	present      map[string]bool
	timestamp    int64
	framecounter int64
	exposure     float64
	crc          int64
}

// parseChunks walks the chunk trailers backwards from the end of payload.
func parseChunks(payload []byte) chunkValues {
	cv := chunkValues{present: make(map[string]bool)}
	end := len(payload)
	for end >= chunkTrailerLen {
		id := binary.BigEndian.Uint32(payload[end-8:])
		n := int(binary.BigEndian.Uint32(payload[end-4:]))
		if id == chunkIDImage || n > end-chunkTrailerLen {
			break
		}
		data := payload[end-chunkTrailerLen-n : end-chunkTrailerLen]
		if n == 8 {
			v := binary.LittleEndian.Uint64(data)
			switch id {
			case chunkIDTimestamp:
				cv.timestamp = int64(v)
				cv.present["Timestamp"] = true
			case chunkIDFramecounter:
				cv.framecounter = int64(v)
				cv.present["Framecounter"] = true
			case chunkIDExposureTime:
				cv.exposure = math.Float64frombits(v)
				cv.present["ExposureTime"] = true
			case chunkIDPayloadCRC16:
				cv.crc = int64(v)
				cv.present["PayloadCRC16"] = true
			}
		}
		end -= chunkTrailerLen + n
	}
	return cv
}

// crc16 computes CRC-16/CCITT-FALSE.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
