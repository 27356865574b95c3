package emu

import (
	"encoding/binary"
	"math"
)

// pixelFormat describes the memory layout of one PFNC pixel format.
type pixelFormat struct {
	name     string
	code     uint32
	bits     int // bits per pixel in memory
	depth    int // significant bits per sample
	channels int
}

var pixelFormats = []pixelFormat{
	{"Mono8", 0x01080001, 8, 8, 1},
	{"Mono10", 0x01100003, 16, 10, 1},
	{"Mono10p", 0x010A0046, 10, 10, 1},
	{"Mono12", 0x01100005, 16, 12, 1},
	{"Mono12p", 0x010C0047, 12, 12, 1},
	{"Mono16", 0x01100007, 16, 16, 1},
	{"BayerRG8", 0x01080009, 8, 8, 1},
	{"BayerRG12", 0x01100011, 16, 12, 1},
	{"RGB8", 0x02180014, 24, 8, 3},
	{"BGR8", 0x02180015, 24, 8, 3},
}

func pixelFormatNames() []string {
	names := make([]string, len(pixelFormats))
	for i, pf := range pixelFormats {
		names[i] = pf.name
	}
	return names
}

func lookupPixelFormat(name string) pixelFormat {
	for _, pf := range pixelFormats {
		if pf.name == name {
			return pf
		}
	}
	return pixelFormats[0]
}

// stride returns the bytes per line, or false when a line does not end on
// a byte boundary.
func (pf pixelFormat) stride(width int64) (int64, bool) {
	bits := width * int64(pf.bits)
	if bits%8 != 0 {
		return 0, false
	}
	return bits / 8, true
}

func (pf pixelFormat) imageSize(width, height int64) int64 {
	return (width*height*int64(pf.bits) + 7) / 8
}

// frameParams is the snapshot of device state a frame is rendered from.
type frameParams struct {
	width, height int64
	offsetX       int64
	offsetY       int64
	format        pixelFormat
	exposureUs    float64
	gainDB        float64
	blackLevel    float64
	gamma         float64
	testImage     string
	chunks        []string
	frameCounter  uint64
	timestampNs   uint64
	clearBuffer   bool
	truncate      bool
}

// render writes the image described by p into buf. It returns the number of
// image bytes written.
func render(buf []byte, p frameParams) int {
	size := int(p.format.imageSize(p.width, p.height))
	if size > len(buf) {
		size = len(buf)
	}
	img := buf[:size]
	if p.clearBuffer {
		clear(img)
	}
	limit := size
	if p.truncate {
		limit = size / 2
	}
	scale := brightness(p)
	maxV := uint32(1)<<p.format.depth - 1
	var bw bitWriter
	bw.buf = img[:limit]
	for y := int64(0); y < p.height; y++ {
		for x := int64(0); x < p.width; x++ {
			level := sample(p, x+p.offsetX, y+p.offsetY)
			v := uint32(math.Min(1, math.Max(0, level*scale+p.blackLevel/255)) * float64(maxV))
			for c := 0; c < p.format.channels; c++ {
				cv := v
				if p.format.channels == 3 {
					cv = channelTint(v, c, maxV)
				}
				if !bw.write(cv, p.format.bits/p.format.channels) {
					return limit
				}
			}
		}
	}
	return limit
}

func brightness(p frameParams) float64 {
	if p.testImage != "Off" {
		return 1
	}
	gain := math.Pow(10, p.gainDB/20)
	return p.exposureUs / 10000 * gain
}

// sample returns the normalized level of the pattern at sensor coordinates.
func sample(p frameParams, x, y int64) float64 {
	var v float64
	switch p.testImage {
	case "Testimage1":
		v = float64((x+y)%256) / 255
	case "Testimage2":
		v = float64((x+y+int64(p.frameCounter))%256) / 255
	case "Testimage3":
		if (x/32+y/32)%2 == 0 {
			v = 1
		}
	default:
		v = 0.5 + 0.25*math.Sin(float64(x)/40+float64(p.frameCounter)/10)*math.Cos(float64(y)/40)
	}
	if p.gamma > 0 && p.gamma != 1 {
		v = math.Pow(v, 1/p.gamma)
	}
	return v
}

func channelTint(v uint32, channel int, maxV uint32) uint32 {
	switch channel {
	case 0:
		return v
	case 1:
		return maxV - v
	}
	return v / 2
}

// bitWriter packs samples LSB first, the PFNC layout of the "p" formats.
type bitWriter struct {
	buf []byte
	pos int // bit position
}

func (w *bitWriter) write(v uint32, bits int) bool {
	switch {
	case bits == 8 && w.pos%8 == 0:
		if w.pos/8 >= len(w.buf) {
			return false
		}
		w.buf[w.pos/8] = byte(v)
		w.pos += 8
	case bits == 16 && w.pos%8 == 0:
		i := w.pos / 8
		if i+2 > len(w.buf) {
			return false
		}
		binary.LittleEndian.PutUint16(w.buf[i:], uint16(v))
		w.pos += 16
	default:
		for b := 0; b < bits; b++ {
			i := w.pos / 8
			if i >= len(w.buf) {
				return false
			}
			if v&(1<<b) != 0 {
				w.buf[i] |= 1 << (w.pos % 8)
			} else {
				w.buf[i] &^= 1 << (w.pos % 8)
			}
			w.pos++
		}
	}
	return true
}
