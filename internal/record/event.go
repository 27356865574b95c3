package record

import "time"

// Kind classifies a recorded event.
type Kind uint8

const (
	KindSessionStart Kind = 0
	KindFrame        Kind = 1
	KindSessionEnd   Kind = 2
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSessionStart:
		return "START"
	case KindFrame:
		return "FRAME"
	case KindSessionEnd:
		return "END"
	default:
		return "UNKNOWN"
	}
}

// Event is one entry of a grab recording. CBOR encoding uses integer keys
// for compactness; exactly one payload is set.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`
	Session   string    `cbor:"2,keyasint"` // UUID
	Kind      Kind      `cbor:"3,keyasint"`

	Start *StartEvent `cbor:"10,keyasint,omitempty"`
	Frame *FrameEvent `cbor:"11,keyasint,omitempty"`
	End   *EndEvent   `cbor:"12,keyasint,omitempty"`
}

// StartEvent records the device and grab options of a session.
type StartEvent struct {
	Device   string `cbor:"1,keyasint"`
	Serial   string `cbor:"2,keyasint"`
	Strategy string `cbor:"3,keyasint"`
	Count    uint64 `cbor:"4,keyasint,omitempty"`
}

// FrameEvent records the metadata of one retrieved result.
type FrameEvent struct {
	Index            int    `cbor:"1,keyasint"`
	BlockID          uint64 `cbor:"2,keyasint"`
	TimeStamp        uint64 `cbor:"3,keyasint"`
	Succeeded        bool   `cbor:"4,keyasint"`
	Width            uint32 `cbor:"5,keyasint,omitempty"`
	Height           uint32 `cbor:"6,keyasint,omitempty"`
	PixelType        uint32 `cbor:"7,keyasint,omitempty"`
	Size             int    `cbor:"8,keyasint,omitempty"`
	ErrorCode        uint32 `cbor:"9,keyasint,omitempty"`
	ErrorDescription string `cbor:"10,keyasint,omitempty"`
}

// EndEvent records the outcome of a session.
type EndEvent struct {
	Retrieved  int    `cbor:"1,keyasint"`
	Succeeded  int    `cbor:"2,keyasint"`
	Failed     int    `cbor:"3,keyasint"`
	Timeouts   int    `cbor:"4,keyasint"`
	DurationNs int64  `cbor:"5,keyasint"`
	Error      string `cbor:"6,keyasint,omitempty"`
}
