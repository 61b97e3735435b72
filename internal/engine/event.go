package engine

import (
	"fmt"

	"lyrad/internal/transport"
)

// Kind classifies one FIFO slot.
type Kind uint8

const (
	// KindNone marks an empty slot; the drain loop stops on it.
	KindNone Kind = transport.FIFOKindNone
	// KindPress is a key-down transition.
	KindPress Kind = transport.FIFOKindPress
	// KindHold is the hardware auto-repeat signal. It is consumed without
	// output; the host input layer synthesizes repeat on its own, and
	// promoting holds to presses causes stuck keys when a release is lost.
	KindHold Kind = transport.FIFOKindHold
	// KindRelease is a key-up transition.
	KindRelease Kind = transport.FIFOKindRel
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindPress:
		return "press"
	case KindHold:
		return "hold"
	case KindRelease:
		return "release"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ScanEvent is one decoded FIFO slot.
type ScanEvent struct {
	Kind Kind
	Code uint8
}

// DecodeError reports a malformed FIFO byte or an out-of-range scan code.
// The offending slot is dropped; draining continues.
type DecodeError struct {
	Raw  uint8
	Code uint8
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("engine: bad fifo slot 0x%02x (scan code %d)", e.Raw, e.Code)
}

// DecodeFIFO splits a raw FIFO byte into kind and scan code. The two low
// bits carry the kind, the six high bits the code. The code is not range
// checked here; callers validate against the keymap before any lookup.
func DecodeFIFO(b uint8) ScanEvent {
	return ScanEvent{
		Kind: Kind(b & transport.FIFOKindMask),
		Code: b >> transport.FIFOCodeShift,
	}
}
