// Package transport provides byte-addressed register access to the Lyra
// keyboard controller.
//
// The controller exposes five one-byte registers over a slow I2C bus. Three
// of them are read-clear: reading the register destroys its contents as a
// hardware side effect, so every read belongs to exactly one consumer (the
// poll loop). All implementations are synchronous; a read either completes
// promptly or fails promptly, it never blocks a poll cycle indefinitely.
package transport

import (
	"errors"
	"fmt"
)

// Register addresses on the controller.
const (
	RegKeyStatus  = 0x00 // modifier bits + FIFO depth, non-destructive
	RegFIFOAccess = 0x01 // pops one FIFO slot per read
	RegMouseX     = 0x02 // signed 8-bit X delta, read-clear
	RegMouseY     = 0x03 // signed 8-bit Y delta, read-clear
	RegIntStatus  = 0x04 // interrupt bitmask, read clears all bits
)

// Key status register (0x00) bit layout.
const (
	KeyStatusShift = 1 << 0
	KeyStatusAlt   = 1 << 1
	KeyStatusFn    = 1 << 2

	KeyStatusFIFOMask  = 0xF0
	KeyStatusFIFOShift = 4
)

// FIFO access register (0x01) encoding: two low bits are the event kind,
// six high bits are the scan code.
const (
	FIFOKindMask  = 0x03
	FIFOKindNone  = 0x00
	FIFOKindPress = 0x01
	FIFOKindHold  = 0x02
	FIFOKindRel   = 0x03

	FIFOCodeShift = 2
)

// Interrupt status register (0x04) bit layout.
const (
	IntFIFOOverflow = 1 << 0
	IntShiftChange  = 1 << 1
	IntFnChange     = 1 << 2
	IntAltChange    = 1 << 3
	IntKeyEvent     = 1 << 4
	IntMouseEvent   = 1 << 5
	IntPowerButton  = 1 << 6
)

// ErrRead indicates a register read failed at the bus level. Reads are not
// retried inline; the poll loop skips the rest of the step and relies on the
// next scheduled cycle.
var ErrRead = errors.New("transport: register read failed")

// RegisterReader reads a single byte from a controller register.
type RegisterReader interface {
	ReadRegister(addr uint8) (uint8, error)
}

// FIFODepth extracts the informational queue depth from a key status byte.
// The depth is advisory only; the drain loop trusts the in-band empty marker,
// not this field.
func FIFODepth(status uint8) int {
	return int(status&KeyStatusFIFOMask) >> KeyStatusFIFOShift
}

func readErr(addr uint8, err error) error {
	return fmt.Errorf("%w: reg 0x%02x: %v", ErrRead, addr, err)
}
