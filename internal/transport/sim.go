package transport

import (
	"sync"
)

// SimDevice is an in-memory controller with the same register semantics as
// the hardware: a bounded scan-event FIFO, read-clear mouse deltas, and a
// read-clear interrupt mask. It backs the engine tests and `lyrad probe
// --sim`, where no bus or peripheral exists.
type SimDevice struct {
	mu sync.Mutex

	shift, alt, fn bool
	fifo           []uint8
	overflowed     bool
	mouseX, mouseY int8
	intStatus      uint8

	// failures schedules read errors per register address.
	failures map[uint8]*failPlan

	// Reads counts register reads by address, for bounded-work assertions.
	Reads map[uint8]int
}

// simFIFOCap matches the hardware queue depth. Pushing past it sets the
// overflow interrupt and drops the event, as the firmware does.
const simFIFOCap = 15

// NewSim returns an idle simulated controller.
func NewSim() *SimDevice {
	return &SimDevice{
		failures: make(map[uint8]*failPlan),
		Reads:    make(map[uint8]int),
	}
}

// ReadRegister implements RegisterReader with hardware-faithful side
// effects: FIFO pops, delta clears, and interrupt-mask clears.
func (s *SimDevice) ReadRegister(addr uint8) (uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Reads[addr]++
	if p := s.failures[addr]; p != nil {
		if p.skip > 0 {
			p.skip--
		} else if p.n > 0 {
			p.n--
			return 0, readErr(addr, errSimulated)
		}
	}

	switch addr {
	case RegKeyStatus:
		var b uint8
		if s.shift {
			b |= KeyStatusShift
		}
		if s.alt {
			b |= KeyStatusAlt
		}
		if s.fn {
			b |= KeyStatusFn
		}
		depth := len(s.fifo)
		if depth > simFIFOCap {
			depth = simFIFOCap
		}
		b |= uint8(depth) << KeyStatusFIFOShift
		return b, nil

	case RegFIFOAccess:
		if len(s.fifo) == 0 {
			return FIFOKindNone, nil
		}
		b := s.fifo[0]
		s.fifo = s.fifo[1:]
		return b, nil

	case RegMouseX:
		v := s.mouseX
		s.mouseX = 0
		return uint8(v), nil

	case RegMouseY:
		v := s.mouseY
		s.mouseY = 0
		return uint8(v), nil

	case RegIntStatus:
		v := s.intStatus
		s.intStatus = 0
		return v, nil
	}

	return 0, readErr(addr, errBadRegister)
}

// SetModifiers sets the live modifier state and raises the matching change
// interrupts for every modifier whose level differs.
func (s *SimDevice) SetModifiers(shift, alt, fn bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shift != shift {
		s.intStatus |= IntShiftChange
	}
	if s.alt != alt {
		s.intStatus |= IntAltChange
	}
	if s.fn != fn {
		s.intStatus |= IntFnChange
	}
	s.shift, s.alt, s.fn = shift, alt, fn
}

// PushKey queues one raw scan event and raises the key-event interrupt.
// kind is one of the FIFOKind values; code occupies the six high bits.
func (s *SimDevice) PushKey(kind uint8, code uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.fifo) >= simFIFOCap {
		s.overflowed = true
		s.intStatus |= IntFIFOOverflow
		return
	}
	s.fifo = append(s.fifo, kind&FIFOKindMask|code<<FIFOCodeShift)
	s.intStatus |= IntKeyEvent
}

// PushRaw queues a raw FIFO byte without re-encoding, for malformed-slot
// tests.
func (s *SimDevice) PushRaw(b uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fifo = append(s.fifo, b)
	s.intStatus |= IntKeyEvent
}

// MoveMouse accumulates deltas and raises the mouse interrupt.
func (s *SimDevice) MoveMouse(dx, dy int8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mouseX += dx
	s.mouseY += dy
	s.intStatus |= IntMouseEvent
}

// PressPower raises the power-button change interrupt. The hardware carries
// no pressed/released encoding, only this notification.
func (s *SimDevice) PressPower() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intStatus |= IntPowerButton
}

// RaiseInterrupt ORs bits directly into the interrupt mask.
func (s *SimDevice) RaiseInterrupt(bits uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intStatus |= bits
}

// failPlan lets successful reads pass through before the failures start.
type failPlan struct {
	skip int
	n    int
}

// FailNext makes the next n reads of the register fail with ErrRead.
func (s *SimDevice) FailNext(addr uint8, n int) {
	s.FailAfter(addr, 0, n)
}

// FailAfter lets skip reads of the register succeed, then fails the n
// following ones with ErrRead.
func (s *SimDevice) FailAfter(addr uint8, skip, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[addr] = &failPlan{skip: skip, n: n}
}

// ReadCount reports how many times the register was read. Use this rather
// than the Reads map when another goroutine may be polling.
func (s *SimDevice) ReadCount(addr uint8) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Reads[addr]
}

// QueueLen reports the number of undrained FIFO entries.
func (s *SimDevice) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fifo)
}

type simError string

func (e simError) Error() string { return string(e) }

const (
	errSimulated   = simError("simulated bus failure")
	errBadRegister = simError("no such register")
)
