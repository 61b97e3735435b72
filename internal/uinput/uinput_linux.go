//go:build linux

// Package uinput forwards translated input events to the kernel through
// /dev/uinput virtual devices.
//
// Two devices are registered: a keyboard carrying every key the layers can
// produce plus the power button, and a mouse carrying relative motion and
// the three buttons. Splitting them keeps each device's capability set
// honest, so libinput classifies both correctly.
package uinput

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"lyrad/internal/keymap"
)

// uinput ioctl requests, from include/uapi/linux/uinput.h.
const (
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiDevSetup   = 0x405c5503
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiSetRelBit  = 0x40045566
	uiSetMscBit  = 0x40045568
)

// Event types and codes from include/uapi/linux/input-event-codes.h.
const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02
	evMsc = 0x04

	synReport = 0
	relX      = 0
	relY      = 1
	mscScan   = 4
)

// Virtual device identity. The vendor/product pair is arbitrary but stable
// so udev rules can match it.
const (
	busVirtual = 0x06
	vendorID   = 0x1209
	productID  = 0x6c79
)

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type devSetup struct {
	ID           inputID
	Name         [80]byte
	FFEffectsMax uint32
}

type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// device is one registered uinput device.
type device struct {
	f    *os.File
	name string
}

func ioctl(fd uintptr, req uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func setBit(fd uintptr, req uintptr, bit int) error {
	return ioctl(fd, req, uintptr(bit))
}

// newDevice opens /dev/uinput, applies the capability setup and creates the
// device node.
func newDevice(name string, capabilities func(fd uintptr) error) (*device, error) {
	f, err := os.OpenFile("/dev/uinput", os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("uinput: open /dev/uinput: %w", err)
	}
	fd := f.Fd()

	if err := capabilities(fd); err != nil {
		f.Close()
		return nil, fmt.Errorf("uinput: set capabilities for %s: %w", name, err)
	}

	var setup devSetup
	setup.ID = inputID{Bustype: busVirtual, Vendor: vendorID, Product: productID, Version: 1}
	copy(setup.Name[:], name)
	if err := ioctl(fd, uiDevSetup, uintptr(unsafe.Pointer(&setup))); err != nil {
		f.Close()
		return nil, fmt.Errorf("uinput: setup %s: %w", name, err)
	}
	if err := ioctl(fd, uiDevCreate, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("uinput: create %s: %w", name, err)
	}
	return &device{f: f, name: name}, nil
}

// emit writes a batch of events followed by a SYN_REPORT in one write, so
// the kernel sees the report atomically.
func (d *device) emit(events ...inputEvent) error {
	events = append(events, inputEvent{Type: evSyn, Code: synReport})
	buf := make([]byte, 0, len(events)*int(unsafe.Sizeof(inputEvent{})))
	for i := range events {
		b := (*[unsafe.Sizeof(inputEvent{})]byte)(unsafe.Pointer(&events[i]))
		buf = append(buf, b[:]...)
	}
	if _, err := d.f.Write(buf); err != nil {
		return fmt.Errorf("uinput: write to %s: %w", d.name, err)
	}
	return nil
}

func (d *device) close() error {
	ioctl(d.f.Fd(), uiDevDestroy, 0)
	return d.f.Close()
}

// Sink implements the engine's event sink on a virtual keyboard and mouse.
type Sink struct {
	kbd   *device
	mouse *device
}

// NewSink registers both virtual devices. The keyboard's capability set is
// derived from the active layers, so an overlay that introduces a new key
// is announced to the kernel as well.
func NewSink(layers *keymap.Layers) (*Sink, error) {
	kbd, err := newDevice("Lyra Keyboard", func(fd uintptr) error {
		if err := setBit(fd, uiSetEvBit, evKey); err != nil {
			return err
		}
		if err := setBit(fd, uiSetEvBit, evMsc); err != nil {
			return err
		}
		if err := setBit(fd, uiSetMscBit, mscScan); err != nil {
			return err
		}
		for _, k := range layers.AllKeys() {
			if k.IsButton() {
				continue
			}
			if err := setBit(fd, uiSetKeyBit, int(k)); err != nil {
				return err
			}
		}
		return setBit(fd, uiSetKeyBit, int(keymap.KeyPower))
	})
	if err != nil {
		return nil, err
	}

	mouse, err := newDevice("Lyra Mouse", func(fd uintptr) error {
		if err := setBit(fd, uiSetEvBit, evKey); err != nil {
			return err
		}
		if err := setBit(fd, uiSetEvBit, evRel); err != nil {
			return err
		}
		for _, code := range []int{relX, relY} {
			if err := setBit(fd, uiSetRelBit, code); err != nil {
				return err
			}
		}
		for _, b := range []keymap.Key{keymap.BtnLeft, keymap.BtnRight, keymap.BtnMiddle} {
			if err := setBit(fd, uiSetKeyBit, int(b)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		kbd.close()
		return nil, err
	}

	return &Sink{kbd: kbd, mouse: mouse}, nil
}

// EmitKey forwards one key transition. Mouse buttons go to the mouse
// device; everything else goes to the keyboard. A non-negative scan code is
// reported as MSC_SCAN ahead of the key event, mirroring what a hardware
// keyboard driver reports.
func (s *Sink) EmitKey(key keymap.Key, pressed bool, scan int) error {
	value := int32(0)
	if pressed {
		value = 1
	}
	if key.IsButton() {
		return s.mouse.emit(inputEvent{Type: evKey, Code: uint16(key), Value: value})
	}
	if scan >= 0 {
		return s.kbd.emit(
			inputEvent{Type: evMsc, Code: mscScan, Value: int32(scan)},
			inputEvent{Type: evKey, Code: uint16(key), Value: value},
		)
	}
	return s.kbd.emit(inputEvent{Type: evKey, Code: uint16(key), Value: value})
}

// EmitRel forwards relative pointer motion.
func (s *Sink) EmitRel(dx, dy int32) error {
	events := make([]inputEvent, 0, 2)
	if dx != 0 {
		events = append(events, inputEvent{Type: evRel, Code: relX, Value: dx})
	}
	if dy != 0 {
		events = append(events, inputEvent{Type: evRel, Code: relY, Value: dy})
	}
	if len(events) == 0 {
		return nil
	}
	return s.mouse.emit(events...)
}

// Close destroys both virtual devices.
func (s *Sink) Close() error {
	err := s.kbd.close()
	if merr := s.mouse.close(); err == nil {
		err = merr
	}
	return err
}
