//go:build !linux

package uinput

import (
	"errors"

	"lyrad/internal/keymap"
)

// Sink exists only on Linux, where /dev/uinput lives.
type Sink struct{}

func NewSink(layers *keymap.Layers) (*Sink, error) {
	return nil, errors.New("uinput: virtual devices require linux")
}

func (s *Sink) EmitKey(key keymap.Key, pressed bool, scan int) error {
	return errors.New("uinput: virtual devices require linux")
}

func (s *Sink) EmitRel(dx, dy int32) error {
	return errors.New("uinput: virtual devices require linux")
}

func (s *Sink) Close() error { return nil }
