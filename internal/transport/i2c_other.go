//go:build !linux

package transport

import "errors"

// I2CDevice exists only on Linux; other platforms get the simulator.
type I2CDevice struct{}

func OpenI2C(bus int, addr uint8) (*I2CDevice, error) {
	return nil, errors.New("transport: i2c-dev requires linux")
}

func (d *I2CDevice) ReadRegister(addr uint8) (uint8, error) {
	return 0, errors.New("transport: i2c-dev requires linux")
}

func (d *I2CDevice) String() string { return "i2c-unsupported" }

func (d *I2CDevice) Close() error { return nil }
