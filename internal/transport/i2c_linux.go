//go:build linux

package transport

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// I2C ioctl requests and SMBus transfer parameters, from
// include/uapi/linux/i2c.h and i2c-dev.h.
const (
	i2cSlave = 0x0703
	i2cSMBus = 0x0720

	smbusRead     = 1
	smbusByteData = 2
)

// smbusIoctlData mirrors struct i2c_smbus_ioctl_data.
type smbusIoctlData struct {
	readWrite uint8
	command   uint8
	size      uint32
	data      *smbusData
}

// smbusData mirrors union i2c_smbus_data (block is the largest member).
type smbusData struct {
	block [34]byte
}

// I2CDevice reads controller registers through a Linux /dev/i2c-N character
// device using SMBus byte-data transfers, the same transfer the kernel
// driver equivalent would issue.
type I2CDevice struct {
	f    *os.File
	addr uint8
	bus  string
}

// OpenI2C opens /dev/i2c-<bus> and binds the 7-bit slave address.
func OpenI2C(bus int, addr uint8) (*I2CDevice, error) {
	if addr < 0x08 || addr > 0x77 {
		return nil, fmt.Errorf("transport: slave address 0x%02x outside 7-bit range", addr)
	}
	path := fmt.Sprintf("/dev/i2c-%d", bus)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", path, err)
	}

	if err := unix.IoctlSetInt(int(f.Fd()), i2cSlave, int(addr)); err != nil {
		f.Close()
		return nil, fmt.Errorf("transport: bind slave 0x%02x on %s: %w", addr, path, err)
	}

	return &I2CDevice{f: f, addr: addr, bus: path}, nil
}

// ReadRegister performs an SMBus read-byte-data transfer for the register.
func (d *I2CDevice) ReadRegister(addr uint8) (uint8, error) {
	var data smbusData
	req := smbusIoctlData{
		readWrite: smbusRead,
		command:   addr,
		size:      smbusByteData,
		data:      &data,
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), i2cSMBus, uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		return 0, readErr(addr, errno)
	}
	return data.block[0], nil
}

// String identifies the device for logs and status output.
func (d *I2CDevice) String() string {
	return fmt.Sprintf("%s@0x%02x", d.bus, d.addr)
}

// Close releases the bus file descriptor.
func (d *I2CDevice) Close() error {
	return d.f.Close()
}
