// Package uart provides a driver for the NS16550-compatible serial port
// that the QEMU virt machine exposes. The device doubles as the system
// console: once initialized, all kernel diagnostics are routed through it.
package uart

import (
	"io"
	"unsafe"

	"github.com/silent-rain/arceos/device"
	"github.com/silent-rain/arceos/kernel"
)

// MMIOBase is the physical address of the UART register block on the QEMU
// virt machine.
const MMIOBase = uintptr(0x10000000)

// NS16550 register offsets and bits.
const (
	regTHR = uintptr(0)
	regIER = uintptr(1)
	regFCR = uintptr(2)
	regLCR = uintptr(3)
	regLSR = uintptr(5)

	lcrWordLen8 = byte(0x03)
	fcrEnable   = byte(0x01)
	lsrTHREmpty = byte(1 << 5)
)

var (
	// mmioReadFn and mmioWriteFn access the device register block. They
	// are overridden by tests which cannot touch real MMIO addresses.
	mmioReadFn = func(addr uintptr) byte {
		return *(*byte)(unsafe.Pointer(addr))
	}
	mmioWriteFn = func(addr uintptr, val byte) {
		*(*byte)(unsafe.Pointer(addr)) = val
	}
)

// Device drives one NS16550 UART. It implements io.Writer so it can be
// attached directly as the kernel's console output sink.
type Device struct {
	base uintptr
}

// DriverName returns the name of the driver.
func (d *Device) DriverName() string { return "ns16550" }

// DriverVersion returns the driver version.
func (d *Device) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DriverInit configures the port for 8n1 operation with FIFOs enabled and
// device interrupts masked; the console is driven by polled writes only.
func (d *Device) DriverInit(_ io.Writer) *kernel.Error {
	mmioWriteFn(d.base+regIER, 0)
	mmioWriteFn(d.base+regLCR, lcrWordLen8)
	mmioWriteFn(d.base+regFCR, fcrEnable)
	return nil
}

// Write implements io.Writer, pushing each byte out of the port once the
// transmit holding register drains.
func (d *Device) Write(p []byte) (int, error) {
	for _, b := range p {
		for mmioReadFn(d.base+regLSR)&lsrTHREmpty == 0 {
		}
		mmioWriteFn(d.base+regTHR, b)
	}

	return len(p), nil
}

func probeForUART() device.Driver {
	return &Device{base: MMIOBase}
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForUART,
	})
}
