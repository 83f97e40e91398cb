// Package timer drives the supervisor timer through the SBI set_timer
// call. Each acknowledged tick re-arms the comparator one interval ahead,
// producing the periodic interrupt that bounds task time slices.
package timer

import (
	"io"

	"github.com/silent-rain/arceos/device"
	"github.com/silent-rain/arceos/kernel"
	"github.com/silent-rain/arceos/kernel/cpu"
)

// DefaultIntervalCycles is the tick period in timebase cycles. The QEMU
// virt machine runs its timebase at 10MHz, making this a 10ms tick.
const DefaultIntervalCycles = uint64(100000)

var (
	// readTimeFn and setTimerFn are overridden by tests; the real
	// implementations touch CSRs and fire SBI calls that only exist on
	// the target hardware.
	readTimeFn      = cpu.ReadTime
	setTimerFn      = cpu.SetTimer
	enableTimerIntr = cpu.EnableTimerInterrupt
)

// Device generates the periodic scheduler tick.
type Device struct {
	interval uint64
}

// DriverName returns the name of the driver.
func (d *Device) DriverName() string { return "sbi-timer" }

// DriverVersion returns the driver version.
func (d *Device) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DriverInit arms the first tick deadline and unmasks the supervisor timer
// interrupt source.
func (d *Device) DriverInit(_ io.Writer) *kernel.Error {
	d.Ack()
	enableTimerIntr()
	return nil
}

// Ack clears the pending timer interrupt by programming the comparator one
// interval into the future.
func (d *Device) Ack() {
	setTimerFn(readTimeFn() + d.interval)
}

func probeForTimer() device.Driver {
	return &Device{interval: DefaultIntervalCycles}
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderNormal,
		Probe: probeForTimer,
	})
}
