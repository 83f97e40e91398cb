package device

import (
	"io"

	"github.com/silent-rain/arceos/kernel"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error
}

// TickSource is implemented by drivers that raise the periodic timer
// interrupt which drives preemption.
type TickSource interface {
	Driver

	// Ack clears the pending timer interrupt and arms the next tick
	// deadline.
	Ack()
}

// ProbeFn is a function that scans for the presence of a particular piece
// of hardware and returns a driver for it.
type ProbeFn func() Driver

// DetectOrder specifies when each driver probe runs relative to the other
// registered drivers.
type DetectOrder int8

const (
	// DetectOrderEarly drivers are probed before all others. The console
	// driver uses it so diagnostics reach the outside world as soon as
	// possible.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderNormal is the default detection order.
	DetectOrderNormal DetectOrder = 0

	// DetectOrderLast drivers are probed after everything else.
	DetectOrderLast DetectOrder = 127
)

// DriverInfo associates a driver probe with its detection order.
type DriverInfo struct {
	Order DetectOrder
	Probe ProbeFn
}

// DriverInfoList is a list of registered drivers that can be sorted by
// detection order.
type DriverInfoList []*DriverInfo

// Len returns the number of entries in the list.
func (l DriverInfoList) Len() int { return len(l) }

// Less reports whether entry i must be probed before entry j.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

// Swap exchanges two list entries.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

var registeredDrivers DriverInfoList

// RegisterDriver adds a driver to the list that DriverList returns. It is
// expected to be called from driver package init functions.
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the list of registered drivers.
func DriverList() DriverInfoList {
	return registeredDrivers
}
