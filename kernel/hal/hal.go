package hal

import (
	"bytes"
	"io"
	"sort"

	"github.com/silent-rain/arceos/device"
	"github.com/silent-rain/arceos/kernel/kfmt"
	"github.com/silent-rain/arceos/kernel/trap"
)

// managedDevices contains the devices discovered by the HAL.
type managedDevices struct {
	activeConsole io.Writer
	activeTicker  device.TickSource

	// activeDrivers tracks all initialized device drivers.
	activeDrivers []device.Driver
}

var (
	devices managedDevices
	strBuf  bytes.Buffer
)

// ActiveConsole returns the io.Writer for the detected system console or
// nil if no console hardware was found.
func ActiveConsole() io.Writer {
	return devices.activeConsole
}

// ActiveTicker returns the detected scheduler tick source or nil if no
// timer hardware was found.
func ActiveTicker() device.TickSource {
	return devices.activeTicker
}

// DetectHardware probes for hardware devices and initializes the
// appropriate drivers.
func DetectHardware() {
	// Get driver list and sort by detection priority
	drivers := device.DriverList()
	sort.Sort(drivers)

	probe(drivers)
}

// probe executes the probe function for each driver and invokes
// onDriverInit for each successfully initialized driver.
func probe(driverInfoList device.DriverInfoList) {
	var w kfmt.PrefixWriter

	for _, info := range driverInfoList {
		// The console driver may register an output sink mid-probe.
		w.Sink = kfmt.GetOutputSink()

		drv := info.Probe()
		if drv == nil {
			continue
		}

		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w.Prefix = strBuf.Bytes()

		if err := drv.DriverInit(&w); err != nil {
			kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(&w, "initialized\n")
		onDriverInit(drv)
		devices.activeDrivers = append(devices.activeDrivers, drv)
	}
}

// onDriverInit is invoked by probe() whenever a piece of hardware is
// detected and successfully initialized. The first console becomes the
// kernel's output sink; the first tick source is wired into the trap
// dispatcher's timer acknowledge hook.
func onDriverInit(drv device.Driver) {
	switch drvImpl := drv.(type) {
	case device.TickSource:
		if devices.activeTicker != nil {
			return
		}

		devices.activeTicker = drvImpl
		trap.SetTimerAck(drvImpl.Ack)
	case io.Writer:
		if devices.activeConsole != nil {
			return
		}

		devices.activeConsole = drvImpl
		kfmt.SetOutputSink(drvImpl)
	}
}
