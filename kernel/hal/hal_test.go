package hal

import (
	"io"
	"strings"
	"testing"

	"github.com/silent-rain/arceos/device"
	"github.com/silent-rain/arceos/kernel"
	"github.com/silent-rain/arceos/kernel/kfmt"
)

type fakeConsole struct {
	buf []byte
}

func (c *fakeConsole) Write(p []byte) (int, error) {
	c.buf = append(c.buf, p...)
	return len(p), nil
}

func (c *fakeConsole) DriverName() string                      { return "fake_console" }
func (c *fakeConsole) DriverVersion() (uint16, uint16, uint16) { return 1, 0, 0 }
func (c *fakeConsole) DriverInit(_ io.Writer) *kernel.Error    { return nil }

type fakeTicker struct {
	ackCount int
}

func (t *fakeTicker) DriverName() string                      { return "fake_ticker" }
func (t *fakeTicker) DriverVersion() (uint16, uint16, uint16) { return 1, 0, 0 }
func (t *fakeTicker) DriverInit(_ io.Writer) *kernel.Error    { return nil }
func (t *fakeTicker) Ack()                                    { t.ackCount++ }

func TestDetectHardware(t *testing.T) {
	defer func() {
		devices = managedDevices{}
		kfmt.SetOutputSink(nil)
	}()

	var (
		console = &fakeConsole{}
		ticker  = &fakeTicker{}
		initErr = &kernel.Error{Module: "broken_dev", Message: "device wedged"}
	)

	drivers := device.DriverInfoList{
		&device.DriverInfo{
			Order: device.DetectOrderNormal,
			Probe: func() device.Driver { return ticker },
		},
		&device.DriverInfo{
			Order: device.DetectOrderEarly,
			Probe: func() device.Driver { return console },
		},
		&device.DriverInfo{
			Order: device.DetectOrderNormal,
			Probe: func() device.Driver { return nil },
		},
		&device.DriverInfo{
			Order: device.DetectOrderLast,
			Probe: func() device.Driver {
				return &brokenDriver{err: initErr}
			},
		},
	}

	probe(drivers)

	if got := ActiveConsole(); got != console {
		t.Fatalf("expected the console driver to be selected as the active console; got %v", got)
	}

	if got := ActiveTicker(); got != device.TickSource(ticker) {
		t.Fatalf("expected the ticker driver to be selected as the active tick source; got %v", got)
	}

	if exp := 3; len(devices.activeDrivers) != exp {
		t.Fatalf("expected %d active drivers; got %d", exp, len(devices.activeDrivers))
	}

	out := string(console.buf)
	for _, exp := range []string{
		"[hal] fake_console(1.0.0): initialized\n",
		"[hal] fake_ticker(1.0.0): initialized\n",
		"[hal] broken_dev(0.0.1): init failed: device wedged\n",
	} {
		if !strings.Contains(out, exp) {
			t.Errorf("expected probe output to contain %q; output:\n%s", exp, out)
		}
	}
}

func TestOnDriverInitKeepsFirstMatch(t *testing.T) {
	defer func() {
		devices = managedDevices{}
		kfmt.SetOutputSink(nil)
	}()

	first := &fakeConsole{}
	onDriverInit(first)
	onDriverInit(&fakeConsole{})

	if got := ActiveConsole(); got != first {
		t.Fatalf("expected the first detected console to remain active; got %v", got)
	}

	firstTicker := &fakeTicker{}
	onDriverInit(firstTicker)
	onDriverInit(&fakeTicker{})

	if got := ActiveTicker(); got != device.TickSource(firstTicker) {
		t.Fatalf("expected the first detected tick source to remain active; got %v", got)
	}
}

type brokenDriver struct {
	err *kernel.Error
}

func (d *brokenDriver) DriverName() string                      { return "broken_dev" }
func (d *brokenDriver) DriverVersion() (uint16, uint16, uint16) { return 0, 0, 1 }
func (d *brokenDriver) DriverInit(_ io.Writer) *kernel.Error    { return d.err }
