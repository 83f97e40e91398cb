//go:build !riscv64

package cpu

import "unsafe"

// This file provides pure-Go stand-ins for the riscv64 primitives so the
// kernel packages can be compiled and unit-tested on the build host. The
// stubs model just enough CSR state for the tests that exercise them.

var (
	stubSatp     uintptr
	stubIntrOn   bool
	stubTime     uint64
	stubDeadline uint64
)

// EnableInterrupts enables supervisor interrupt handling.
func EnableInterrupts() { stubIntrOn = true }

// DisableInterrupts disables supervisor interrupt handling.
func DisableInterrupts() { stubIntrOn = false }

// Halt stops instruction execution.
func Halt() {
	for {
	}
}

// WaitForInterrupt stalls the hart until the next interrupt arrives.
func WaitForInterrupt() {}

// FlushTLBEntry flushes the TLB entries for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr) {}

// FlushTLB flushes all TLB entries.
func FlushTLB() {}

// SwitchTranslationRoot loads the supplied value into the satp register and
// flushes the TLB.
func SwitchTranslationRoot(satp uintptr) { stubSatp = satp }

// ActiveTranslationRoot returns the current contents of the satp register.
func ActiveTranslationRoot() uintptr { return stubSatp }

// ReadSCause returns the value stored in the scause register.
func ReadSCause() uint64 { return 0 }

// ReadSTval returns the value stored in the stval register.
func ReadSTval() uintptr { return 0 }

// WriteSTvec installs the supplied address as the trap vector entry point.
func WriteSTvec(vecAddr uintptr) {}

// WriteSScratch stores the supplied value into the sscratch register.
func WriteSScratch(val uintptr) {}

// EnableTimerInterrupt sets the STIE bit in the sie register so pending
// supervisor timer interrupts are delivered.
func EnableTimerInterrupt() {}

// ReadTime returns a monotonically increasing fake time value.
func ReadTime() uint64 {
	stubTime++
	return stubTime
}

// SetTimer records the next timer interrupt deadline.
func SetTimer(deadline uint64) { stubDeadline = deadline }

// TrapVectorAddr returns the address of the trap entry stub.
func TrapVectorAddr() uintptr { return 0 }

// IdleThreadEntry returns the entry address for the idle loop.
func IdleThreadEntry() uintptr {
	fn := idleLoop
	return **(**uintptr)(unsafe.Pointer(&fn))
}

func idleLoop() {
	for {
	}
}

// ResumeFrame restores the supplied trap frame. The host stub cannot
// transfer control to a saved context.
func ResumeFrame(frame *TrapFrame) {
	panic("cpu: ResumeFrame is not supported on the build host")
}
