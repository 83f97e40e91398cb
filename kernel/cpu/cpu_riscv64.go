//go:build riscv64

package cpu

// EnableInterrupts enables supervisor interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables supervisor interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution by entering an endless wfi loop.
func Halt()

// WaitForInterrupt stalls the hart until the next interrupt arrives.
func WaitForInterrupt()

// FlushTLBEntry flushes the TLB entries for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// FlushTLB flushes all TLB entries.
func FlushTLB()

// SwitchTranslationRoot loads the supplied value into the satp register and
// flushes the TLB. The value encodes both the translation mode and the
// physical frame of the root page table.
func SwitchTranslationRoot(satp uintptr)

// ActiveTranslationRoot returns the current contents of the satp register.
func ActiveTranslationRoot() uintptr

// ReadSCause returns the value stored in the scause register.
func ReadSCause() uint64

// ReadSTval returns the value stored in the stval register.
func ReadSTval() uintptr

// WriteSTvec installs the supplied address as the trap vector entry point.
func WriteSTvec(vecAddr uintptr)

// WriteSScratch stores the supplied value into the sscratch register. The
// trap entry code expects sscratch to point at the current task's TrapFrame.
func WriteSScratch(val uintptr)

// EnableTimerInterrupt sets the STIE bit in the sie register so pending
// supervisor timer interrupts are delivered.
func EnableTimerInterrupt()

// ReadTime returns the current value of the time CSR.
func ReadTime() uint64

// SetTimer programs the next timer interrupt deadline via the firmware
// set-timer call (SBI legacy extension 0).
func SetTimer(deadline uint64)

// TrapVectorAddr returns the address of the assembly trap entry stub which
// must be installed into stvec at initialization time.
func TrapVectorAddr() uintptr

// IdleThreadEntry returns the entry address for the idle loop. The idle task
// frame uses it as its resume program counter.
func IdleThreadEntry() uintptr

// ResumeFrame restores the supplied trap frame and transfers control to its
// saved sepc via sret. It never returns.
func ResumeFrame(frame *TrapFrame)
