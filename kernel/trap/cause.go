package trap

// causeInterruptFlag is set in scause when the trap was taken for an
// asynchronous interrupt rather than a synchronous exception.
const causeInterruptFlag = uint64(1) << 63

// Interrupt codes reported via scause.
const (
	intSupervisorTimer    = uint64(5)
	intSupervisorExternal = uint64(9)
)

// Exception codes reported via scause.
const (
	excIllegalInstruction   = uint64(2)
	excEnvCallFromUser      = uint64(8)
	excInstructionPageFault = uint64(12)
	excLoadPageFault        = uint64(13)
	excStorePageFault       = uint64(15)
)

// CauseKind classifies why control entered the kernel.
type CauseKind uint8

const (
	// CauseSyscall is an environment call from user mode.
	CauseSyscall CauseKind = iota

	// CauseTimerInterrupt is a supervisor timer interrupt.
	CauseTimerInterrupt

	// CauseExternalInterrupt covers interrupts raised by devices through
	// the external interrupt line.
	CauseExternalInterrupt

	// CausePageFault covers instruction, load and store page faults.
	CausePageFault

	// CauseIllegalInstruction is an illegal instruction exception.
	CauseIllegalInstruction

	// CauseOtherException covers every synchronous exception the
	// dispatcher has no dedicated handling for.
	CauseOtherException
)

// String returns a human-readable version of the trap cause kind.
func (k CauseKind) String() string {
	switch k {
	case CauseSyscall:
		return "syscall"
	case CauseTimerInterrupt:
		return "timer interrupt"
	case CauseExternalInterrupt:
		return "external interrupt"
	case CausePageFault:
		return "page fault"
	case CauseIllegalInstruction:
		return "illegal instruction"
	case CauseOtherException:
		return "exception"
	default:
		return "unknown"
	}
}

// Cause carries the decoded classification of one trap. It is constructed
// at trap entry, consumed by the dispatcher and never stored.
type Cause struct {
	Kind CauseKind

	// Code is the raw cause code from scause with the interrupt flag
	// stripped.
	Code uint64

	// FaultAddr is the faulting address for page faults and zero
	// otherwise.
	FaultAddr uintptr
}

// Decode classifies the raw scause and stval register values. Interrupt
// sources without dedicated handling are folded into
// CauseExternalInterrupt so that spurious interrupts are acknowledged and
// ignored rather than treated as task faults.
func Decode(scause uint64, stval uintptr) Cause {
	code := scause &^ causeInterruptFlag

	if scause&causeInterruptFlag != 0 {
		switch code {
		case intSupervisorTimer:
			return Cause{Kind: CauseTimerInterrupt, Code: code}
		case intSupervisorExternal:
			return Cause{Kind: CauseExternalInterrupt, Code: code}
		default:
			// Spurious interrupt source; acknowledge and ignore
			return Cause{Kind: CauseExternalInterrupt, Code: code}
		}
	}

	switch code {
	case excEnvCallFromUser:
		return Cause{Kind: CauseSyscall, Code: code}
	case excIllegalInstruction:
		return Cause{Kind: CauseIllegalInstruction, Code: code}
	case excInstructionPageFault, excLoadPageFault, excStorePageFault:
		return Cause{Kind: CausePageFault, Code: code, FaultAddr: stval}
	default:
		return Cause{Kind: CauseOtherException, Code: code}
	}
}
