package trap

import (
	"github.com/silent-rain/arceos/kernel"
	"github.com/silent-rain/arceos/kernel/cpu"
	"github.com/silent-rain/arceos/kernel/kfmt"
	"github.com/silent-rain/arceos/kernel/sched"
	"github.com/silent-rain/arceos/kernel/syscall"
)

// faultExitBase offsets the raw cause code when a fault kills a task so
// that fault statuses cannot collide with syscall errno returns.
const faultExitBase = int64(-256)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	readSCauseFn  = cpu.ReadSCause
	readSTvalFn   = cpu.ReadSTval
	kernelPanicFn = kernel.Panic

	// ackTimerFn clears the pending timer interrupt and arms the next
	// deadline. The timer driver installs it during hardware detection.
	ackTimerFn = func() {}

	errKernelTrap = &kernel.Error{Module: "trap", Message: "unrecoverable trap taken from kernel context"}
)

// Init points stvec at the trap vector and installs Dispatch as the
// handler invoked by the trap entry code. The scheduler and syscall layer
// must be initialized first.
func Init() {
	cpu.SetTrapHandler(Dispatch)
	cpu.WriteSTvec(cpu.TrapVectorAddr())
}

// SetTimerAck registers the function used to acknowledge timer interrupts
// and schedule the next tick.
func SetTimerAck(ack func()) {
	ackTimerFn = ack
}

// Dispatch classifies the trap described by the saved frame, routes it to
// the matching handler and returns the frame that the trap exit path must
// resume: the incoming frame when the current task keeps running, or the
// next task's frame after a reschedule.
//
// Faults raised by task code are fatal to the task only. Exceptions taken
// while the kernel itself was executing indicate corrupted kernel state and
// halt the system.
func Dispatch(frame *cpu.TrapFrame) *cpu.TrapFrame {
	// The hart no longer runs on the stack of a task that reaped itself
	// during the previous dispatch, so its stack frame can be reclaimed.
	sched.ReleaseRetiredStack()

	var (
		cause      = Decode(readSCauseFn(), readSTvalFn())
		fromKernel = frame.Sstatus&cpu.SstatusSPP != 0
		current    = sched.Current()
	)

	switch cause.Kind {
	case CauseSyscall:
		// Step over the ecall instruction and deliver the result in
		// the return-value register
		frame.Sepc += 4
		args := syscall.Args{frame.A0, frame.A1, frame.A2, frame.A3, frame.A4, frame.A5}
		frame.A0 = uint64(syscall.Invoke(current, frame.A7, &args))

	case CauseTimerInterrupt:
		ackTimerFn()
		sched.TimerTick()

	case CauseExternalInterrupt:
		// No external interrupt sources are wired up; nothing to do

	case CausePageFault:
		if fromKernel || current == nil || current.Space == nil {
			panicOnKernelTrap(cause, frame)
			break
		}

		if err := current.Space.ResolveFault(cause.FaultAddr); err != nil {
			_ = sched.Exit(current.ID, faultExitBase-int64(cause.Code))
		}

	default:
		if fromKernel || current == nil {
			panicOnKernelTrap(cause, frame)
			break
		}

		_ = sched.Exit(current.ID, faultExitBase-int64(cause.Code))
	}

	if sched.NeedsReschedule() {
		return sched.Reschedule()
	}

	return frame
}

// panicOnKernelTrap emits a diagnostic for a trap the kernel cannot recover
// from and halts the system.
func panicOnKernelTrap(cause Cause, frame *cpu.TrapFrame) {
	kfmt.Printf("\n%s (code %d) in kernel context, stval: 0x%x\n", cause.Kind.String(), cause.Code, uint64(cause.FaultAddr))
	frame.Print()
	kernelPanicFn(errKernelTrap)
}
