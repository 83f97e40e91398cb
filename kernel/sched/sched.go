package sched

import (
	"github.com/silent-rain/arceos/kernel"
	"github.com/silent-rain/arceos/kernel/cpu"
	"github.com/silent-rain/arceos/kernel/mm"
	"github.com/silent-rain/arceos/kernel/mm/vmm"
	"github.com/silent-rain/arceos/kernel/task"
)

// DefaultTimeSlice is the number of timer ticks a task may run before the
// scheduler preempts it.
const DefaultTimeSlice = 10

var (
	// ErrNotReady is returned when enqueueing a task that is not in
	// StateReady.
	ErrNotReady = &kernel.Error{Module: "sched", Message: "cannot enqueue a task that is not ready"}

	// ErrNotBlocked is returned when waking a task that is not in
	// StateBlocked.
	ErrNotBlocked = &kernel.Error{Module: "sched", Message: "cannot wake a task that is not blocked"}

	// ErrAlreadyQueued is returned when enqueueing a task that is
	// already present in the ready queue.
	ErrAlreadyQueued = &kernel.Error{Module: "sched", Message: "task is already enqueued"}

	// idleThreadEntryFn is used by tests to override the address of the
	// idle loop which only exists when targeting real hardware.
	idleThreadEntryFn = cpu.IdleThreadEntry

	// current points to the task executing on the core, or nil while the
	// idle task runs.
	current *task.TCB

	// readyQueue holds the IDs of the tasks eligible to run in FIFO
	// order.
	readyQueue taskQueue

	// idleFrame is the saved context of the dedicated idle task. It
	// parks the core until the next interrupt whenever the ready queue
	// drains.
	idleFrame cpu.TrapFrame

	// kernelSpace is activated whenever the idle task is resumed.
	kernelSpace *vmm.AddressSpace

	// timeSlice is the slice length assigned to a task each time it is
	// scheduled.
	timeSlice uint32 = DefaultTimeSlice

	// reschedulePending is set when the current task exhausted its time
	// slice and should be preempted at the next dispatch exit.
	reschedulePending bool

	// retiredStack holds the kernel stack of a task that was reaped
	// while the hart still executed on it. The frame stays allocated
	// until the next trap entry, by which point the hart runs on
	// another task's stack.
	retiredStack = mm.InvalidFrame
)

// Init prepares the scheduler state. The supplied space must hold the
// kernel's global mappings; it becomes the active space whenever the idle
// task runs. idleStack is the frame backing the idle task's kernel stack:
// the trap vector switches to it when a trap interrupts the idle loop, so
// it must be a valid frame before the first trap can be dispatched.
func Init(space *vmm.AddressSpace, idleStack mm.Frame) {
	kernelSpace = space
	current = nil
	readyQueue.reset()
	reschedulePending = false
	retiredStack = mm.InvalidFrame

	idleFrame = cpu.TrapFrame{
		Sepc:    uint64(idleThreadEntryFn()),
		Sstatus: cpu.SstatusSPP | cpu.SstatusSPIE,
	}
	if idleStack.Valid() {
		idleFrame.KernelSP = uint64(idleStack.Address()) + uint64(mm.PageSize)
	}
}

// SetTimeSlice configures the number of timer ticks granted to a task each
// time it is scheduled. A zero length is rounded up to one tick.
func SetTimeSlice(ticks uint32) {
	if ticks == 0 {
		ticks = 1
	}
	timeSlice = ticks
}

// Current returns the TCB of the task executing on the core or nil while
// the idle task runs.
func Current() *task.TCB {
	return current
}

// Enqueue appends a Ready task to the ready queue. A task may occupy at
// most one queue slot; enqueueing it again before it is scheduled fails
// with ErrAlreadyQueued.
func Enqueue(id task.ID) *kernel.Error {
	tcb, err := task.Registry.Lookup(id)
	if err != nil {
		return err
	}

	if tcb.State != task.StateReady {
		return ErrNotReady
	}

	if readyQueue.contains(id) {
		return ErrAlreadyQueued
	}

	readyQueue.push(id)
	return nil
}

// Block removes a task from scheduling eligibility until a wake event
// re-enqueues it.
func Block(id task.ID) *kernel.Error {
	tcb, err := task.Registry.Lookup(id)
	if err != nil {
		return err
	}

	tcb.State = task.StateBlocked
	readyQueue.remove(id)

	if tcb == current {
		reschedulePending = true
	}

	return nil
}

// Wake transitions a Blocked task back to Ready and appends it to the ready
// queue.
func Wake(id task.ID) *kernel.Error {
	tcb, err := task.Registry.Lookup(id)
	if err != nil {
		return err
	}

	if tcb.State != task.StateBlocked {
		return ErrNotBlocked
	}

	tcb.State = task.StateReady
	tcb.WaitingOn = task.InvalidID
	readyQueue.push(id)
	return nil
}

// Exit transitions a task to Zombie with the supplied status and removes it
// from scheduling. The task's resources stay attached to the TCB until the
// parent reaps it.
func Exit(id task.ID, status int64) *kernel.Error {
	tcb, err := task.Registry.Lookup(id)
	if err != nil {
		return err
	}

	tcb.State = task.StateZombie
	tcb.ExitStatus = status
	readyQueue.remove(id)

	if tcb == current {
		reschedulePending = true
	}

	return nil
}

// TimerTick burns one tick of the current task's time slice, requesting a
// reschedule once the slice is exhausted. Ticks that arrive while the idle
// task runs always request a reschedule so that freshly woken tasks get the
// core back.
func TimerTick() {
	if current == nil {
		reschedulePending = true
		return
	}

	if current.SliceRemaining > 0 {
		current.SliceRemaining--
	}

	if current.SliceRemaining == 0 {
		reschedulePending = true
	}
}

// RetireKernelStack parks a kernel stack frame that is still in use by the
// hart so it can be reclaimed once execution has moved off it. It is used
// when a task is reaped out of its own exit syscall: the trap vector
// switched to that task's kernel stack on entry, so the frame must outlive
// the rest of the dispatch.
func RetireKernelStack(frame mm.Frame) {
	retiredStack = frame
}

// ReleaseRetiredStack frees the parked kernel stack frame, if any. The
// dispatcher calls it on trap entry, at which point the hart is guaranteed
// to run on the trapping task's own stack.
func ReleaseRetiredStack() {
	if retiredStack.Valid() {
		_ = mm.FreeFrame(retiredStack)
		retiredStack = mm.InvalidFrame
	}
}

// RequestReschedule asks the dispatcher to run Reschedule before returning
// to task code, yielding the remainder of the current slice.
func RequestReschedule() {
	reschedulePending = true
}

// NeedsReschedule reports whether the dispatcher must run Reschedule before
// returning to task code.
func NeedsReschedule() bool {
	return reschedulePending || current == nil || current.State != task.StateRunning
}

// Reschedule picks the next task to run using round-robin order: the
// previously running task, if still runnable, moves to the tail of the
// ready queue and the head is selected. The selected task's address space
// is activated and its saved frame returned for the trap exit path to
// resume. With an empty ready queue the idle task is resumed instead.
func Reschedule() *cpu.TrapFrame {
	reschedulePending = false

	if current != nil && current.State == task.StateRunning {
		current.State = task.StateReady
		readyQueue.push(current.ID)
	}

	for {
		id, ok := readyQueue.pop()
		if !ok {
			break
		}

		next, err := task.Registry.Lookup(id)
		if err != nil || next.State != task.StateReady {
			// Stale queue entry; skip it
			continue
		}

		next.State = task.StateRunning
		next.SliceRemaining = timeSlice
		current = next

		if next.Space != nil {
			next.Space.Activate()
		}
		return &next.Frame
	}

	// Nothing runnable; park the core in the idle loop
	current = nil
	if kernelSpace != nil {
		kernelSpace.Activate()
	}
	return &idleFrame
}
