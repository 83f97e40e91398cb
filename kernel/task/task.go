package task

import (
	"github.com/silent-rain/arceos/kernel/cpu"
	"github.com/silent-rain/arceos/kernel/mm"
	"github.com/silent-rain/arceos/kernel/mm/vmm"
)

// ID uniquely identifies a task for its entire lifetime. The zero value is
// never assigned to a task.
type ID uint32

// InvalidID is the ID value that does not refer to any task.
const InvalidID = ID(0)

// State describes the scheduling state of a task.
type State uint8

const (
	// StateReady marks a task that is eligible to run and waiting in the
	// ready queue.
	StateReady State = iota

	// StateRunning marks the task currently executing on the core.
	StateRunning

	// StateBlocked marks a task that gave up the core until an external
	// wake event re-enqueues it.
	StateBlocked

	// StateZombie marks a task that has exited. It retains its exit
	// status until reaped by its parent.
	StateZombie
)

// String returns a human-readable version of the task state.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateZombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// TCB is the kernel's record of one task. The saved trap frame is only
// valid while the task is not running; the trap entry path fills it in on
// every transition into the kernel and the scheduler resumes from it.
type TCB struct {
	ID    ID
	State State

	// Frame holds the saved register context while the task is not
	// executing.
	Frame cpu.TrapFrame

	// Space is the address space owned exclusively by this task. It is
	// destroyed when the task is reaped.
	Space *vmm.AddressSpace

	// KernelStack is the physical frame backing the task's kernel-mode
	// stack.
	KernelStack mm.Frame

	// SliceRemaining counts down the timer ticks left before the
	// scheduler preempts this task.
	SliceRemaining uint32

	// Parent identifies the task that created this one and is entitled
	// to reap it.
	Parent ID

	// ExitStatus holds the value passed to exit, or the fault status for
	// tasks killed by the kernel. Only meaningful in StateZombie.
	ExitStatus int64

	// WaitingOn identifies the child this task is blocked waiting for,
	// or InvalidID if the task is not in a wait.
	WaitingOn ID
}
