package task

import (
	"github.com/silent-rain/arceos/kernel"
	"github.com/silent-rain/arceos/kernel/mm"
)

// MaxTasks bounds the number of live tasks the registry can track.
const MaxTasks = 64

var (
	// ErrNotFound is returned by lookups for identifiers that do not
	// refer to a live task.
	ErrNotFound = &kernel.Error{Module: "task", Message: "no task with the requested id"}

	// ErrInvalidState is returned when an operation is attempted on a
	// task whose state does not permit it.
	ErrInvalidState = &kernel.Error{Module: "task", Message: "task is not in the required state"}

	errRegistryFull = &kernel.Error{Module: "task", Message: "task registry is full"}
)

// TCBRegistry is the single ownership point for TCBs. All other kernel
// components refer to tasks by ID and resolve them through the registry.
type TCBRegistry struct {
	tasks  [MaxTasks]*TCB
	nextID ID
}

// Registry is the system-wide task registry. It is initialized at boot and
// never torn down.
var Registry TCBRegistry

// Allocate reserves a registry slot for a new task, assigning it a fresh
// unique ID. The task starts out in StateReady with no resources attached;
// the caller is responsible for providing an address space, a kernel stack
// and an initial trap frame before the task is enqueued.
func (r *TCBRegistry) Allocate(parent ID) (*TCB, *kernel.Error) {
	for slot := 0; slot < MaxTasks; slot++ {
		if r.tasks[slot] != nil {
			continue
		}

		r.nextID++
		tcb := &TCB{
			ID:          r.nextID,
			State:       StateReady,
			KernelStack: mm.InvalidFrame,
			Parent:      parent,
		}
		r.tasks[slot] = tcb
		return tcb, nil
	}

	return nil, errRegistryFull
}

// Lookup resolves a task ID to its TCB.
func (r *TCBRegistry) Lookup(id ID) (*TCB, *kernel.Error) {
	if id == InvalidID {
		return nil, ErrNotFound
	}

	for slot := 0; slot < MaxTasks; slot++ {
		if tcb := r.tasks[slot]; tcb != nil && tcb.ID == id {
			return tcb, nil
		}
	}

	return nil, ErrNotFound
}

// Reap removes a Zombie task from the registry, releasing its address space
// and kernel stack, and returns its exit status. Reaping a task that has
// not exited yet fails with ErrInvalidState.
func (r *TCBRegistry) Reap(id ID) (int64, *kernel.Error) {
	for slot := 0; slot < MaxTasks; slot++ {
		tcb := r.tasks[slot]
		if tcb == nil || tcb.ID != id {
			continue
		}

		if tcb.State != StateZombie {
			return 0, ErrInvalidState
		}

		if tcb.Space != nil {
			if err := tcb.Space.Destroy(); err != nil {
				return 0, err
			}
		}

		if tcb.KernelStack.Valid() {
			if err := mm.FreeFrame(tcb.KernelStack); err != nil {
				return 0, err
			}
		}

		r.tasks[slot] = nil
		return tcb.ExitStatus, nil
	}

	return 0, ErrNotFound
}
