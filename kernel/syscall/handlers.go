package syscall

import (
	"github.com/silent-rain/arceos/kernel/kfmt"
	"github.com/silent-rain/arceos/kernel/mm"
	"github.com/silent-rain/arceos/kernel/mm/vmm"
	"github.com/silent-rain/arceos/kernel/sched"
	"github.com/silent-rain/arceos/kernel/task"
)

// writeChunk is a static staging buffer for write payloads so the write
// path does not depend on the Go allocator.
var writeChunk [512]byte

// consoleWriteFn pushes a chunk of bytes to the console. Overridden by
// tests to capture output.
var consoleWriteFn = func(b []byte) {
	if w := kfmt.GetOutputSink(); w != nil {
		w.Write(b)
	}
}

// handleExit terminates the calling task with the status passed in the
// first argument. If the parent is already blocked waiting for this task,
// the zombie is reaped on the spot: its status is stored into the parent's
// result register and the parent woken. Otherwise the task lingers as a
// zombie until the parent gets around to calling wait. The return value is
// never observed since the caller is gone.
func handleExit(tcb *task.TCB, args *Args) int64 {
	_ = sched.Exit(tcb.ID, int64(args[0]))

	parent, err := task.Registry.Lookup(tcb.Parent)
	if err != nil || parent.State != task.StateBlocked || parent.WaitingOn != tcb.ID {
		return 0
	}

	// The zombie's own address space may still be bound to the MMU;
	// switch to the kernel space so the reap can tear it down.
	if vmm.Active() == tcb.Space && vmm.KernelSpace() != nil {
		vmm.KernelSpace().Activate()
	}

	// The hart is still executing on the zombie's kernel stack. Detach
	// it so the reap does not free it mid-use and park it with the
	// scheduler; it is reclaimed on the next trap entry.
	kernelStack := tcb.KernelStack
	tcb.KernelStack = mm.InvalidFrame

	status, rerr := task.Registry.Reap(tcb.ID)
	if rerr != nil {
		tcb.KernelStack = kernelStack
		return 0
	}
	sched.RetireKernelStack(kernelStack)

	parent.Frame.A0 = uint64(status)
	_ = sched.Wake(parent.ID)
	return 0
}

// handleWrite copies the user buffer (fd, address, length in the first
// three arguments) into the kernel in bounded chunks and pushes it to the
// console. Only the stdout and stderr descriptors are honored. Returns the
// number of bytes written or a negated errno.
func handleWrite(tcb *task.TCB, args *Args) int64 {
	var (
		fd       = args[0]
		virtAddr = uintptr(args[1])
		length   = int(args[2])
	)

	if fd != 1 && fd != 2 {
		return -EBADF
	}

	if length < 0 {
		return -EFAULT
	}

	for written := 0; written < length; {
		chunk := length - written
		if chunk > len(writeChunk) {
			chunk = len(writeChunk)
		}

		if err := tcb.Space.CopyFromUser(writeChunk[:chunk], virtAddr+uintptr(written)); err != nil {
			if written > 0 {
				return int64(written)
			}
			return -EFAULT
		}

		consoleWriteFn(writeChunk[:chunk])
		written += chunk
	}

	return int64(length)
}

// handleYield gives up the remainder of the current time slice.
func handleYield(_ *task.TCB, _ *Args) int64 {
	sched.RequestReschedule()
	return 0
}

// handleWait collects the exit status of the child identified by the first
// argument. If the child has already exited it is reaped immediately and
// its status returned. Otherwise the caller blocks; handleExit completes
// the wait when the child terminates, overwriting the result register with
// the child's status.
func handleWait(tcb *task.TCB, args *Args) int64 {
	childID := task.ID(args[0])

	child, err := task.Registry.Lookup(childID)
	if err != nil || child.Parent != tcb.ID {
		return -ECHILD
	}

	if child.State == task.StateZombie {
		status, rerr := task.Registry.Reap(childID)
		if rerr != nil {
			return -ECHILD
		}
		return status
	}

	tcb.WaitingOn = childID
	_ = sched.Block(tcb.ID)

	// The placeholder result is overwritten with the child's status when
	// it exits and the wait completes.
	return 0
}
