package syscall

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/silent-rain/arceos/kernel"
	"github.com/silent-rain/arceos/kernel/mm"
	"github.com/silent-rain/arceos/kernel/mm/vmm"
	"github.com/silent-rain/arceos/kernel/sched"
	"github.com/silent-rain/arceos/kernel/task"
)

func setupSyscallTest(t *testing.T) {
	handlers = [maxSyscalls]Handler{}
	task.Registry = task.TCBRegistry{}
	sched.Init(nil, mm.InvalidFrame)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
}

func spawnTestTask(t *testing.T, parent task.ID) *task.TCB {
	tcb, err := task.Registry.Allocate(parent)
	if err != nil {
		t.Fatal(err)
	}
	if err = sched.Enqueue(tcb.ID); err != nil {
		t.Fatal(err)
	}
	return tcb
}

func TestInvokeUnknownSyscall(t *testing.T) {
	setupSyscallTest(t)
	tcb := spawnTestTask(t, task.InvalidID)

	var args Args
	if got := Invoke(tcb, uint64(59), &args); got != -ENOSYS {
		t.Fatalf("expected unknown syscall to return -ENOSYS; got %d", got)
	}

	if got := Invoke(tcb, uint64(maxSyscalls+7), &args); got != -ENOSYS {
		t.Fatalf("expected out-of-range syscall to return -ENOSYS; got %d", got)
	}
}

func TestRegisterErrors(t *testing.T) {
	setupSyscallTest(t)

	noop := func(*task.TCB, *Args) int64 { return 0 }

	if err := Register(uint64(maxSyscalls), noop); err != errSyscallOutOfRange {
		t.Fatalf("expected errSyscallOutOfRange; got %v", err)
	}

	if err := Register(SysExit, noop); err != errSyscallRegistered {
		t.Fatalf("expected errSyscallRegistered; got %v", err)
	}

	if err := Register(uint64(42), noop); err != nil {
		t.Fatal(err)
	}

	tcb := spawnTestTask(t, task.InvalidID)
	var args Args
	if got := Invoke(tcb, uint64(42), &args); got != 0 {
		t.Fatalf("expected registered handler to be invoked; got %d", got)
	}
}

func TestYield(t *testing.T) {
	setupSyscallTest(t)
	spawnTestTask(t, task.InvalidID)

	sched.Reschedule()
	if sched.NeedsReschedule() {
		t.Fatal("expected no pending reschedule right after scheduling")
	}

	var args Args
	if got := Invoke(sched.Current(), SysYield, &args); got != 0 {
		t.Fatalf("expected yield to return 0; got %d", got)
	}

	if !sched.NeedsReschedule() {
		t.Fatal("expected yield to request a reschedule")
	}
}

func TestWrite(t *testing.T) {
	defer func(origWrite func([]byte)) {
		consoleWriteFn = origWrite
		mm.SetFrameAllocator(nil)
		mm.SetFrameReclaimer(nil)
	}(consoleWriteFn)

	setupSyscallTest(t)

	var bufs [][]byte
	mm.SetFrameAllocator(func() (mm.Frame, *kernel.Error) {
		buf := make([]byte, 2*mm.PageSize)
		bufs = append(bufs, buf)
		addr := (uintptr(unsafe.Pointer(&buf[0])) + mm.PageSize - 1) & ^(mm.PageSize - 1)
		return mm.Frame(addr >> mm.PageShift), nil
	})

	tcb := spawnTestTask(t, task.InvalidID)

	var err *kernel.Error
	if tcb.Space, err = vmm.NewAddressSpace(); err != nil {
		t.Fatal(err)
	}

	userPage := mm.PageFromAddress(0x40000000)
	frame, _ := mm.AllocFrame()
	if err = tcb.Space.Map(userPage, frame, vmm.FlagRead|vmm.FlagWrite|vmm.FlagUser); err != nil {
		t.Fatal(err)
	}

	payload := []byte("scheduling works!")
	kernel.Memcopy(uintptr(unsafe.Pointer(&payload[0])), frame.Address(), uintptr(len(payload)))

	var console bytes.Buffer
	consoleWriteFn = func(b []byte) { console.Write(b) }

	args := Args{1, uint64(userPage.Address()), uint64(len(payload))}
	if got := Invoke(tcb, SysWrite, &args); got != int64(len(payload)) {
		t.Fatalf("expected write to return %d; got %d", len(payload), got)
	}

	if got := console.String(); got != string(payload) {
		t.Fatalf("expected console to receive %q; got %q", payload, got)
	}

	t.Run("bad descriptor", func(t *testing.T) {
		args := Args{7, uint64(userPage.Address()), 4}
		if got := Invoke(tcb, SysWrite, &args); got != -EBADF {
			t.Fatalf("expected -EBADF; got %d", got)
		}
	})

	t.Run("unmapped buffer", func(t *testing.T) {
		args := Args{1, uint64(0x9f000000), 4}
		if got := Invoke(tcb, SysWrite, &args); got != -EFAULT {
			t.Fatalf("expected -EFAULT; got %d", got)
		}
	})
}

func TestExitWaitProtocol(t *testing.T) {
	defer mm.SetFrameReclaimer(nil)
	setupSyscallTest(t)

	freed := make(map[mm.Frame]int)
	mm.SetFrameReclaimer(func(frame mm.Frame) *kernel.Error {
		freed[frame]++
		return nil
	})

	parent := spawnTestTask(t, task.InvalidID)
	child := spawnTestTask(t, parent.ID)

	childStack := mm.Frame(0x82000)
	child.KernelStack = childStack

	// Parent runs first and waits for the child before it has exited
	sched.Reschedule()
	if sched.Current() != parent {
		t.Fatal("expected the parent to be scheduled first")
	}

	args := Args{uint64(child.ID)}
	if got := Invoke(parent, SysWait, &args); got != 0 {
		t.Fatalf("expected wait on a live child to block with a placeholder result; got %d", got)
	}

	if parent.State != task.StateBlocked {
		t.Fatalf("expected the waiting parent to be blocked; got %s", parent.State)
	}
	if parent.WaitingOn != child.ID {
		t.Fatalf("expected the parent to wait on child %d; got %d", child.ID, parent.WaitingOn)
	}

	// The child gets the core and exits
	sched.Reschedule()
	if sched.Current() != child {
		t.Fatal("expected the child to be scheduled after the parent blocked")
	}

	exitArgs := Args{77}
	Invoke(child, SysExit, &exitArgs)

	// The exit must complete the parent's wait: status delivered, parent
	// runnable again, child gone
	if exp := uint64(77); parent.Frame.A0 != exp {
		t.Fatalf("expected the child's status %d in the parent's result register; got %d", exp, parent.Frame.A0)
	}
	if parent.State != task.StateReady {
		t.Fatalf("expected the parent to be woken; got %s", parent.State)
	}
	if _, err := task.Registry.Lookup(child.ID); err != task.ErrNotFound {
		t.Fatalf("expected the child to be reaped; got %v", err)
	}

	// The hart is conceptually still on the child's kernel stack at this
	// point; the frame must stay allocated until the next trap entry
	// releases it.
	if freed[childStack] != 0 {
		t.Fatal("expected the exiting task's kernel stack to outlive its own exit syscall")
	}

	sched.ReleaseRetiredStack()
	if freed[childStack] != 1 {
		t.Fatalf("expected the retired kernel stack to be freed exactly once; freed %d times", freed[childStack])
	}

	sched.Reschedule()
	if sched.Current() != parent {
		t.Fatal("expected the parent to be scheduled after the wait completed")
	}
}

func TestWaitOnZombie(t *testing.T) {
	setupSyscallTest(t)

	parent := spawnTestTask(t, task.InvalidID)
	child := spawnTestTask(t, parent.ID)

	// The child exits before anyone waits for it
	sched.Reschedule()
	sched.Reschedule()
	if sched.Current() != child {
		t.Fatal("expected the child to be scheduled")
	}

	exitArgs := Args{5}
	Invoke(child, SysExit, &exitArgs)

	if child.State != task.StateZombie {
		t.Fatalf("expected the child to linger as a zombie; got %s", child.State)
	}

	// A later wait collects the status without blocking
	args := Args{uint64(child.ID)}
	if got := Invoke(parent, SysWait, &args); got != 5 {
		t.Fatalf("expected wait to return the zombie's status 5; got %d", got)
	}

	if _, err := task.Registry.Lookup(child.ID); err != task.ErrNotFound {
		t.Fatalf("expected the zombie to be reaped; got %v", err)
	}
}

func TestWaitErrors(t *testing.T) {
	setupSyscallTest(t)

	parent := spawnTestTask(t, task.InvalidID)
	stranger := spawnTestTask(t, task.InvalidID)

	var args Args

	args[0] = uint64(999)
	if got := Invoke(parent, SysWait, &args); got != -ECHILD {
		t.Fatalf("expected waiting on an unknown id to return -ECHILD; got %d", got)
	}

	args[0] = uint64(stranger.ID)
	if got := Invoke(parent, SysWait, &args); got != -ECHILD {
		t.Fatalf("expected waiting on a non-child to return -ECHILD; got %d", got)
	}
}
