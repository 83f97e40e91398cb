package task

import (
	"testing"
	"unsafe"

	"github.com/silent-rain/arceos/kernel"
	"github.com/silent-rain/arceos/kernel/mm"
	"github.com/silent-rain/arceos/kernel/mm/vmm"
)

func TestRegistryAllocateAndLookup(t *testing.T) {
	var reg TCBRegistry

	seen := make(map[ID]bool)
	for i := 0; i < MaxTasks; i++ {
		tcb, err := reg.Allocate(InvalidID)
		if err != nil {
			t.Fatal(err)
		}

		if tcb.ID == InvalidID || seen[tcb.ID] {
			t.Fatalf("expected a fresh unique id; got %d", tcb.ID)
		}
		seen[tcb.ID] = true

		if tcb.State != StateReady {
			t.Fatalf("expected new task to start in state %s; got %s", StateReady, tcb.State)
		}

		got, err := reg.Lookup(tcb.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got != tcb {
			t.Fatalf("expected lookup of id %d to return the allocated TCB", tcb.ID)
		}
	}

	if _, err := reg.Allocate(InvalidID); err != errRegistryFull {
		t.Fatalf("expected allocation beyond MaxTasks to fail with errRegistryFull; got %v", err)
	}

	if _, err := reg.Lookup(InvalidID); err != ErrNotFound {
		t.Fatalf("expected lookup of InvalidID to fail with ErrNotFound; got %v", err)
	}

	if _, err := reg.Lookup(ID(12345)); err != ErrNotFound {
		t.Fatalf("expected lookup of an unknown id to fail with ErrNotFound; got %v", err)
	}
}

func TestRegistryReap(t *testing.T) {
	defer func() {
		mm.SetFrameAllocator(nil)
		mm.SetFrameReclaimer(nil)
	}()

	var (
		bufs  [][]byte
		freed = make(map[mm.Frame]int)
	)

	allocFrame := func() (mm.Frame, *kernel.Error) {
		buf := make([]byte, 2*mm.PageSize)
		bufs = append(bufs, buf)
		addr := (uintptr(unsafe.Pointer(&buf[0])) + mm.PageSize - 1) & ^(mm.PageSize - 1)
		return mm.Frame(addr >> mm.PageShift), nil
	}
	mm.SetFrameAllocator(allocFrame)
	mm.SetFrameReclaimer(func(frame mm.Frame) *kernel.Error {
		freed[frame]++
		return nil
	})

	var reg TCBRegistry

	tcb, err := reg.Allocate(InvalidID)
	if err != nil {
		t.Fatal(err)
	}

	if tcb.Space, err = vmm.NewAddressSpace(); err != nil {
		t.Fatal(err)
	}
	if tcb.KernelStack, err = allocFrame(); err != nil {
		t.Fatal(err)
	}

	if _, err = reg.Reap(tcb.ID); err != ErrInvalidState {
		t.Fatalf("expected reaping a live task to fail with ErrInvalidState; got %v", err)
	}

	tcb.State = StateZombie
	tcb.ExitStatus = 42

	status, err := reg.Reap(tcb.ID)
	if err != nil {
		t.Fatal(err)
	}

	if exp := int64(42); status != exp {
		t.Fatalf("expected reap to return exit status %d; got %d", exp, status)
	}

	if exp := 1; freed[tcb.KernelStack] != exp {
		t.Errorf("expected the kernel stack frame to be released %d time(s); got %d", exp, freed[tcb.KernelStack])
	}

	if _, err = reg.Lookup(tcb.ID); err != ErrNotFound {
		t.Fatalf("expected reaped task to be gone from the registry; got %v", err)
	}

	if _, err = reg.Reap(tcb.ID); err != ErrNotFound {
		t.Fatalf("expected reaping an unknown id to fail with ErrNotFound; got %v", err)
	}
}
