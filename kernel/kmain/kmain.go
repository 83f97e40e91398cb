package kmain

import (
	"unsafe"

	// The driver packages register their probes with the device registry
	// from their init functions.
	_ "github.com/silent-rain/arceos/device/timer"
	"github.com/silent-rain/arceos/device/uart"

	"github.com/silent-rain/arceos/kernel"
	"github.com/silent-rain/arceos/kernel/cpu"
	"github.com/silent-rain/arceos/kernel/hal"
	"github.com/silent-rain/arceos/kernel/hal/bootinfo"
	"github.com/silent-rain/arceos/kernel/kfmt"
	"github.com/silent-rain/arceos/kernel/mm"
	"github.com/silent-rain/arceos/kernel/mm/pmm"
	"github.com/silent-rain/arceos/kernel/mm/vmm"
	"github.com/silent-rain/arceos/kernel/sched"
	"github.com/silent-rain/arceos/kernel/syscall"
	"github.com/silent-rain/arceos/kernel/task"
	"github.com/silent-rain/arceos/kernel/trap"
)

const (
	// userStackTop is the virtual address just above the highest user
	// stack slot. It sits well below the identity-mapped physical RAM
	// window so the two can never collide.
	userStackTop = uintptr(0x50000000)

	// userStackPages is the number of demand-zero pages backing each
	// task stack.
	userStackPages = 16
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. This function is invoked by the rt0 assembly code
// after switching to supervisor mode and setting up a minimal g0 struct
// that allows Go code to use the boot stack.
//
// The rt0 code passes the boot handoff payload assembled by the loader:
// the physical memory map, the kernel image location and the initial task
// images to spawn.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the
// CPU.
//
//go:noinline
func Kmain(info *bootinfo.Info) {
	bootinfo.Set(info)

	hal.DetectHardware()

	var err *kernel.Error
	if err = pmm.Init(info.KernelStart, info.KernelEnd); err != nil {
		panic(err)
	} else if err = vmm.Init(identityRanges()); err != nil {
		panic(err)
	} else if err = syscall.Init(); err != nil {
		panic(err)
	}

	idleStack, err := mm.AllocFrame()
	if err != nil {
		panic(err)
	}

	sched.Init(vmm.KernelSpace(), idleStack)
	trap.Init()

	for i := range info.TaskImages {
		img := &info.TaskImages[i]

		id, err := loadTask(img)
		if err != nil {
			panic(err)
		}

		if err = sched.Enqueue(id); err != nil {
			panic(err)
		}

		kfmt.Printf("[kmain] spawned task %d (%s), entry %x\n", id, img.Name, img.Entry)
	}

	cpu.ResumeFrame(sched.Reschedule())

	// Use kernel.Panic instead of panic to prevent the compiler from
	// treating kernel.Panic as dead-code and eliminating it.
	kernel.Panic(errKmainReturned)
}

// identityRanges assembles the identity mappings for the kernel address
// space: every available RAM region plus the UART MMIO window. The loader
// reports the kernel image inside an available region; pmm keeps its frames
// reserved while the identity map still covers its text and data.
func identityRanges() []vmm.IdentityRange {
	ranges := []vmm.IdentityRange{
		{
			PhysAddress: uart.MMIOBase,
			Length:      mm.PageSize,
			Flags:       vmm.FlagRead | vmm.FlagWrite,
		},
	}

	bootinfo.VisitMemRegions(func(region *bootinfo.MemRegion) bool {
		if region.Type != bootinfo.MemAvailable {
			return true
		}

		ranges = append(ranges, vmm.IdentityRange{
			PhysAddress: uintptr(region.PhysAddress),
			Length:      uintptr(region.Length),
			Flags:       vmm.FlagRead | vmm.FlagWrite | vmm.FlagExec,
		})

		return true
	})

	return ranges
}

// loadTask builds a runnable task out of a loader-provided image: a fresh
// address space with the image copied into private frames at its load
// address, a demand-zero user stack and a dedicated kernel stack frame for
// trap handling.
func loadTask(img *bootinfo.TaskImage) (task.ID, *kernel.Error) {
	tcb, err := task.Registry.Allocate(task.InvalidID)
	if err != nil {
		return task.InvalidID, err
	}

	space, err := vmm.NewAddressSpace()
	if err != nil {
		return task.InvalidID, err
	}
	tcb.Space = space

	imgFlags := vmm.FlagRead | vmm.FlagWrite | vmm.FlagExec | vmm.FlagUser
	for off := uintptr(0); off < uintptr(len(img.Data)); off += mm.PageSize {
		frame, err := mm.AllocFrame()
		if err != nil {
			return task.InvalidID, err
		}

		chunk := uintptr(len(img.Data)) - off
		if chunk > mm.PageSize {
			chunk = mm.PageSize
		}

		kernel.Memset(frame.Address(), 0, mm.PageSize)
		kernel.Memcopy(uintptr(unsafe.Pointer(&img.Data[off])), frame.Address(), chunk)

		if err = space.Map(mm.PageFromAddress(img.LoadAddr+off), frame, imgFlags); err != nil {
			return task.InvalidID, err
		}
	}

	stackBottom := userStackTop - userStackPages*mm.PageSize
	if err = space.MapLazyRange(mm.PageFromAddress(stackBottom), userStackPages, vmm.FlagUser); err != nil {
		return task.InvalidID, err
	}

	kernelStack, err := mm.AllocFrame()
	if err != nil {
		return task.InvalidID, err
	}
	tcb.KernelStack = kernelStack

	tcb.Frame = cpu.TrapFrame{
		Sepc:    uint64(img.Entry),
		Sstatus: cpu.SstatusSPIE,
	}
	tcb.Frame.SP = uint64(userStackTop)
	tcb.Frame.KernelSP = uint64(kernelStack.Address()) + uint64(mm.PageSize)

	return tcb.ID, nil
}
