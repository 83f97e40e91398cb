package pmm

import (
	"github.com/silent-rain/arceos/kernel"
	"github.com/silent-rain/arceos/kernel/hal/bootinfo"
	"github.com/silent-rain/arceos/kernel/kfmt"
	"github.com/silent-rain/arceos/kernel/mm"
)

var (
	// earlyAllocator is a boot mem allocator instance used for frame
	// allocations before the bitmap allocator takes over.
	earlyAllocator bootMemAllocator

	errBootAllocOutOfMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
)

// bootMemAllocator implements a rudimentary physical memory allocator which
// is used to bootstrap the kernel.
//
// The allocator uses the memory region information provided by the boot
// handoff to detect free memory blocks and return the next available free
// frame. Allocations are tracked via an internal counter that contains the
// last allocated frame.
//
// Due to the way that the allocator works, it is not possible to free
// allocated frames. Once the kernel is properly initialized, the allocated
// blocks are handed over to the bitmap allocator which does support freeing.
type bootMemAllocator struct {
	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	// firstAllocFrame and lastAllocFrame track the range of frames the
	// allocator has handed out.
	firstAllocFrame mm.Frame
	lastAllocFrame  mm.Frame

	// kernelStartFrame and kernelEndFrame delimit the frames occupied by
	// the loaded kernel image. Frames below kernelEndFrame are never
	// handed out.
	kernelStartFrame mm.Frame
	kernelEndFrame   mm.Frame
}

// init sets up the boot memory allocator internal state.
func (alloc *bootMemAllocator) init(kernelStart, kernelEnd uintptr) {
	alloc.allocCount = 0
	alloc.firstAllocFrame = 0
	alloc.lastAllocFrame = 0
	alloc.kernelStartFrame = mm.FrameFromAddress(kernelStart)
	alloc.kernelEndFrame = mm.Frame((kernelEnd + mm.PageSize - 1) >> mm.PageShift)
}

// AllocFrame scans the memory regions reported by the boot handoff and
// reserves the next available free frame. AllocFrame returns an error if no
// more memory can be allocated.
func (alloc *bootMemAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	var err = errBootAllocOutOfMemory

	bootinfo.VisitMemRegions(func(region *bootinfo.MemRegion) bool {
		// Ignore reserved regions and regions smaller than a single page
		if region.Type != bootinfo.MemAvailable || region.Length < uint64(mm.PageSize) {
			return true
		}

		// Reported addresses may not be page-aligned; round up to get
		// the start frame and round down to get the end frame
		pageSizeMinus1 := uint64(mm.PageSize - 1)
		regionStartFrame := mm.Frame(((region.PhysAddress + pageSizeMinus1) & ^pageSizeMinus1) >> mm.PageShift)
		regionEndFrame := mm.Frame(((region.PhysAddress+region.Length) & ^pageSizeMinus1)>>mm.PageShift) - 1

		// The kernel image occupies the head of the first RAM region
		if regionStartFrame < alloc.kernelEndFrame {
			regionStartFrame = alloc.kernelEndFrame
		}

		if regionStartFrame > regionEndFrame {
			return true
		}

		// Ignore already exhausted regions
		if alloc.allocCount != 0 && alloc.lastAllocFrame >= regionEndFrame {
			return true
		}

		// The last allocated frame will either point to a previous
		// region or inside this region. In the first case (or if this
		// is the first allocation) we select the start frame for this
		// region. In the latter case we select the next available
		// frame.
		if alloc.allocCount == 0 || alloc.lastAllocFrame < regionStartFrame {
			alloc.lastAllocFrame = regionStartFrame
		} else {
			alloc.lastAllocFrame++
		}
		err = nil
		return false
	})

	if err != nil {
		return mm.InvalidFrame, errBootAllocOutOfMemory
	}

	if alloc.allocCount == 0 {
		alloc.firstAllocFrame = alloc.lastAllocFrame
	}
	alloc.allocCount++
	return alloc.lastAllocFrame, nil
}

// printMemoryMap scans the memory region information provided by the boot
// handoff and prints out the system's memory map.
func (alloc *bootMemAllocator) printMemoryMap() {
	kfmt.Printf("[boot_mem_alloc] system memory map:\n")
	var totalFree uint64
	bootinfo.VisitMemRegions(func(region *bootinfo.MemRegion) bool {
		kfmt.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())

		if region.Type == bootinfo.MemAvailable {
			totalFree += region.Length
		}
		return true
	})
	kfmt.Printf("[boot_mem_alloc] free memory: %dKb\n", totalFree/1024)
}
