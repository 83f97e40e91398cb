// Package pmm implements the kernel's physical frame allocation sub-system.
// A rudimentary boot-mem allocator serves allocations while the kernel
// bootstraps; it is then used to seed a bitmap allocator which serves (and
// can reclaim) all further frame allocations.
package pmm

import (
	"github.com/silent-rain/arceos/kernel"
	"github.com/silent-rain/arceos/kernel/mm"
)

var (
	// FrameAllocator is the BitmapAllocator instance that serves as the
	// primary allocator for reserving frames.
	FrameAllocator BitmapAllocator
)

// Init sets up the kernel physical memory allocation sub-system.
func Init(kernelStart, kernelEnd uintptr) *kernel.Error {
	earlyAllocator.init(kernelStart, kernelEnd)
	earlyAllocator.printMemoryMap()
	mm.SetFrameAllocator(earlyAllocFrame)

	// Use the early allocator to bootstrap the bitmap allocator
	if err := FrameAllocator.init(); err != nil {
		return err
	}

	mm.SetFrameAllocator(bitmapAllocFrame)
	mm.SetFrameReclaimer(bitmapFreeFrame)
	return nil
}

// earlyAllocFrame delegates a frame allocation request to the early
// allocator instance. The indirection keeps the compiler's escape analysis
// from flagging the allocator receiver as escaping to the heap.
func earlyAllocFrame() (mm.Frame, *kernel.Error) {
	return earlyAllocator.AllocFrame()
}

func bitmapAllocFrame() (mm.Frame, *kernel.Error) {
	return FrameAllocator.AllocFrame()
}

func bitmapFreeFrame(frame mm.Frame) *kernel.Error {
	return FrameAllocator.FreeFrame(frame)
}
