package pmm

import (
	"unsafe"

	"github.com/silent-rain/arceos/kernel"
	"github.com/silent-rain/arceos/kernel/hal/bootinfo"
	"github.com/silent-rain/arceos/kernel/mm"
)

// maxMemPools bounds the number of RAM regions the allocator can track. The
// pool descriptors live in a fixed array so no Go allocation is required
// during early boot.
const maxMemPools = 8

var (
	errBitmapAllocOutOfMemory   = &kernel.Error{Module: "bitmap_alloc", Message: "out of memory"}
	errBitmapAllocFrameNotOwned = &kernel.Error{Module: "bitmap_alloc", Message: "frame does not belong to any memory pool"}
	errBitmapAllocDoubleFree    = &kernel.Error{Module: "bitmap_alloc", Message: "frame is already free"}
	errBitmapAllocTooManyPools  = &kernel.Error{Module: "bitmap_alloc", Message: "memory map describes too many regions"}
	errBitmapAllocSparseBitmap  = &kernel.Error{Module: "bitmap_alloc", Message: "could not reserve contiguous frames for the pool bitmap"}
)

// framePool tracks frame reservations for one contiguous RAM region.
type framePool struct {
	// startFrame is the frame number for the first page in this pool.
	// Bitmap bit i corresponds to frame (startFrame + i).
	startFrame mm.Frame

	// endFrame tracks the last frame in the pool (inclusive).
	endFrame mm.Frame

	// freeCount tracks the available frames in this pool. The allocator
	// uses it to skip fully allocated pools without scanning the bitmap.
	freeCount uint32

	// freeBitmap tracks used/free frames in the pool; a set bit marks a
	// reserved frame. The backing storage lives in frames reserved via
	// the boot allocator.
	freeBitmap []uint64
}

// BitmapAllocator implements a physical frame allocator that tracks frame
// reservations across the available memory pools using bitmaps.
type BitmapAllocator struct {
	// totalPages tracks the total number of frames across all pools.
	totalPages uint32

	// reservedPages tracks the number of reserved frames across all
	// pools.
	reservedPages uint32

	pools     [maxMemPools]framePool
	poolCount int
}

// init builds the pool list from the boot memory map, reserves frame-backed
// storage for the pool bitmaps and marks every frame handed out by the boot
// allocator (including the bitmap storage itself) as in use.
func (alloc *BitmapAllocator) init() *kernel.Error {
	if err := alloc.setupPoolBitmaps(); err != nil {
		return err
	}

	// Flag the frames occupied by the kernel image as reserved.
	for frame := earlyAllocator.kernelStartFrame; frame < earlyAllocator.kernelEndFrame; frame++ {
		_ = alloc.markFrame(frame, true)
	}

	// Flag every frame the boot allocator handed out as reserved so the
	// two allocators never hand out the same frame twice. The boot
	// allocator allocates sequentially which makes this a range mark.
	// Frames between regions do not belong to any pool and are skipped.
	if earlyAllocator.allocCount != 0 {
		for frame := earlyAllocator.firstAllocFrame; frame <= earlyAllocator.lastAllocFrame; frame++ {
			_ = alloc.markFrame(frame, true)
		}
	}

	return nil
}

// setupPoolBitmaps scans the boot memory map and initializes one pool per
// available RAM region. The bitmap slices are overlaid on frames obtained
// from the boot allocator; the running kernel accesses physical memory
// through the direct map so the frame address doubles as a pointer.
func (alloc *BitmapAllocator) setupPoolBitmaps() *kernel.Error {
	var err *kernel.Error

	bootinfo.VisitMemRegions(func(region *bootinfo.MemRegion) bool {
		if region.Type != bootinfo.MemAvailable || region.Length < uint64(mm.PageSize) {
			return true
		}

		if alloc.poolCount == maxMemPools {
			err = errBitmapAllocTooManyPools
			return false
		}

		pageSizeMinus1 := uint64(mm.PageSize - 1)
		startFrame := mm.Frame(((region.PhysAddress + pageSizeMinus1) & ^pageSizeMinus1) >> mm.PageShift)
		endFrame := mm.Frame(((region.PhysAddress+region.Length) & ^pageSizeMinus1)>>mm.PageShift) - 1
		if startFrame > endFrame {
			return true
		}

		pageCount := uint32(endFrame-startFrame) + 1
		bitmapWords := uintptr((pageCount + 63) &^ 63 >> 6)

		var bitmapAddr uintptr
		if bitmapAddr, err = reserveBitmapStorage(bitmapWords << mm.PointerShift); err != nil {
			return false
		}

		pool := &alloc.pools[alloc.poolCount]
		pool.startFrame = startFrame
		pool.endFrame = endFrame
		pool.freeCount = pageCount
		pool.freeBitmap = unsafe.Slice((*uint64)(unsafe.Pointer(bitmapAddr)), bitmapWords)
		for i := range pool.freeBitmap {
			pool.freeBitmap[i] = 0
		}

		alloc.poolCount++
		alloc.totalPages += pageCount
		return true
	})

	return err
}

// reserveBitmapStorage obtains enough consecutive frames from the boot
// allocator to store a pool bitmap of the requested byte size and returns
// the physical address of the run.
func reserveBitmapStorage(size uintptr) (uintptr, *kernel.Error) {
	frameCount := (size + mm.PageSize - 1) >> mm.PageShift

	firstFrame, err := earlyAllocator.AllocFrame()
	if err != nil {
		return 0, err
	}

	for prev, i := firstFrame, uintptr(1); i < frameCount; i++ {
		next, err := earlyAllocator.AllocFrame()
		if err != nil {
			return 0, err
		}

		// The boot allocator hands out sequential frames within one
		// region; a gap means the run straddled a region boundary.
		if next != prev+1 {
			return 0, errBitmapAllocSparseBitmap
		}
		prev = next
	}

	return firstFrame.Address(), nil
}

// poolForFrame returns the index of the pool that contains frame or -1 if
// the frame does not belong to any of the known pools.
func (alloc *BitmapAllocator) poolForFrame(frame mm.Frame) int {
	for poolIndex := 0; poolIndex < alloc.poolCount; poolIndex++ {
		if frame >= alloc.pools[poolIndex].startFrame && frame <= alloc.pools[poolIndex].endFrame {
			return poolIndex
		}
	}

	return -1
}

// markFrame updates the reservation bit for the supplied frame. Marking a
// frame that lives outside every pool returns an error which init ignores
// for the boot-allocation sweep.
func (alloc *BitmapAllocator) markFrame(frame mm.Frame, reserve bool) *kernel.Error {
	poolIndex := alloc.poolForFrame(frame)
	if poolIndex < 0 {
		return errBitmapAllocFrameNotOwned
	}

	pool := &alloc.pools[poolIndex]
	bit := uint32(frame - pool.startFrame)
	wordIndex := bit >> 6
	mask := uint64(1) << (bit & 63)

	if reserve {
		if pool.freeBitmap[wordIndex]&mask == 0 {
			pool.freeBitmap[wordIndex] |= mask
			pool.freeCount--
			alloc.reservedPages++
		}
		return nil
	}

	if pool.freeBitmap[wordIndex]&mask == 0 {
		return errBitmapAllocDoubleFree
	}

	pool.freeBitmap[wordIndex] &^= mask
	pool.freeCount++
	alloc.reservedPages--
	return nil
}

// AllocFrame reserves and returns the first available frame, scanning pools
// in physical address order.
func (alloc *BitmapAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	for poolIndex := 0; poolIndex < alloc.poolCount; poolIndex++ {
		pool := &alloc.pools[poolIndex]
		if pool.freeCount == 0 {
			continue
		}

		for wordIndex, word := range pool.freeBitmap {
			if word == ^uint64(0) {
				continue
			}

			for bit := uint(0); bit < 64; bit++ {
				mask := uint64(1) << bit
				if word&mask != 0 {
					continue
				}

				frame := pool.startFrame + mm.Frame(wordIndex<<6) + mm.Frame(bit)
				if frame > pool.endFrame {
					break
				}

				pool.freeBitmap[wordIndex] |= mask
				pool.freeCount--
				alloc.reservedPages++
				return frame, nil
			}
		}
	}

	return mm.InvalidFrame, errBitmapAllocOutOfMemory
}

// FreeFrame releases a frame previously returned by AllocFrame. Releasing a
// frame that is not reserved or that belongs to no pool is an error.
func (alloc *BitmapAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	return alloc.markFrame(frame, false)
}
