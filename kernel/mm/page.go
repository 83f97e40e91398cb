package mm

import (
	"math"

	"github.com/silent-rain/arceos/kernel"
)

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by frame allocators when they fail to
	// reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns a pointer to the physical memory address pointed to by
// this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns a Frame that corresponds to the given physical
// address. This function can handle both page-aligned and not aligned
// addresses. In the latter case, the input address will be rounded down to
// the frame that contains it.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^(PageSize - 1)) >> PageShift)
}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns a pointer to the virtual memory address pointed to by this
// Page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned
// virtual addresses. In the latter case, the input address will be rounded
// down to the page that contains it.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(PageSize - 1)) >> PageShift)
}

var (
	// frameAllocator points to a frame allocator function registered
	// using SetFrameAllocator.
	frameAllocator FrameAllocatorFn

	// frameReclaimer points to a frame release function registered using
	// SetFrameReclaimer.
	frameReclaimer FrameReclaimerFn

	errNoAllocator = &kernel.Error{Module: "mm", Message: "no frame allocator registered"}
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (Frame, *kernel.Error)

// FrameReclaimerFn is a function that can release a previously allocated
// physical frame back to the allocator.
type FrameReclaimerFn func(Frame) *kernel.Error

// SetFrameAllocator registers a frame allocator function that will be used
// by the vmm code when new physical frames need to be allocated.
func SetFrameAllocator(allocFn FrameAllocatorFn) { frameAllocator = allocFn }

// SetFrameReclaimer registers a frame release function that will be used by
// the vmm code when mapped frames are unmapped or their owning address space
// is destroyed.
func SetFrameReclaimer(freeFn FrameReclaimerFn) { frameReclaimer = freeFn }

// AllocFrame allocates a new physical frame using the currently registered
// frame allocator.
func AllocFrame() (Frame, *kernel.Error) {
	if frameAllocator == nil {
		return InvalidFrame, errNoAllocator
	}
	return frameAllocator()
}

// FreeFrame releases a physical frame using the currently registered frame
// reclaimer. Calls made before a reclaimer is registered are silently
// ignored; early boot allocations are never released.
func FreeFrame(frame Frame) *kernel.Error {
	if frameReclaimer == nil {
		return nil
	}
	return frameReclaimer(frame)
}
