package vmm

import (
	"github.com/silent-rain/arceos/kernel"
	"github.com/silent-rain/arceos/kernel/mm"
)

// ReservedZeroedFrame is a special zero-cleared frame allocated by the vmm
// package's Init function. Demand-zero regions installed via MapLazyRange
// alias this frame read-only so that reads observe zeroes without consuming
// physical memory. The first write to such a page faults, at which point
// ResolveFault allocates a private frame, clears it and installs it in place
// with write permission.
var ReservedZeroedFrame mm.Frame

var (
	// protectReservedZeroedPage is set to true once ReservedZeroedFrame
	// has been initialized to prevent it from being mapped writable.
	protectReservedZeroedPage bool

	// kernelSpace holds the address space containing only the kernel's
	// global mappings. Every address space created afterwards shares its
	// top-level entries.
	kernelSpace *AddressSpace
)

// Init initializes the vmm system: it constructs the kernel address space,
// identity maps the regions described by the supplied ranges with global
// kernel permissions, reserves the shared zeroed frame and activates the
// kernel space.
//
// Each range is a (physical address, length) pair; devices and the kernel
// image itself are expected to appear in the list so that kernel code keeps
// executing once translation is switched on.
func Init(identityRanges []IdentityRange) *kernel.Error {
	space, err := NewAddressSpace()
	if err != nil {
		return err
	}

	for _, r := range identityRanges {
		if err = space.IdentityMapRegion(mm.FrameFromAddress(r.PhysAddress), r.Length, r.Flags|FlagGlobal); err != nil {
			return err
		}
	}

	if err = reserveZeroedFrame(); err != nil {
		return err
	}

	kernelSpace = space
	space.Activate()

	return nil
}

// IdentityRange describes a physical memory region that Init maps at the
// virtual addresses equal to its physical addresses.
type IdentityRange struct {
	PhysAddress uintptr
	Length      uintptr
	Flags       PageTableEntryFlag
}

// KernelSpace returns the address space holding the kernel's global
// mappings.
func KernelSpace() *AddressSpace {
	return kernelSpace
}

// IdentityMapRegion establishes an identity mapping to the physical memory
// region which starts at the given frame and ends at frame + pages(size).
// The size argument is always rounded up to the nearest page boundary.
func (space *AddressSpace) IdentityMapRegion(startFrame mm.Frame, size uintptr, flags PageTableEntryFlag) *kernel.Error {
	startPage := mm.Page(startFrame)
	pageCount := mm.Page(((size + (mm.PageSize - 1)) & ^(mm.PageSize - 1)) >> mm.PageShift)

	for curPage := startPage; curPage < startPage+pageCount; curPage++ {
		if err := space.Map(curPage, mm.Frame(curPage), flags); err != nil {
			return err
		}
	}

	return nil
}

// reserveZeroedFrame reserves and clears the physical frame backing every
// demand-zero page until its first write.
func reserveZeroedFrame() *kernel.Error {
	var err *kernel.Error

	if ReservedZeroedFrame, err = mm.AllocFrame(); err != nil {
		return err
	}
	kernel.Memset(ReservedZeroedFrame.Address(), 0, mm.PageSize)

	// From this point on, ReservedZeroedFrame cannot be mapped writable
	protectReservedZeroedPage = true
	return nil
}
