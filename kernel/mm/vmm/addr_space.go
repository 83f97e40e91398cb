package vmm

import (
	"github.com/silent-rain/arceos/kernel"
	"github.com/silent-rain/arceos/kernel/cpu"
	"github.com/silent-rain/arceos/kernel/mm"
)

var (
	// flushTLBEntryFn is used by tests to override calls to FlushTLBEntry
	// which will cause a fault if called in user-mode.
	flushTLBEntryFn = cpu.FlushTLBEntry

	// switchTranslationRootFn is used by tests to override calls to
	// SwitchTranslationRoot which will cause a fault if called in
	// user-mode.
	switchTranslationRootFn = cpu.SwitchTranslationRoot

	// activeSpace tracks the address space currently bound to the
	// hardware translation root.
	activeSpace *AddressSpace

	// ErrAlreadyMapped is returned when attempting to map a page that is
	// already backed by a valid translation entry.
	ErrAlreadyMapped = &kernel.Error{Module: "vmm", Message: "virtual page is already mapped"}

	// ErrNotMapped is returned when trying to look up a virtual memory
	// address that is not yet mapped.
	ErrNotMapped = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errSpaceActive                 = &kernel.Error{Module: "vmm", Message: "cannot destroy the active address space"}
	errNoSuperPageSupport          = &kernel.Error{Module: "vmm", Message: "superpages are not supported"}
	errAttemptToRWMapReservedFrame = &kernel.Error{Module: "vmm", Message: "reserved blank frame cannot be mapped with a write flag"}
)

// AddressSpace describes the complete virtual-to-physical translation set
// owned by one task. Every space shares the kernel's global mappings; the
// remaining mappings belong exclusively to the space and the physical frames
// behind them are released when the space is destroyed.
type AddressSpace struct {
	rootFrame mm.Frame
}

// NewAddressSpace allocates and initializes a fresh address space with no
// task mappings. The kernel's global mappings are shared into the new space
// by aliasing the kernel top-level entries, so the kernel remains reachable
// while the space is active.
func NewAddressSpace() (*AddressSpace, *kernel.Error) {
	rootFrame, err := mm.AllocFrame()
	if err != nil {
		return nil, err
	}

	kernel.Memset(rootFrame.Address(), 0, mm.PageSize)
	if kernelSpace != nil {
		kernel.Memcopy(kernelSpace.rootFrame.Address(), rootFrame.Address(), mm.PageSize)
	}

	return &AddressSpace{rootFrame: rootFrame}, nil
}

// Map establishes a translation between a virtual page and a physical memory
// frame. Calls to Map will use the registered physical frame allocator to
// initialize missing page tables at each translation level. On success the
// space takes ownership of frame unless flags contains FlagGlobal or
// FlagLazy.
//
// Attempts to map ReservedZeroedFrame with a write flag will result in an
// error.
func (space *AddressSpace) Map(page mm.Page, frame mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	if protectReservedZeroedPage && frame == ReservedZeroedFrame && (flags&FlagWrite) != 0 {
		return errAttemptToRWMapReservedFrame
	}

	var err *kernel.Error

	walk(space.rootFrame, page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to map the
		// frame in place, mark the entry valid and flush its TLB entry
		if pteLevel == pageLevels-1 {
			if pte.HasFlags(FlagValid) {
				err = ErrAlreadyMapped
				return false
			}

			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(flags | FlagValid)
			space.flushEntry(page.Address())
			return true
		}

		if pte.HasFlags(FlagValid) && pte.isLeaf() {
			err = errNoSuperPageSupport
			return false
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it and clear its contents.
		if !pte.HasFlags(FlagValid) {
			var tableFrame mm.Frame
			tableFrame, err = mm.AllocFrame()
			if err != nil {
				return false
			}

			kernel.Memset(tableFrame.Address(), 0, mm.PageSize)
			*pte = 0
			pte.SetFrame(tableFrame)
			pte.SetFlags(FlagValid | (flags & FlagGlobal))
		}

		return true
	})

	return err
}

// MapRange establishes translations for pageCount consecutive pages starting
// at startPage, backed by the consecutive physical frames starting at
// startFrame. MapRange is all-or-nothing: if any page in the range fails to
// map, every entry installed by the call is removed and the caller retains
// ownership of all frames.
func (space *AddressSpace) MapRange(startPage mm.Page, startFrame mm.Frame, pageCount int, flags PageTableEntryFlag) *kernel.Error {
	for i := 0; i < pageCount; i++ {
		if err := space.Map(startPage+mm.Page(i), startFrame+mm.Frame(i), flags); err != nil {
			for ; i > 0; i-- {
				_ = space.unmap(startPage+mm.Page(i-1), false)
			}
			return err
		}
	}

	return nil
}

// MapLazyRange installs demand-zero translations for pageCount consecutive
// pages starting at startPage. Each page is aliased read-only to
// ReservedZeroedFrame; the first write triggers a page fault which allocates
// a private writable frame in its place. The flags argument may supply
// FlagUser; permission bits are managed by the lazy protocol itself.
func (space *AddressSpace) MapLazyRange(startPage mm.Page, pageCount int, flags PageTableEntryFlag) *kernel.Error {
	lazyFlags := (flags &^ (FlagWrite | FlagGlobal)) | FlagRead | FlagLazy

	for i := 0; i < pageCount; i++ {
		if err := space.Map(startPage+mm.Page(i), ReservedZeroedFrame, lazyFlags); err != nil {
			for ; i > 0; i-- {
				_ = space.unmap(startPage+mm.Page(i-1), false)
			}
			return err
		}
	}

	return nil
}

// Unmap removes the translation for a virtual page and releases the backing
// frame if the space owns it. Unmapping a page that is not mapped is a
// no-op.
func (space *AddressSpace) Unmap(page mm.Page) *kernel.Error {
	return space.unmap(page, true)
}

// UnmapRange removes the translations for pageCount consecutive pages
// starting at startPage. Pages in the range that are not mapped are skipped.
func (space *AddressSpace) UnmapRange(startPage mm.Page, pageCount int) *kernel.Error {
	for i := 0; i < pageCount; i++ {
		if err := space.Unmap(startPage + mm.Page(i)); err != nil {
			return err
		}
	}

	return nil
}

func (space *AddressSpace) unmap(page mm.Page, reclaim bool) *kernel.Error {
	var err *kernel.Error

	walk(space.rootFrame, page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			// Unmapping a non-present page is a no-op
			if !pte.HasFlags(FlagValid) {
				return false
			}

			if reclaim && !pte.HasAnyFlag(FlagGlobal|FlagLazy) {
				err = mm.FreeFrame(pte.Frame())
			}

			*pte = 0
			space.flushEntry(page.Address())
			return true
		}

		// Missing intermediate table; nothing is mapped here
		if !pte.HasFlags(FlagValid) {
			return false
		}

		if pte.isLeaf() {
			err = errNoSuperPageSupport
			return false
		}

		return true
	})

	return err
}

// Translate returns the physical frame and the permission flags that back
// the supplied virtual address or ErrNotMapped if no translation exists.
func (space *AddressSpace) Translate(virtAddr uintptr) (mm.Frame, PageTableEntryFlag, *kernel.Error) {
	var (
		frame = mm.InvalidFrame
		flags PageTableEntryFlag
		err   = ErrNotMapped
	)

	walk(space.rootFrame, virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagValid) {
			return false
		}

		if pteLevel == pageLevels-1 {
			frame = pte.Frame()
			flags = pte.Flags()
			err = nil
		}

		return true
	})

	return frame, flags, err
}

// Activate binds this address space to the hardware translation root. Must
// be invoked with interrupts disabled.
func (space *AddressSpace) Activate() {
	switchTranslationRootFn(satpModeSv39 | uintptr(space.rootFrame))
	activeSpace = space
}

// Active returns the address space that is currently bound to the hardware
// translation root.
func Active() *AddressSpace {
	return activeSpace
}

// Destroy tears down every translation owned by this space and releases the
// backing frames together with the page table frames themselves. Global
// mappings shared with the kernel are left untouched. Destroy fails if the
// space is currently active.
func (space *AddressSpace) Destroy() *kernel.Error {
	if activeSpace == space {
		return errSpaceActive
	}

	return destroyTable(space.rootFrame, 0)
}

// destroyTable releases the frames owned by the entries of the page table
// stored in tableFrame, recursing into lower-level tables, and finally
// releases the table frame itself. Subtrees behind global entries are shared
// and skipped.
func destroyTable(tableFrame mm.Frame, level uint8) *kernel.Error {
	var (
		err       *kernel.Error
		tableAddr = tableFrame.Address()
	)

	for index := uintptr(0); index < 1<<pageLevelBits[level]; index++ {
		pte := (*pageTableEntry)(ptePtrFn(tableAddr + (index << mm.PointerShift)))
		if !pte.HasFlags(FlagValid) || pte.HasFlags(FlagGlobal) {
			continue
		}

		if pte.isLeaf() {
			if !pte.HasFlags(FlagLazy) {
				if ferr := mm.FreeFrame(pte.Frame()); ferr != nil && err == nil {
					err = ferr
				}
			}
		} else if level < pageLevels-1 {
			if terr := destroyTable(pte.Frame(), level+1); terr != nil && err == nil {
				err = terr
			}
		}

		*pte = 0
	}

	if ferr := mm.FreeFrame(tableFrame); ferr != nil && err == nil {
		err = ferr
	}

	return err
}

// flushEntry invalidates the cached translation for addr when this space is
// the one the MMU is translating through.
func (space *AddressSpace) flushEntry(addr uintptr) {
	if activeSpace == space {
		flushTLBEntryFn(addr)
	}
}
