package vmm

import (
	"unsafe"

	"github.com/silent-rain/arceos/kernel/mm"
)

var (
	// ptePtrFn returns a pointer to the supplied entry address. It is
	// used by tests to override the generated page table entry pointers
	// so walk() can be properly tested. When compiling the kernel this
	// function will be automatically inlined.
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(entryAddr)
	}
)

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and page table entry as its
// arguments. If the function returns false, then the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address starting at
// the table identified by rootFrame. It calls the supplied walkFn with the
// page table entry that corresponds to each page table level.
//
// Sv39 provides no recursive-mapping shortcut so the walk follows the
// physical frame pointers stored in each non-leaf entry. This relies on the
// kernel's view of physical memory being identity-mapped, which Init
// establishes before any address space is constructed.
//
// Since walkFn for the last level may dereference an entry inside a table
// that does not exist yet, callers must return false from walkFn whenever a
// non-leaf entry without FlagValid is encountered.
func walk(rootFrame mm.Frame, virtAddr uintptr, walkFn pageTableWalker) {
	var (
		level      uint8
		tableAddr  = rootFrame.Address()
		entryIndex uintptr
		pte        *pageTableEntry
	)

	for level = 0; level < pageLevels; level++ {
		// Extract the bits from the virtual address that correspond
		// to the index in this level's page table
		entryIndex = (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)

		pte = (*pageTableEntry)(ptePtrFn(tableAddr + (entryIndex << mm.PointerShift)))
		if !walkFn(level, pte) {
			return
		}

		// Follow the frame pointer to the next level table
		tableAddr = pte.Frame().Address()
	}
}
