package vmm

import (
	"github.com/silent-rain/arceos/kernel"
	"github.com/silent-rain/arceos/kernel/mm"
)

var errUnresolvableFault = &kernel.Error{Module: "vmm", Message: "page fault cannot be resolved by the address space"}

// ResolveFault attempts to recover from a page fault at faultAddr inside
// this address space. The only recoverable fault is a write to a demand-zero
// page installed by MapLazyRange: the shared zeroed frame is replaced by a
// freshly allocated private frame mapped with write permission. Any other
// fault is unresolvable and left to the caller to turn into a task-fatal
// condition.
func (space *AddressSpace) ResolveFault(faultAddr uintptr) *kernel.Error {
	var (
		faultPage = mm.PageFromAddress(faultAddr)
		pageEntry *pageTableEntry
	)

	// Lookup the leaf entry for the page where the fault occurred
	walk(space.rootFrame, faultPage.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		nextIsValid := pte.HasFlags(FlagValid)

		if pteLevel == pageLevels-1 && nextIsValid {
			pageEntry = pte
		}

		// Abort the walk if the next page table entry is missing
		return nextIsValid
	})

	if pageEntry == nil || !pageEntry.HasFlags(FlagLazy) {
		return errUnresolvableFault
	}

	private, err := mm.AllocFrame()
	if err != nil {
		return err
	}

	// Replace the shared zeroed frame with the cleared private copy,
	// granting write permission and retiring the lazy marker
	kernel.Memset(private.Address(), 0, mm.PageSize)
	pageEntry.ClearFlags(FlagLazy)
	pageEntry.SetFlags(FlagRead | FlagWrite)
	pageEntry.SetFrame(private)
	space.flushEntry(faultPage.Address())

	return nil
}
