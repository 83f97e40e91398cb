package vmm

const (
	// pageLevels indicates the number of page table levels used by the
	// Sv39 translation scheme.
	pageLevels = 3

	// pteFrameShift is the number of bits that the physical frame number
	// is shifted left by when encoded inside a page table entry.
	pteFrameShift = 10

	// ptePhysPageMask is a mask that allows us to extract the physical
	// frame number encoded in a page table entry. For Sv39, bits 10-53
	// contain the PPN.
	ptePhysPageMask = uint64(0x003ffffffffffc00)

	// satpModeSv39 selects the Sv39 translation mode when written to the
	// mode field of the satp register.
	satpModeSv39 = uintptr(8) << 60
)

var (
	// pageLevelBits defines the number of virtual address bits that
	// correspond to each page level. Sv39 uses 9 bits per level which
	// amounts to 512 entries for each page table.
	pageLevelBits = [pageLevels]uint8{
		9,
		9,
		9,
	}

	// pageLevelShifts defines the shift required to access each page
	// table component of a virtual address.
	pageLevelShifts = [pageLevels]uint8{
		30,
		21,
		12,
	}
)

const (
	// FlagValid is set when the entry describes a live translation. An
	// entry with this flag cleared is ignored by the MMU and all of its
	// other bits are free for software use.
	FlagValid PageTableEntryFlag = 1 << iota

	// FlagRead is set if the page can be read from.
	FlagRead

	// FlagWrite is set if the page can be written to.
	FlagWrite

	// FlagExec is set if instructions can be fetched from the page.
	FlagExec

	// FlagUser is set if user-mode code can access this page. If not set
	// only supervisor code can access this page.
	FlagUser

	// FlagGlobal marks a mapping that is shared across all address
	// spaces. The physical frames behind global mappings are not owned
	// by any single address space and are never reclaimed by Unmap or
	// Destroy.
	FlagGlobal

	// FlagAccessed is set by the CPU when the page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when the page is modified.
	FlagDirty

	// FlagLazy marks a page that is backed by the shared zeroed frame
	// until its first write. The hardware ignores this bit; the fault
	// handler uses it to tell a lazily-backed page apart from a genuine
	// protection violation. This flag and FlagWrite are mutually
	// exclusive.
	FlagLazy

	// flagRWX selects the permission bits that make an entry a leaf. An
	// entry with all three cleared points to the next level table.
	flagRWX = FlagRead | FlagWrite | FlagExec
)
