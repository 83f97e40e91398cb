package vmm

import (
	"unsafe"

	"github.com/silent-rain/arceos/kernel"
	"github.com/silent-rain/arceos/kernel/mm"
)

var errBadUserAccess = &kernel.Error{Module: "vmm", Message: "user buffer crosses an unmapped or non-user-accessible page"}

// CopyFromUser copies len(dst) bytes out of this address space starting at
// the user virtual address virtAddr. Every page touched by the copy must be
// mapped with both FlagUser and FlagRead; demand-zero pages that have not
// been written yet read back as zeroes. The copy goes through the physical
// frames backing the buffer so it works regardless of which address space is
// currently active.
func (space *AddressSpace) CopyFromUser(dst []byte, virtAddr uintptr) *kernel.Error {
	for copied := 0; copied < len(dst); {
		frame, flags, err := space.Translate(virtAddr)
		if err != nil || !flags.hasAll(FlagUser|FlagRead) {
			return errBadUserAccess
		}

		pageOff := virtAddr & (mm.PageSize - 1)
		chunk := int(mm.PageSize - pageOff)
		if remaining := len(dst) - copied; chunk > remaining {
			chunk = remaining
		}

		kernel.Memcopy(
			frame.Address()+pageOff,
			uintptr(unsafe.Pointer(&dst[copied])),
			uintptr(chunk),
		)

		copied += chunk
		virtAddr += uintptr(chunk)
	}

	return nil
}

func (flags PageTableEntryFlag) hasAll(want PageTableEntryFlag) bool {
	return flags&want == want
}
