// Package bootinfo provides access to the boot handoff information that the
// loader passes to kernel initialization: the physical memory map, the
// location of the loaded kernel image and the set of task images to spawn.
package bootinfo

// MemRegionType describes the type of a memory region reported by the boot
// loader.
type MemRegionType uint32

const (
	// MemAvailable represents RAM that the frame allocator may hand out.
	MemAvailable MemRegionType = iota

	// MemReserved represents memory that must never be allocated
	// (firmware, MMIO windows, the loaded kernel image).
	MemReserved
)

// String implements fmt.Stringer for MemRegionType.
func (t MemRegionType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	default:
		return "unknown"
	}
}

// MemRegion describes one contiguous physical memory region.
type MemRegion struct {
	// PhysAddress is the physical start address of the region. It is not
	// required to be page-aligned.
	PhysAddress uint64

	// Length is the region size in bytes.
	Length uint64

	// Type flags whether the region is allocatable RAM.
	Type MemRegionType
}

// TaskImage describes one loadable task image: a contiguous in-memory blob
// with an entry point. Parsing executable formats is the loader's job; the
// kernel only consumes the pre-located segments.
type TaskImage struct {
	// Name is a human readable identifier used in diagnostics.
	Name string

	// Data holds the image contents. It is copied into freshly allocated
	// frames when the task's address space is built.
	Data []byte

	// LoadAddr is the virtual address the image must be mapped at.
	LoadAddr uintptr

	// Entry is the virtual address of the first instruction to execute.
	Entry uintptr
}

// Info is the boot handoff payload assembled by the loader.
type Info struct {
	// MemRegions describes the physical memory map.
	MemRegions []MemRegion

	// KernelStart and KernelEnd delimit the physical region occupied by
	// the kernel image; the frame allocator must treat it as reserved.
	KernelStart uintptr
	KernelEnd   uintptr

	// TaskImages lists the initial task images to spawn.
	TaskImages []TaskImage
}

// info holds the handoff payload registered via Set.
var info *Info

// Set registers the boot handoff payload. It must be called exactly once,
// before any component that consumes boot information is initialized.
func Set(i *Info) {
	info = i
}

// Get returns the registered boot handoff payload or nil if Set has not been
// called yet.
func Get() *Info {
	return info
}

// MemRegionVisitor is invoked by VisitMemRegions for each memory region. If
// it returns false, the scan is aborted.
type MemRegionVisitor func(region *MemRegion) bool

// VisitMemRegions invokes the supplied visitor for each memory region in the
// boot memory map.
func VisitMemRegions(visitor MemRegionVisitor) {
	if info == nil {
		return
	}

	for i := range info.MemRegions {
		if !visitor(&info.MemRegions[i]) {
			return
		}
	}
}
