package kmain

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/silent-rain/arceos/device/uart"
	"github.com/silent-rain/arceos/kernel"
	"github.com/silent-rain/arceos/kernel/cpu"
	"github.com/silent-rain/arceos/kernel/hal/bootinfo"
	"github.com/silent-rain/arceos/kernel/mm"
	"github.com/silent-rain/arceos/kernel/mm/vmm"
	"github.com/silent-rain/arceos/kernel/task"
)

// kmainTestAllocator hands out page-aligned frames carved out of Go
// allocations so the task loading code can populate real memory.
type kmainTestAllocator struct {
	bufs [][]byte
}

func (a *kmainTestAllocator) alloc() (mm.Frame, *kernel.Error) {
	buf := make([]byte, 2*mm.PageSize)
	a.bufs = append(a.bufs, buf)

	addr := (uintptr(unsafe.Pointer(&buf[0])) + mm.PageSize - 1) & ^(mm.PageSize - 1)
	return mm.Frame(addr >> mm.PageShift), nil
}

func (a *kmainTestAllocator) free(frame mm.Frame) *kernel.Error {
	return nil
}

func frameContents(frame mm.Frame) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(frame.Address())), int(mm.PageSize))
}

func TestLoadTask(t *testing.T) {
	defer func() {
		task.Registry = task.TCBRegistry{}
		mm.SetFrameAllocator(nil)
		mm.SetFrameReclaimer(nil)
		vmm.ReservedZeroedFrame = 0
	}()

	alloc := &kmainTestAllocator{}
	mm.SetFrameAllocator(alloc.alloc)
	mm.SetFrameReclaimer(alloc.free)

	zeroFrame, _ := alloc.alloc()
	vmm.ReservedZeroedFrame = zeroFrame

	payload := make([]byte, int(mm.PageSize)+123)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	img := &bootinfo.TaskImage{
		Name:     "init",
		Data:     payload,
		LoadAddr: 0x40000000,
		Entry:    0x40000010,
	}

	id, err := loadTask(img)
	if err != nil {
		t.Fatal(err)
	}

	tcb, lookupErr := task.Registry.Lookup(id)
	if lookupErr != nil {
		t.Fatal(lookupErr)
	}

	if exp := uint64(img.Entry); tcb.Frame.Sepc != exp {
		t.Errorf("expected sepc to be %x; got %x", exp, tcb.Frame.Sepc)
	}

	if exp := uint64(userStackTop); tcb.Frame.SP != exp {
		t.Errorf("expected sp to point at the stack top %x; got %x", exp, tcb.Frame.SP)
	}

	if tcb.Frame.Sstatus != cpu.SstatusSPIE {
		t.Errorf("expected sstatus to select user mode with interrupts enabled; got %x", tcb.Frame.Sstatus)
	}

	if !tcb.KernelStack.Valid() {
		t.Fatal("expected a kernel stack frame to be allocated")
	}

	if exp := uint64(tcb.KernelStack.Address()) + uint64(mm.PageSize); tcb.Frame.KernelSP != exp {
		t.Errorf("expected kernel sp to be %x; got %x", exp, tcb.Frame.KernelSP)
	}

	// The image must be copied into private frames with full user access.
	var imgData []byte
	for off := uintptr(0); off < uintptr(len(payload)); off += mm.PageSize {
		frame, flags, err := tcb.Space.Translate(img.LoadAddr + off)
		if err != nil {
			t.Fatal(err)
		}

		wantFlags := vmm.FlagRead | vmm.FlagWrite | vmm.FlagExec | vmm.FlagUser
		if flags&wantFlags != wantFlags {
			t.Errorf("expected image page at offset %d to be mapped rwxu; got flags %x", off, flags)
		}

		imgData = append(imgData, frameContents(frame)...)
	}

	if !bytes.Equal(imgData[:len(payload)], payload) {
		t.Error("expected the image contents to be copied into the mapped frames")
	}

	for _, b := range imgData[len(payload):] {
		if b != 0 {
			t.Error("expected the image tail padding to be zeroed")
			break
		}
	}

	// The stack pages alias the shared zeroed frame until first write.
	for pageIdx := 0; pageIdx < userStackPages; pageIdx++ {
		addr := userStackTop - uintptr(pageIdx+1)*mm.PageSize

		frame, flags, err := tcb.Space.Translate(addr)
		if err != nil {
			t.Fatalf("expected stack page at %x to be mapped: %v", addr, err)
		}

		if frame != zeroFrame {
			t.Errorf("expected stack page at %x to alias the shared zeroed frame", addr)
		}

		if flags&vmm.FlagUser == 0 || flags&vmm.FlagWrite != 0 {
			t.Errorf("expected stack page at %x to be mapped read-only for user mode; got flags %x", addr, flags)
		}
	}

	// The slot below the stack must stay unmapped to catch overflows.
	if _, _, err := tcb.Space.Translate(userStackTop - uintptr(userStackPages+1)*mm.PageSize); err != vmm.ErrNotMapped {
		t.Errorf("expected the page below the stack to be unmapped; got %v", err)
	}
}

func TestIdentityRanges(t *testing.T) {
	defer bootinfo.Set(nil)

	bootinfo.Set(&bootinfo.Info{
		MemRegions: []bootinfo.MemRegion{
			{PhysAddress: 0x80000000, Length: 0x8000000, Type: bootinfo.MemAvailable},
			{PhysAddress: 0x0, Length: 0x10000, Type: bootinfo.MemReserved},
			{PhysAddress: 0x88000000, Length: 0x4000000, Type: bootinfo.MemAvailable},
		},
	})

	ranges := identityRanges()
	if exp := 3; len(ranges) != exp {
		t.Fatalf("expected %d identity ranges; got %d", exp, len(ranges))
	}

	if ranges[0].PhysAddress != uart.MMIOBase || ranges[0].Flags&vmm.FlagExec != 0 {
		t.Errorf("expected the first range to be the non-executable UART window; got %+v", ranges[0])
	}

	for i, exp := range []uintptr{0x80000000, 0x88000000} {
		r := ranges[i+1]
		wantFlags := vmm.FlagRead | vmm.FlagWrite | vmm.FlagExec
		if r.PhysAddress != exp || r.Flags != wantFlags {
			t.Errorf("expected range %d to identity map RAM at %x; got %+v", i+1, exp, r)
		}
	}
}
