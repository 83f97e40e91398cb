package kernel

import (
	"testing"
	"unsafe"
)

func TestMemset(t *testing.T) {
	// memsetting a zero-sized region must not touch anything
	Memset(uintptr(0), 0x00, 0)

	var buf [64]byte
	for i := 0; i < len(buf); i++ {
		buf[i] = byte(i)
	}

	Memset(uintptr(unsafe.Pointer(&buf[0])), 0xfe, uintptr(len(buf)))

	for i := 0; i < len(buf); i++ {
		if got := buf[i]; got != 0xfe {
			t.Errorf("expected byte %d to be set to 0xfe; got 0x%x", i, got)
		}
	}
}

func TestMemcopy(t *testing.T) {
	// copying a zero-sized region must not touch anything
	Memcopy(uintptr(0), uintptr(0), 0)

	var src, dst [64]byte
	for i := 0; i < len(src); i++ {
		src[i] = byte(i)
	}

	Memcopy(
		uintptr(unsafe.Pointer(&src[0])),
		uintptr(unsafe.Pointer(&dst[0])),
		uintptr(len(src)),
	)

	for i := 0; i < len(dst); i++ {
		if exp, got := byte(i), dst[i]; exp != got {
			t.Errorf("expected byte %d to be 0x%x; got 0x%x", i, exp, got)
		}
	}
}
