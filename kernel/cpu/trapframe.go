package cpu

import "github.com/silent-rain/arceos/kernel/kfmt"

// Sstatus register bits examined by the trap dispatch code.
const (
	// SstatusSPP reflects the privilege mode the hart was executing in
	// before the trap was taken (0 = user, 1 = supervisor).
	SstatusSPP = uint64(1 << 8)

	// SstatusSPIE holds the interrupt-enable bit that is restored into
	// SIE when the trap returns.
	SstatusSPIE = uint64(1 << 5)
)

// TrapFrame contains a snapshot of all general purpose register values plus
// the sepc/sstatus control registers captured when a trap was taken. The
// field order matches the save/restore sequence in cpu_riscv64.s and must
// not be changed without updating the assembly offsets.
//
// A TrapFrame is plain data: it is written by the trap entry code, read and
// mutated by the dispatcher and restored by the resume path. No other code
// may manipulate a frame that belongs to an executing task.
type TrapFrame struct {
	RA  uint64 // x1
	SP  uint64 // x2
	GP  uint64 // x3
	TP  uint64 // x4
	T0  uint64 // x5
	T1  uint64 // x6
	T2  uint64 // x7
	S0  uint64 // x8
	S1  uint64 // x9
	A0  uint64 // x10
	A1  uint64 // x11
	A2  uint64 // x12
	A3  uint64 // x13
	A4  uint64 // x14
	A5  uint64 // x15
	A6  uint64 // x16
	A7  uint64 // x17
	S2  uint64 // x18
	S3  uint64 // x19
	S4  uint64 // x20
	S5  uint64 // x21
	S6  uint64 // x22
	S7  uint64 // x23
	S8  uint64 // x24
	S9  uint64 // x25
	S10 uint64 // x26
	S11 uint64 // x27
	T3  uint64 // x28
	T4  uint64 // x29
	T5  uint64 // x30
	T6  uint64 // x31

	// Sepc holds the program counter to resume at when the frame is
	// restored via sret.
	Sepc uint64

	// Sstatus holds the saved status register including the SPP/SPIE
	// bits that select the resume privilege mode.
	Sstatus uint64

	// KernelSP holds the top of the kernel stack the trap entry code
	// switches to before calling into Go.
	KernelSP uint64
}

// Print outputs a dump of the register values to the active console.
func (f *TrapFrame) Print() {
	kfmt.Printf("ra  = %16x sp  = %16x\n", f.RA, f.SP)
	kfmt.Printf("gp  = %16x tp  = %16x\n", f.GP, f.TP)
	kfmt.Printf("t0  = %16x t1  = %16x\n", f.T0, f.T1)
	kfmt.Printf("t2  = %16x s0  = %16x\n", f.T2, f.S0)
	kfmt.Printf("s1  = %16x a0  = %16x\n", f.S1, f.A0)
	kfmt.Printf("a1  = %16x a2  = %16x\n", f.A1, f.A2)
	kfmt.Printf("a3  = %16x a4  = %16x\n", f.A3, f.A4)
	kfmt.Printf("a5  = %16x a6  = %16x\n", f.A5, f.A6)
	kfmt.Printf("a7  = %16x s2  = %16x\n", f.A7, f.S2)
	kfmt.Printf("s3  = %16x s4  = %16x\n", f.S3, f.S4)
	kfmt.Printf("s5  = %16x s6  = %16x\n", f.S5, f.S6)
	kfmt.Printf("s7  = %16x s8  = %16x\n", f.S7, f.S8)
	kfmt.Printf("s9  = %16x s10 = %16x\n", f.S9, f.S10)
	kfmt.Printf("s11 = %16x t3  = %16x\n", f.S11, f.T3)
	kfmt.Printf("t4  = %16x t5  = %16x\n", f.T4, f.T5)
	kfmt.Printf("t6  = %16x\n", f.T6)
	kfmt.Printf("sepc    = %16x\n", f.Sepc)
	kfmt.Printf("sstatus = %16x\n", f.Sstatus)
}
