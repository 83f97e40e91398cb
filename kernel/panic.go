package kernel

import (
	"github.com/silent-rain/arceos/kernel/cpu"
	"github.com/silent-rain/arceos/kernel/kfmt"
)

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the
	// compiler.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &Error{Module: "rt", Message: "unknown cause"}
)

// Panic outputs the supplied error (if not nil) to the console and halts the
// hart. Calls to Panic never return. Kernel-state corruption cannot be
// safely contained so this is the only legal response to a kernel-fatal
// condition.
func Panic(e interface{}) {
	var err *Error

	switch t := e.(type) {
	case *Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	kfmt.Printf("\n-----------------------------------\n")
	if err != nil {
		kfmt.Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	kfmt.Printf("*** kernel panic: system halted ***")
	kfmt.Printf("\n-----------------------------------\n")

	cpuHaltFn()
}
