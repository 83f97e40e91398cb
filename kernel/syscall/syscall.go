// Package syscall implements the kernel side of the system call ABI: a
// table of numbered handlers plus the built-in exit, write, yield and wait
// calls. The trap dispatcher extracts the call number and arguments from
// the saved frame and funnels them through Invoke; results travel back to
// user code as a single register value, negative on error.
package syscall

import (
	"github.com/silent-rain/arceos/kernel"
	"github.com/silent-rain/arceos/kernel/task"
)

// System call numbers understood by the built-in handlers.
const (
	SysExit  = uint64(1)
	SysWrite = uint64(2)
	SysYield = uint64(3)
	SysWait  = uint64(4)
)

// Errno values returned (negated) to user code.
const (
	EBADF  = 9
	ECHILD = 10
	EFAULT = 14
	ENOSYS = 38
)

// maxSyscalls bounds the size of the handler table.
const maxSyscalls = 64

var (
	errSyscallOutOfRange = &kernel.Error{Module: "syscall", Message: "syscall number exceeds the handler table size"}
	errSyscallRegistered = &kernel.Error{Module: "syscall", Message: "syscall number is already registered"}

	handlers [maxSyscalls]Handler
)

// Handler implements one system call on behalf of tcb. The args slots hold
// the register-passed arguments in order; unused slots read as garbage and
// must be ignored. The returned value is stored into the caller's result
// register: non-negative on success, a negated errno on failure.
type Handler func(tcb *task.TCB, args *Args) int64

// Args carries the register-passed system call arguments.
type Args [6]uint64

// Register installs a handler for the supplied system call number.
// Registering over an existing handler is refused so collaborators cannot
// silently hijack the built-in calls.
func Register(num uint64, handler Handler) *kernel.Error {
	if num >= maxSyscalls {
		return errSyscallOutOfRange
	}

	if handlers[num] != nil {
		return errSyscallRegistered
	}

	handlers[num] = handler
	return nil
}

// Invoke executes the handler for the supplied system call number on behalf
// of tcb. Unknown numbers report -ENOSYS to the caller instead of raising a
// kernel error.
func Invoke(tcb *task.TCB, num uint64, args *Args) int64 {
	if num >= maxSyscalls || handlers[num] == nil {
		return -ENOSYS
	}

	return handlers[num](tcb, args)
}

// Init installs the built-in system call handlers.
func Init() *kernel.Error {
	for _, entry := range []struct {
		num     uint64
		handler Handler
	}{
		{SysExit, handleExit},
		{SysWrite, handleWrite},
		{SysYield, handleYield},
		{SysWait, handleWait},
	} {
		if err := Register(entry.num, entry.handler); err != nil {
			return err
		}
	}

	return nil
}
