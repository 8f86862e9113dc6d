// Package syscall provides host bridges for the ssc interpreter.
//
// Two bridges exist. Native forwards the syscall number and all six
// arguments to the operating system unchanged; variable handles are real
// addresses, so pointer arguments work as they would from C. Registry is a
// sandbox that services a handful of syscalls in Go and answers -ENOSYS to
// everything else.
//
// Syscall numbers follow the Linux x86-64 table, which is what ssc
// programs are compiled against.
package syscall

import (
	"errors"
)

// Syscall numbers serviced by the sandbox.
const (
	SysRead   = 0
	SysWrite  = 1
	SysGetpid = 39
	SysGetuid = 102
)

// Errno values returned (negated) by the sandbox.
const (
	EBADF  = 9
	EFAULT = 14
	ENOSYS = 38
)

var (
	// ErrUnsupported is returned by the native bridge on platforms without
	// raw syscalls.
	ErrUnsupported = errors.New("native syscalls not supported on this platform")
)
