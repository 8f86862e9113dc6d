//go:build linux

package syscall

import (
	"runtime"

	"github.com/fortiblox/sscvm/pkg/vm"
	"golang.org/x/sys/unix"
)

// Native issues real syscalls. Like syscall(2) in libc it returns -1 when
// the kernel reports an error and keeps the errno in LastErrno.
type Native struct {
	LastErrno unix.Errno
}

// NewNative returns a native bridge.
func NewNative() *Native {
	return &Native{}
}

// Invoke implements vm.Bridge.
func (n *Native) Invoke(mem vm.Memory, nr int64, args [vm.MaxSyscallArgs]uint64) (int64, error) {
	r1, _, errno := unix.Syscall6(uintptr(nr),
		uintptr(args[0]), uintptr(args[1]), uintptr(args[2]),
		uintptr(args[3]), uintptr(args[4]), uintptr(args[5]))
	// Variable buffers are referenced only through mem while the kernel
	// may be using them.
	runtime.KeepAlive(mem)

	n.LastErrno = errno
	if errno != 0 {
		return -1, nil
	}
	return int64(r1), nil
}
