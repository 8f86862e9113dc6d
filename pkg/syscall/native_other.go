//go:build !linux

package syscall

import (
	"fmt"
	"runtime"

	"github.com/fortiblox/sscvm/pkg/vm"
)

// Native is unavailable outside Linux; every call fails.
type Native struct {
	LastErrno uintptr
}

// NewNative returns a native bridge.
func NewNative() *Native {
	return &Native{}
}

// Invoke implements vm.Bridge.
func (n *Native) Invoke(mem vm.Memory, nr int64, args [vm.MaxSyscallArgs]uint64) (int64, error) {
	return 0, fmt.Errorf("%w (%s/%s)", ErrUnsupported, runtime.GOOS, runtime.GOARCH)
}
