package vm

// Memory gives a syscall bridge access to the variables of the running
// interpreter, so that variable handles passed as arguments can be turned
// back into buffers.
type Memory interface {
	// Translate returns size bytes at addr; the range must lie inside a
	// single variable.
	Translate(addr, size uint64) ([]byte, error)
}

// Bridge forwards a syscall to the host. It receives the full argument
// array regardless of how many arguments the instruction declared.
type Bridge interface {
	Invoke(mem Memory, nr int64, args [MaxSyscallArgs]uint64) (int64, error)
}

// BridgeFunc is a function that implements Bridge.
type BridgeFunc func(mem Memory, nr int64, args [MaxSyscallArgs]uint64) (int64, error)

// Invoke implements Bridge.
func (f BridgeFunc) Invoke(mem Memory, nr int64, args [MaxSyscallArgs]uint64) (int64, error) {
	return f(mem, nr, args)
}
