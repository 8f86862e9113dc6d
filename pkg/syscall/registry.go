package syscall

import (
	"io"
	"os"

	"github.com/fortiblox/sscvm/pkg/vm"
)

// Handler services one syscall. A negative return is an errno, as the
// kernel would report it; an error aborts the program.
type Handler func(mem vm.Memory, args [vm.MaxSyscallArgs]uint64) (int64, error)

// SandboxConfig wires the sandbox to the outside world.
type SandboxConfig struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Pid    int
	Uid    int
}

// DefaultSandboxConfig returns a configuration bound to the process's
// standard streams and identity.
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Pid:    os.Getpid(),
		Uid:    os.Getuid(),
	}
}

// Registry maps syscall numbers to Go handlers.
type Registry struct {
	handlers map[int64]Handler
	calls    map[int64]uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[int64]Handler),
		calls:    make(map[int64]uint64),
	}
}

// NewSandbox creates a registry with the standard sandbox syscalls.
func NewSandbox(cfg SandboxConfig) *Registry {
	r := NewRegistry()
	r.registerIO(cfg)
	r.registerIdentity(cfg)
	return r
}

// Register adds or replaces the handler for nr.
func (r *Registry) Register(nr int64, h Handler) {
	r.handlers[nr] = h
}

// Get returns the handler for nr.
func (r *Registry) Get(nr int64) (Handler, bool) {
	h, ok := r.handlers[nr]
	return h, ok
}

// Calls returns how many times nr was invoked, serviced or not.
func (r *Registry) Calls(nr int64) uint64 {
	return r.calls[nr]
}

// Invoke implements vm.Bridge.
func (r *Registry) Invoke(mem vm.Memory, nr int64, args [vm.MaxSyscallArgs]uint64) (int64, error) {
	r.calls[nr]++
	h, ok := r.handlers[nr]
	if !ok {
		return -ENOSYS, nil
	}
	return h(mem, args)
}

// registerIO registers read and write on the standard descriptors.
func (r *Registry) registerIO(cfg SandboxConfig) {
	// read(fd, buf, count)
	r.Register(SysRead, func(mem vm.Memory, args [vm.MaxSyscallArgs]uint64) (int64, error) {
		if args[0] != 0 || cfg.Stdin == nil {
			return -EBADF, nil
		}
		buf, err := mem.Translate(args[1], args[2])
		if err != nil {
			return -EFAULT, nil
		}
		n, err := cfg.Stdin.Read(buf)
		if err != nil && err != io.EOF {
			return 0, err
		}
		return int64(n), nil
	})

	// write(fd, buf, count)
	r.Register(SysWrite, func(mem vm.Memory, args [vm.MaxSyscallArgs]uint64) (int64, error) {
		var w io.Writer
		switch args[0] {
		case 1:
			w = cfg.Stdout
		case 2:
			w = cfg.Stderr
		}
		if w == nil {
			return -EBADF, nil
		}
		buf, err := mem.Translate(args[1], args[2])
		if err != nil {
			return -EFAULT, nil
		}
		n, err := w.Write(buf)
		if err != nil {
			return 0, err
		}
		return int64(n), nil
	})
}

// registerIdentity registers getpid and getuid.
func (r *Registry) registerIdentity(cfg SandboxConfig) {
	r.Register(SysGetpid, func(vm.Memory, [vm.MaxSyscallArgs]uint64) (int64, error) {
		return int64(cfg.Pid), nil
	})
	r.Register(SysGetuid, func(vm.Memory, [vm.MaxSyscallArgs]uint64) (int64, error) {
		return int64(cfg.Uid), nil
	})
}
