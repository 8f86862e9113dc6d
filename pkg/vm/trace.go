package vm

import (
	"log"
)

// Tracer observes interpreter events.
type Tracer interface {
	Advance(pos, n int)
	VariableInitialized(idx uint16, size int)
	RegisterAssigned(idx uint16, v uint64)
	Syscall(nr int64, argc int, args [MaxSyscallArgs]uint64)
	SyscallReturned(nr int64, ret int64)
}

type nopTracer struct{}

func (nopTracer) Advance(int, int) {}
func (nopTracer) VariableInitialized(uint16, int) {}
func (nopTracer) RegisterAssigned(uint16, uint64) {}
func (nopTracer) Syscall(int64, int, [MaxSyscallArgs]uint64) {}
func (nopTracer) SyscallReturned(int64, int64) {}

// LogTracer writes a trace through a log.Logger. Verbosity 1 logs
// instruction effects; verbosity 2 also logs every cursor advance.
type LogTracer struct {
	Logger    *log.Logger
	Verbosity int
}

// NewLogTracer returns a tracer on logger, or nil when verbosity is 0.
func NewLogTracer(logger *log.Logger, verbosity int) Tracer {
	if verbosity <= 0 {
		return nil
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LogTracer{Logger: logger, Verbosity: verbosity}
}

// Advance logs a cursor advance at verbosity 2 and above.
func (t *LogTracer) Advance(pos, n int) {
	if t.Verbosity > 1 {
		t.Logger.Printf("[VM] advance %d bytes at %d", n, pos)
	}
}

// VariableInitialized logs a variable's slot and size.
func (t *LogTracer) VariableInitialized(idx uint16, size int) {
	t.Logger.Printf("[VM] V%d : %d", idx, size)
}

// RegisterAssigned logs a register write.
func (t *LogTracer) RegisterAssigned(idx uint16, v uint64) {
	t.Logger.Printf("[VM] R%d = %d", idx, v)
}

// Syscall logs a syscall and the full argument array passed to the bridge.
func (t *LogTracer) Syscall(nr int64, argc int, args [MaxSyscallArgs]uint64) {
	t.Logger.Printf("[VM] syscall %d with %d arguments (0x%x, 0x%x, 0x%x, 0x%x, 0x%x, 0x%x)",
		nr, argc, args[0], args[1], args[2], args[3], args[4], args[5])
}

// SyscallReturned logs the value stored into register 0.
func (t *LogTracer) SyscallReturned(nr int64, ret int64) {
	t.Logger.Printf("[VM] syscall %d returned %d", nr, ret)
}
