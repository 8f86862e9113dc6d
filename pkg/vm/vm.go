// Package vm implements the ssc bytecode interpreter.
//
// A program is a flat byte sequence executed strictly front to back. There
// are no jumps. State lives in a bank of 1024 registers (64-bit scalars) and
// 1024 variables (write-once byte buffers). Four opcodes exist:
//
//   - 0x11 init-variable:   u16 slot, u16 size, then size raw bytes
//   - 0xc0 copy:            reserved, always fails
//   - 0xa5 assign-register: u8 tag (0x0e), u16 register, operand
//   - 0x5c syscall:         u8 argc, i16 number, argc operands
//
// Operands are tagged: 0x01 immediate (8 bytes), 0x0e register (u16 index),
// 0x0f variable (u16 index, resolves to the variable's address).
//
// Any malformed input stops the run with an *Error.
package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Options configures an Interpreter.
type Options struct {
	// Bridge receives syscall instructions. Required for programs that
	// issue syscalls.
	Bridge Bridge

	// ByteOrder decodes multi-byte fields. Defaults to host byte order.
	ByteOrder binary.ByteOrder

	// ZeroUnusedArgs clears argument slots beyond a syscall's declared
	// count. When false, those slots keep whatever the previous syscall
	// instruction left in the shared argument array.
	ZeroUnusedArgs bool

	// Tracer observes execution. Optional.
	Tracer Tracer
}

// Result summarizes a run.
type Result struct {
	Instructions uint64 // instructions completed
	Syscalls     uint64 // syscalls issued
	BytesRead    int    // cursor position when the run stopped
}

// Interpreter executes one program. All mutable state belongs to the
// instance; interpreters share nothing.
type Interpreter struct {
	cur    *Cursor
	bank   *Bank
	bridge Bridge
	tracer Tracer

	// args is reused by every syscall instruction.
	args     [MaxSyscallArgs]uint64
	zeroArgs bool

	result Result
}

// NewInterpreter creates an interpreter for prog. prog is not copied and
// must not change while the interpreter runs.
func NewInterpreter(prog []byte, opts Options) *Interpreter {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = nopTracer{}
	}
	ip := &Interpreter{
		cur:      NewCursor(prog, opts.ByteOrder),
		bank:     NewBank(),
		bridge:   opts.Bridge,
		tracer:   tracer,
		zeroArgs: opts.ZeroUnusedArgs,
	}
	ip.cur.onAdvance = tracer.Advance
	return ip
}

// Bank returns the interpreter's storage.
func (ip *Interpreter) Bank() *Bank {
	return ip.bank
}

// Cursor returns the interpreter's program cursor.
func (ip *Interpreter) Cursor() *Cursor {
	return ip.cur
}

// Result returns the counters of the run so far.
func (ip *Interpreter) Result() Result {
	r := ip.result
	r.BytesRead = ip.cur.Pos()
	return r
}

// Run executes instructions until the end of the program or the first
// error. The returned error, if any, is an *Error.
func (ip *Interpreter) Run() (res Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = ip.locate(&Error{
				Kind:   KindHostFailure,
				Offset: -1,
				Detail: fmt.Sprintf("vm panic: %v", rec),
			}, ip.cur.opAt)
		}
		res = ip.Result()
	}()

	for !ip.cur.Done() {
		if err := ip.Step(); err != nil {
			return ip.Result(), err
		}
	}
	return ip.Result(), nil
}

// Step executes exactly one instruction.
func (ip *Interpreter) Step() error {
	at := ip.cur.Pos()
	op, err := ip.cur.ReadOpcode()
	if err != nil {
		return err
	}

	switch op {
	case OpInitVariable:
		err = ip.execInitVariable()
	case OpCopy:
		err = ip.locate(&Error{Kind: KindUnimplemented, Offset: -1, Detail: "copy"}, at)
	case OpAssignRegister:
		err = ip.execAssignRegister()
	case OpSyscall:
		err = ip.execSyscall(at)
	default:
		err = ip.locate(&Error{
			Kind:   KindInvalidOpcode,
			Offset: -1,
			Detail: fmt.Sprintf("opcode 0x%02x", op),
		}, at)
	}
	if err != nil {
		return err
	}
	ip.result.Instructions++
	return nil
}

// execInitVariable: u16 slot, u16 size, size bytes of data.
func (ip *Interpreter) execInitVariable() error {
	at := ip.cur.Pos()
	idx, err := ip.cur.ReadU16()
	if err != nil {
		return err
	}
	size, err := ip.cur.ReadU16()
	if err != nil {
		return err
	}
	if err := checkIndex("variable", idx); err != nil {
		return ip.locate(err, at)
	}
	if _, present := ip.bank.Variable(idx); present {
		return ip.locate(&Error{
			Kind:   KindDoubleInitialization,
			Offset: -1,
			Detail: fmt.Sprintf("variable %d", idx),
		}, at)
	}
	data, err := ip.cur.Advance(int(size))
	if err != nil {
		return err
	}
	if err := ip.bank.InitVariable(idx, data); err != nil {
		return ip.locate(err, at)
	}
	ip.tracer.VariableInitialized(idx, int(size))
	return nil
}

// execAssignRegister: u8 lvalue tag, u16 register, operand.
func (ip *Interpreter) execAssignRegister() error {
	at := ip.cur.Pos()
	tag, err := ip.cur.ReadU8()
	if err != nil {
		return err
	}
	if tag != TagRegister {
		return ip.locate(&Error{
			Kind:   KindInvalidLvalue,
			Offset: -1,
			Detail: fmt.Sprintf("tag 0x%02x", tag),
		}, at)
	}
	idx, err := ip.readIndex("register")
	if err != nil {
		return err
	}
	v, err := ip.resolveOperand()
	if err != nil {
		return err
	}
	ip.bank.registers[idx] = v
	ip.tracer.RegisterAssigned(idx, v)
	return nil
}

// execSyscall: u8 argc, i16 number, argc operands. The host result goes to
// register 0.
func (ip *Interpreter) execSyscall(opAt int) error {
	at := ip.cur.Pos()
	argc, err := ip.cur.ReadU8()
	if err != nil {
		return err
	}
	raw, err := ip.cur.ReadU16()
	if err != nil {
		return err
	}
	nr := int64(int16(raw))
	if argc > MaxSyscallArgs {
		return ip.locate(&Error{
			Kind:   KindTooManySyscallArguments,
			Offset: -1,
			Detail: fmt.Sprintf("%d > %d", argc, MaxSyscallArgs),
		}, at)
	}

	if ip.zeroArgs {
		ip.args = [MaxSyscallArgs]uint64{}
	}
	for i := 0; i < int(argc); i++ {
		v, err := ip.resolveOperand()
		if err != nil {
			return err
		}
		ip.args[i] = v
	}

	if ip.bridge == nil {
		return ip.locate(&Error{
			Kind:   KindHostFailure,
			Offset: -1,
			Detail: "no syscall bridge configured",
		}, opAt)
	}

	ip.tracer.Syscall(nr, int(argc), ip.args)
	ret, err := ip.bridge.Invoke(ip.bank, nr, ip.args)
	if err != nil {
		return ip.locate(&Error{
			Kind:   KindHostFailure,
			Offset: -1,
			Detail: fmt.Sprintf("syscall %d", nr),
			Err:    err,
		}, opAt)
	}
	ip.bank.registers[0] = uint64(ret)
	ip.result.Syscalls++
	ip.tracer.SyscallReturned(nr, ret)
	return nil
}

// locate pins an unlocated *Error to a program offset.
func (ip *Interpreter) locate(err error, at int) error {
	var vmErr *Error
	if !errors.As(err, &vmErr) || vmErr.Offset >= 0 {
		return err
	}
	vmErr.Offset = at
	if at >= 0 && at < ip.cur.Len() {
		vmErr.Byte = ip.cur.prog[at]
	}
	return vmErr
}
