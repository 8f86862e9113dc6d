package vm

// Opcodes.
const (
	OpInitVariable   = 0x11 // u16 slot, u16 size, size raw bytes
	OpCopy           = 0xc0 // declared, never implemented
	OpAssignRegister = 0xa5 // u8 lvalue tag, u16 register, operand
	OpSyscall        = 0x5c // u8 argc, i16 number, argc operands
)

// Operand tags.
const (
	TagImmediate = 0x01 // 8-byte literal
	TagRegister  = 0x0e // 2-byte register index
	TagVariable  = 0x0f // 2-byte variable index
)

// Capacity is the number of register slots and, separately, the number of
// variable slots.
const Capacity = 1024

// MaxSyscallArgs is the size of the syscall argument array.
const MaxSyscallArgs = 6

// OpcodeName returns a mnemonic for an opcode byte.
func OpcodeName(op uint8) string {
	switch op {
	case OpInitVariable:
		return "init"
	case OpCopy:
		return "copy"
	case OpAssignRegister:
		return "assign"
	case OpSyscall:
		return "syscall"
	default:
		return "unknown"
	}
}
