package vm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an interpretation failure.
type ErrorKind uint8

// Error kinds.
const (
	KindNone ErrorKind = iota
	KindTruncatedProgram
	KindIndexOutOfBounds
	KindInvalidOperandType
	KindDoubleInitialization
	KindInvalidLvalue
	KindInvalidOpcode
	KindUnimplemented
	KindTooManySyscallArguments
	KindHostFailure
)

var kindNames = map[ErrorKind]string{
	KindNone:                    "None",
	KindTruncatedProgram:        "TruncatedProgram",
	KindIndexOutOfBounds:        "IndexOutOfBounds",
	KindInvalidOperandType:      "InvalidOperandType",
	KindDoubleInitialization:    "DoubleInitialization",
	KindInvalidLvalue:           "InvalidLvalue",
	KindInvalidOpcode:           "InvalidOpcode",
	KindUnimplemented:           "Unimplemented",
	KindTooManySyscallArguments: "TooManySyscallArguments",
	KindHostFailure:             "HostFailure",
}

// String returns the kind name.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// Sentinel errors, one per kind. An *Error matches its kind's sentinel
// under errors.Is.
var (
	ErrTruncatedProgram        = errors.New("program truncated")
	ErrIndexOutOfBounds        = errors.New("slot index out of bounds")
	ErrInvalidOperandType      = errors.New("incorrect argument type")
	ErrDoubleInitialization    = errors.New("double initialization")
	ErrInvalidLvalue           = errors.New("lvalue is not a register")
	ErrInvalidOpcode           = errors.New("incorrect opcode")
	ErrUnimplemented           = errors.New("unimplemented")
	ErrTooManySyscallArguments = errors.New("too many syscall args")
	ErrHostFailure             = errors.New("host syscall failed")

	// ErrInvalidAddress is returned when a host bridge translates an address
	// that does not fall inside a variable.
	ErrInvalidAddress = errors.New("invalid variable address")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindTruncatedProgram:
		return ErrTruncatedProgram
	case KindIndexOutOfBounds:
		return ErrIndexOutOfBounds
	case KindInvalidOperandType:
		return ErrInvalidOperandType
	case KindDoubleInitialization:
		return ErrDoubleInitialization
	case KindInvalidLvalue:
		return ErrInvalidLvalue
	case KindInvalidOpcode:
		return ErrInvalidOpcode
	case KindUnimplemented:
		return ErrUnimplemented
	case KindTooManySyscallArguments:
		return ErrTooManySyscallArguments
	case KindHostFailure:
		return ErrHostFailure
	default:
		return nil
	}
}

// Error is a fatal interpretation error. Offset is the program offset the
// failure is attributed to and Byte is the byte found there (or the last
// opcode read, for truncation). Offset is -1 until the interpreter has
// located the error.
type Error struct {
	Kind   ErrorKind
	Offset int
	Byte   uint8
	Detail string
	Err    error // underlying cause, set for host failures
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if s := e.Kind.sentinel(); s != nil {
		msg = s.Error()
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Offset < 0 {
		return msg
	}
	return fmt.Sprintf("error at byte %d (%02X): %s", e.Offset, e.Byte, msg)
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of an interpretation error, or KindNone if err is
// not one.
func KindOf(err error) ErrorKind {
	var vmErr *Error
	if errors.As(err, &vmErr) {
		return vmErr.Kind
	}
	return KindNone
}
