package vm

import (
	"fmt"
	"unsafe"
)

// Bank holds the register and variable tables. Registers and variables use
// the same index space but are unrelated: register k and variable k are
// different slots.
type Bank struct {
	registers [Capacity]uint64
	variables [Capacity][]byte
	present   [Capacity]bool
	count     int
}

// NewBank returns a bank with all registers zero and all variables unset.
func NewBank() *Bank {
	return &Bank{}
}

func checkIndex(what string, idx uint16) error {
	if int(idx) >= Capacity {
		return &Error{
			Kind:   KindIndexOutOfBounds,
			Offset: -1,
			Detail: fmt.Sprintf("%s number %d out of bounds", what, idx),
		}
	}
	return nil
}

// Register returns the value of register idx.
func (b *Bank) Register(idx uint16) (uint64, error) {
	if err := checkIndex("register", idx); err != nil {
		return 0, err
	}
	return b.registers[idx], nil
}

// SetRegister overwrites register idx.
func (b *Bank) SetRegister(idx uint16, v uint64) error {
	if err := checkIndex("register", idx); err != nil {
		return err
	}
	b.registers[idx] = v
	return nil
}

// InitVariable makes variable idx present with a private copy of data. A
// variable can be initialized only once.
func (b *Bank) InitVariable(idx uint16, data []byte) error {
	if err := checkIndex("variable", idx); err != nil {
		return err
	}
	if b.present[idx] {
		return &Error{
			Kind:   KindDoubleInitialization,
			Offset: -1,
			Detail: fmt.Sprintf("variable %d", idx),
		}
	}
	// Capacity of at least one byte gives every buffer, even an empty one,
	// a distinct address.
	buf := make([]byte, len(data), max(len(data), 1))
	copy(buf, data)
	b.variables[idx] = buf
	b.present[idx] = true
	b.count++
	return nil
}

// Variable returns the buffer of variable idx. The slice is owned by the
// bank and must not be modified by callers.
func (b *Bank) Variable(idx uint16) ([]byte, bool) {
	if int(idx) >= Capacity || !b.present[idx] {
		return nil, false
	}
	return b.variables[idx], true
}

// VariableCount returns the number of present variables.
func (b *Bank) VariableCount() int {
	return b.count
}

// Handle returns the handle of variable idx: the address of its first byte.
// An unset variable has handle 0.
func (b *Bank) Handle(idx uint16) (uint64, error) {
	if err := checkIndex("variable", idx); err != nil {
		return 0, err
	}
	if !b.present[idx] {
		return 0, nil
	}
	return handleOf(b.variables[idx]), nil
}

func handleOf(buf []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(unsafe.SliceData(buf))))
}

// VariableByHandle returns the variable whose handle is h.
func (b *Bank) VariableByHandle(h uint64) (uint16, []byte, bool) {
	if h == 0 {
		return 0, nil, false
	}
	for i := range b.variables {
		if b.present[i] && handleOf(b.variables[i]) == h {
			return uint16(i), b.variables[i], true
		}
	}
	return 0, nil, false
}

// Translate returns the size bytes starting at addr, which must lie entirely
// within one variable. addr may point into the middle of a variable.
func (b *Bank) Translate(addr, size uint64) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	for i := range b.variables {
		if !b.present[i] {
			continue
		}
		buf := b.variables[i]
		base := handleOf(buf)
		if addr < base || addr-base >= uint64(len(buf)) {
			continue
		}
		off := addr - base
		if size > uint64(len(buf))-off {
			return nil, fmt.Errorf("%w: 0x%x+%d overruns variable %d (size %d)",
				ErrInvalidAddress, addr, size, i, len(buf))
		}
		return buf[off : off+size], nil
	}
	return nil, fmt.Errorf("%w: 0x%x is not a variable address", ErrInvalidAddress, addr)
}

// Reset clears all registers and variables.
func (b *Bank) Reset() {
	*b = Bank{}
}
