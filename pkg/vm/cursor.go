package vm

import (
	"encoding/binary"
)

// Cursor is a forward-only, bounds-checked reader over program bytes.
type Cursor struct {
	prog  []byte
	pos   int
	order binary.ByteOrder

	// Opcode byte most recently read and its offset, for diagnostics.
	op   uint8
	opAt int

	// onAdvance, if set, observes every successful advance.
	onAdvance func(pos, n int)
}

// NewCursor creates a cursor at offset 0. A nil order means host byte order.
func NewCursor(prog []byte, order binary.ByteOrder) *Cursor {
	if order == nil {
		order = binary.NativeEndian
	}
	return &Cursor{prog: prog, order: order}
}

// Pos returns the current offset.
func (c *Cursor) Pos() int {
	return c.pos
}

// Len returns the program length.
func (c *Cursor) Len() int {
	return len(c.prog)
}

// Done reports whether the cursor is at the end of the program.
func (c *Cursor) Done() bool {
	return c.pos >= len(c.prog)
}

// LastOpcode returns the opcode byte most recently read and its offset.
func (c *Cursor) LastOpcode() (uint8, int) {
	return c.op, c.opAt
}

// Advance returns the next n bytes and moves past them. The returned slice
// aliases the program and must not be modified.
func (c *Cursor) Advance(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.prog) {
		return nil, &Error{Kind: KindTruncatedProgram, Offset: c.pos, Byte: c.op}
	}
	b := c.prog[c.pos : c.pos+n]
	if c.onAdvance != nil {
		c.onAdvance(c.pos, n)
	}
	c.pos += n
	return b, nil
}

// ReadOpcode reads one byte and records it as the current opcode.
func (c *Cursor) ReadOpcode() (uint8, error) {
	at := c.pos
	b, err := c.ReadU8()
	if err != nil {
		return 0, err
	}
	c.op, c.opAt = b, at
	return b, nil
}

// ReadU8 reads one byte.
func (c *Cursor) ReadU8() (uint8, error) {
	b, err := c.Advance(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads a 16-bit value.
func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.Advance(2)
	if err != nil {
		return 0, err
	}
	return c.order.Uint16(b), nil
}

// ReadU64 reads a 64-bit value.
func (c *Cursor) ReadU64() (uint64, error) {
	b, err := c.Advance(8)
	if err != nil {
		return 0, err
	}
	return c.order.Uint64(b), nil
}
