package vm

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestCursorReads(t *testing.T) {
	prog := []byte{
		0xAB,
		0x34, 0x12,
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
	}
	c := NewCursor(prog, binary.LittleEndian)

	b, err := c.ReadU8()
	if err != nil || b != 0xAB {
		t.Fatalf("ReadU8() = %02X, %v", b, err)
	}
	h, err := c.ReadU16()
	if err != nil || h != 0x1234 {
		t.Fatalf("ReadU16() = %04X, %v", h, err)
	}
	w, err := c.ReadU64()
	if err != nil || w != 0x0102030405060708 {
		t.Fatalf("ReadU64() = %016X, %v", w, err)
	}
	if !c.Done() || c.Pos() != len(prog) {
		t.Errorf("Pos() = %d, Done() = %v after reading everything", c.Pos(), c.Done())
	}
}

func TestCursorBigEndian(t *testing.T) {
	c := NewCursor([]byte{0x12, 0x34}, binary.BigEndian)
	h, err := c.ReadU16()
	if err != nil || h != 0x1234 {
		t.Fatalf("ReadU16() = %04X, %v", h, err)
	}
}

// TestCursorTruncated checks a short read fails and leaves the cursor put.
func TestCursorTruncated(t *testing.T) {
	tests := []struct {
		name string
		prog []byte
		read func(c *Cursor) error
	}{
		{"u8", nil, func(c *Cursor) error { _, err := c.ReadU8(); return err }},
		{"u16", []byte{1}, func(c *Cursor) error { _, err := c.ReadU16(); return err }},
		{"u64", []byte{1, 2, 3, 4, 5, 6, 7}, func(c *Cursor) error { _, err := c.ReadU64(); return err }},
		{"advance", []byte{1, 2}, func(c *Cursor) error { _, err := c.Advance(3); return err }},
		{"negative", []byte{1, 2}, func(c *Cursor) error { _, err := c.Advance(-1); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCursor(tt.prog, binary.LittleEndian)
			err := tt.read(c)
			if !errors.Is(err, ErrTruncatedProgram) {
				t.Fatalf("err = %v, want ErrTruncatedProgram", err)
			}
			if c.Pos() != 0 {
				t.Errorf("Pos() = %d after failed read, want 0", c.Pos())
			}
		})
	}
}

func TestCursorLastOpcode(t *testing.T) {
	c := NewCursor([]byte{0x00, 0xa5, 0x01}, binary.LittleEndian)
	c.ReadU8()
	if _, err := c.ReadOpcode(); err != nil {
		t.Fatalf("ReadOpcode() failed: %v", err)
	}
	_, err := c.ReadU16()
	var vmErr *Error
	if !errors.As(err, &vmErr) {
		t.Fatalf("ReadU16() err = %v, want *Error", err)
	}
	if vmErr.Offset != 2 || vmErr.Byte != 0xa5 {
		t.Errorf("error at %d (%02X), want 2 (A5)", vmErr.Offset, vmErr.Byte)
	}
	if op, at := c.LastOpcode(); op != 0xa5 || at != 1 {
		t.Errorf("LastOpcode() = %02X, %d", op, at)
	}
}

func TestCursorDefaultOrder(t *testing.T) {
	prog := binary.NativeEndian.AppendUint16(nil, 0xbeef)
	h, err := NewCursor(prog, nil).ReadU16()
	if err != nil || h != 0xbeef {
		t.Fatalf("ReadU16() = %04X, %v", h, err)
	}
}
