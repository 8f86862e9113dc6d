package vm

import (
	"bytes"
	"errors"
	"testing"
)

func TestBankRegisters(t *testing.T) {
	b := NewBank()
	if err := b.SetRegister(Capacity-1, 77); err != nil {
		t.Fatalf("SetRegister() failed: %v", err)
	}
	if v, err := b.Register(Capacity - 1); err != nil || v != 77 {
		t.Errorf("Register() = %d, %v, want 77", v, err)
	}
	if err := b.SetRegister(Capacity, 1); !errors.Is(err, ErrIndexOutOfBounds) {
		t.Errorf("SetRegister(Capacity) = %v, want ErrIndexOutOfBounds", err)
	}
	if _, err := b.Register(Capacity); !errors.Is(err, ErrIndexOutOfBounds) {
		t.Errorf("Register(Capacity) = %v, want ErrIndexOutOfBounds", err)
	}
}

// TestBankVariables tests the write-once discipline and handle lookup.
func TestBankVariables(t *testing.T) {
	b := NewBank()
	if h, err := b.Handle(5); err != nil || h != 0 {
		t.Errorf("Handle(unset) = 0x%x, %v, want 0", h, err)
	}

	src := []byte{1, 2, 3, 4}
	if err := b.InitVariable(5, src); err != nil {
		t.Fatalf("InitVariable() failed: %v", err)
	}
	src[0] = 0xff

	err := b.InitVariable(5, []byte{9})
	if !errors.Is(err, ErrDoubleInitialization) {
		t.Fatalf("second InitVariable() = %v, want ErrDoubleInitialization", err)
	}
	buf, ok := b.Variable(5)
	if !ok || !bytes.Equal(buf, []byte{1, 2, 3, 4}) {
		t.Errorf("Variable(5) = % X, %v", buf, ok)
	}

	if err := b.InitVariable(Capacity, nil); !errors.Is(err, ErrIndexOutOfBounds) {
		t.Errorf("InitVariable(Capacity) = %v, want ErrIndexOutOfBounds", err)
	}

	h, _ := b.Handle(5)
	idx, got, ok := b.VariableByHandle(h)
	if !ok || idx != 5 || !bytes.Equal(got, buf) {
		t.Errorf("VariableByHandle() = %d, % X, %v", idx, got, ok)
	}
	if _, _, ok := b.VariableByHandle(0); ok {
		t.Error("VariableByHandle(0) found a variable")
	}
}

func TestBankTranslate(t *testing.T) {
	b := NewBank()
	b.InitVariable(0, []byte("hello, world"))
	h, _ := b.Handle(0)

	got, err := b.Translate(h+7, 5)
	if err != nil || string(got) != "world" {
		t.Fatalf("Translate(h+7, 5) = %q, %v", got, err)
	}
	if _, err := b.Translate(h+7, 6); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("overrunning Translate() = %v, want ErrInvalidAddress", err)
	}
	if _, err := b.Translate(1, 1); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Translate(1, 1) = %v, want ErrInvalidAddress", err)
	}
	if got, err := b.Translate(1, 0); err != nil || len(got) != 0 {
		t.Errorf("Translate(1, 0) = %q, %v", got, err)
	}
}

func TestBankReset(t *testing.T) {
	b := NewBank()
	b.SetRegister(1, 1)
	b.InitVariable(1, []byte{1})
	b.Reset()
	if v, _ := b.Register(1); v != 0 {
		t.Errorf("Register(1) = %d after Reset", v)
	}
	if _, ok := b.Variable(1); ok || b.VariableCount() != 0 {
		t.Error("variable survived Reset")
	}
}
