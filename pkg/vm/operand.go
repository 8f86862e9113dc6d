package vm

import "fmt"

// readIndex reads a 2-byte slot index and checks it against Capacity.
func (ip *Interpreter) readIndex(what string) (uint16, error) {
	at := ip.cur.Pos()
	idx, err := ip.cur.ReadU16()
	if err != nil {
		return 0, err
	}
	if err := checkIndex(what, idx); err != nil {
		return 0, ip.locate(err, at)
	}
	return idx, nil
}

// resolveOperand decodes one tagged operand and returns its value. Every
// rvalue goes through here.
func (ip *Interpreter) resolveOperand() (uint64, error) {
	at := ip.cur.Pos()
	tag, err := ip.cur.ReadU8()
	if err != nil {
		return 0, err
	}

	switch tag {
	case TagImmediate:
		return ip.cur.ReadU64()

	case TagRegister:
		idx, err := ip.readIndex("register")
		if err != nil {
			return 0, err
		}
		return ip.bank.registers[idx], nil

	case TagVariable:
		idx, err := ip.readIndex("variable")
		if err != nil {
			return 0, err
		}
		h, err := ip.bank.Handle(idx)
		if err != nil {
			return 0, ip.locate(err, at)
		}
		return h, nil

	default:
		return 0, ip.locate(&Error{
			Kind:   KindInvalidOperandType,
			Offset: -1,
			Detail: fmt.Sprintf("tag 0x%02x", tag),
		}, at)
	}
}
