package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestCommandCursor(t *testing.T) {
	cmd := NewCommand(OpHist).
		AddUint8(0x42).
		AddUint16(0x1234).
		AddUint32(0x12345678).
		AddUint64(0x123456789ABCDEF0).
		AddInt32(-32).
		AddID(ID(7)).
		AddBytes([]byte{0xDE, 0xAD}).
		AddLenBytes([]byte("hi"))

	if cmd.Opcode() != OpHist {
		t.Fatalf("Opcode() = %v, want HIST", cmd.Opcode())
	}
	if got, want := cmd.Len(), 1+1+2+4+8+4+8+2+4+2; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}

	c := NewCursor(cmd.Bytes())
	if err := c.Skip(1); err != nil {
		t.Fatalf("Skip(1) error: %v", err)
	}

	if v, err := c.ReadUint8(); err != nil || v != 0x42 {
		t.Errorf("ReadUint8() = %x, %v; want 0x42, nil", v, err)
	}
	if v, err := c.ReadUint16(); err != nil || v != 0x1234 {
		t.Errorf("ReadUint16() = %x, %v; want 0x1234, nil", v, err)
	}
	if v, err := c.ReadUint32(); err != nil || v != 0x12345678 {
		t.Errorf("ReadUint32() = %x, %v; want 0x12345678, nil", v, err)
	}
	if v, err := c.ReadUint64(); err != nil || v != 0x123456789ABCDEF0 {
		t.Errorf("ReadUint64() = %x, %v; want 0x123456789ABCDEF0, nil", v, err)
	}
	if v, err := c.ReadInt32(); err != nil || v != -32 {
		t.Errorf("ReadInt32() = %d, %v; want -32, nil", v, err)
	}
	if v, err := c.ReadID(); err != nil || v != 7 {
		t.Errorf("ReadID() = %d, %v; want 7, nil", v, err)
	}
	if v, err := c.ReadBytes(2); err != nil || !bytes.Equal(v, []byte{0xDE, 0xAD}) {
		t.Errorf("ReadBytes(2) = %x, %v; want dead, nil", v, err)
	}
	if n, err := c.ReadUint32(); err != nil || n != 2 {
		t.Errorf("ReadUint32() = %d, %v; want 2, nil", n, err)
	}
	if v, err := c.ReadBytes(2); err != nil || string(v) != "hi" {
		t.Errorf("ReadBytes(2) = %q, %v; want hi, nil", v, err)
	}
	if !c.EOF() {
		t.Errorf("EOF() = false at position %d", c.Position())
	}
}

func TestCursor_ReadPastEnd(t *testing.T) {
	c := NewCursor([]byte{0x01, 0x02, 0x03})

	if _, err := c.ReadUint32(); !errors.Is(err, ErrFrameTooShort) {
		t.Errorf("ReadUint32() error = %v, want ErrFrameTooShort", err)
	}
	if c.Position() != 0 {
		t.Errorf("Position() = %d after failed read, want 0", c.Position())
	}
	if _, err := c.ReadUint64(); !errors.Is(err, ErrFrameTooShort) {
		t.Errorf("ReadUint64() error = %v, want ErrFrameTooShort", err)
	}
	if _, err := c.ReadBytes(4); !errors.Is(err, ErrFrameTooShort) {
		t.Errorf("ReadBytes(4) error = %v, want ErrFrameTooShort", err)
	}
	if _, err := c.ReadBytes(-1); !errors.Is(err, ErrFrameTooShort) {
		t.Errorf("ReadBytes(-1) error = %v, want ErrFrameTooShort", err)
	}
	if err := c.Skip(4); !errors.Is(err, ErrFrameTooShort) {
		t.Errorf("Skip(4) error = %v, want ErrFrameTooShort", err)
	}
}

func TestCursor_LimitStopsReads(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	if err := c.setLimit(2); err != nil {
		t.Fatalf("setLimit(2) error: %v", err)
	}
	if c.Remaining() != 2 {
		t.Fatalf("Remaining() = %d, want 2", c.Remaining())
	}
	if _, err := c.ReadUint32(); !errors.Is(err, ErrFrameTooShort) {
		t.Errorf("ReadUint32() past limit error = %v, want ErrFrameTooShort", err)
	}
	if err := c.extendLimit(2); err != nil {
		t.Fatalf("extendLimit(2) error: %v", err)
	}
	if v, err := c.ReadUint32(); err != nil || v != 0x01020304 {
		t.Errorf("ReadUint32() = %x, %v; want 0x01020304, nil", v, err)
	}
	if err := c.extendLimit(5); !errors.Is(err, ErrFrameTooShort) {
		t.Errorf("extendLimit(5) error = %v, want ErrFrameTooShort", err)
	}
}

func TestReadBytes_ReturnsCopy(t *testing.T) {
	buf := []byte{1, 2, 3}
	c := NewCursor(buf)
	b, err := c.ReadBytes(3)
	if err != nil {
		t.Fatalf("ReadBytes(3) error: %v", err)
	}
	buf[0] = 9
	if b[0] != 1 {
		t.Errorf("ReadBytes result aliases the frame buffer")
	}
}

func TestID_StringRoundTrip(t *testing.T) {
	for _, id := range []ID{NullID, 1, 0xFFFFFFFFFFFFFFFF, 0x0123456789ABCDEF} {
		s := id.String()
		if len(s) != 11 {
			t.Errorf("ID(%d).String() = %q, want 11 chars", uint64(id), s)
		}
		got, err := ParseID(s)
		if err != nil || got != id {
			t.Errorf("ParseID(%q) = %d, %v; want %d, nil", s, uint64(got), err, uint64(id))
		}
	}
	if _, err := ParseID("short"); !errors.Is(err, ErrInvalidID) {
		t.Errorf("ParseID(short) error = %v, want ErrInvalidID", err)
	}
	if !NullID.IsNull() || ID(1).IsNull() {
		t.Error("IsNull() mismatch")
	}
}

func TestID_IsTransaction(t *testing.T) {
	if NullID.IsTransaction() || ID(0x7FFFFFFFFFFFFFFF).IsTransaction() {
		t.Error("server-range id reported as transaction id")
	}
	if !(TxIDFlag | 1).IsTransaction() {
		t.Error("TxIDFlag|1 not reported as transaction id")
	}
}
