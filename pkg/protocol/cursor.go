package protocol

import (
	"errors"
	"fmt"
)

// Decoding errors.
var (
	// ErrFrameTooShort is returned when a read would go past the end of the
	// frame or past the size the command declares.
	ErrFrameTooShort = errors.New("protocol: frame too short")

	// ErrUnknownOpcode is returned for an opcode this client does not know.
	// Its payload size is unknown, so the rest of the frame cannot be parsed.
	ErrUnknownOpcode = errors.New("protocol: unknown opcode")
)

// DecodeError reports where in a frame decoding stopped.
type DecodeError struct {
	Offset int    // Offset of the failing command's opcode byte
	Op     Opcode // Opcode being decoded
	Err    error  // ErrFrameTooShort or ErrUnknownOpcode
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: decode %s at offset %d: %v", e.Op, e.Offset, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Cursor is a length-checked reader over a received frame. Every read
// advances the cursor and fails with ErrFrameTooShort instead of reading
// out of bounds. A limit may be set to stop reads at the end of the
// current command.
type Cursor struct {
	buf   []byte
	pos   int
	limit int
}

// NewCursor creates a cursor over buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf, limit: len(buf)}
}

// Remaining returns the number of readable bytes before the limit.
func (c *Cursor) Remaining() int {
	return c.limit - c.pos
}

// EOF returns true if every byte of the buffer has been consumed.
func (c *Cursor) EOF() bool {
	return c.pos >= len(c.buf)
}

// Position returns the current read position.
func (c *Cursor) Position() int {
	return c.pos
}

// setLimit restricts reads to the next n bytes. It fails if fewer than n
// bytes are left in the buffer.
func (c *Cursor) setLimit(n int) error {
	if n < 0 || c.pos+n > len(c.buf) {
		return ErrFrameTooShort
	}
	c.limit = c.pos + n
	return nil
}

// extendLimit widens the current limit by n bytes for a variable-length
// field the command has just declared.
func (c *Cursor) extendLimit(n int) error {
	if n < 0 || c.limit+n > len(c.buf) {
		return ErrFrameTooShort
	}
	c.limit += n
	return nil
}

func (c *Cursor) clearLimit() {
	c.limit = len(c.buf)
}

// Skip advances the position by n bytes.
func (c *Cursor) Skip(n int) error {
	if n < 0 || c.pos+n > c.limit {
		return ErrFrameTooShort
	}
	c.pos += n
	return nil
}

// ReadUint8 reads a single byte.
func (c *Cursor) ReadUint8() (uint8, error) {
	if c.pos+1 > c.limit {
		return 0, ErrFrameTooShort
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// ReadUint16 reads a uint16 in big-endian byte order.
func (c *Cursor) ReadUint16() (uint16, error) {
	if c.pos+2 > c.limit {
		return 0, ErrFrameTooShort
	}
	v := uint16(c.buf[c.pos])<<8 | uint16(c.buf[c.pos+1])
	c.pos += 2
	return v, nil
}

// ReadUint32 reads a uint32 in big-endian byte order.
func (c *Cursor) ReadUint32() (uint32, error) {
	if c.pos+4 > c.limit {
		return 0, ErrFrameTooShort
	}
	v := uint32(c.buf[c.pos])<<24 | uint32(c.buf[c.pos+1])<<16 |
		uint32(c.buf[c.pos+2])<<8 | uint32(c.buf[c.pos+3])
	c.pos += 4
	return v, nil
}

// ReadUint64 reads a uint64 in big-endian byte order.
func (c *Cursor) ReadUint64() (uint64, error) {
	if c.pos+8 > c.limit {
		return 0, ErrFrameTooShort
	}
	v := uint64(c.buf[c.pos])<<56 | uint64(c.buf[c.pos+1])<<48 |
		uint64(c.buf[c.pos+2])<<40 | uint64(c.buf[c.pos+3])<<32 |
		uint64(c.buf[c.pos+4])<<24 | uint64(c.buf[c.pos+5])<<16 |
		uint64(c.buf[c.pos+6])<<8 | uint64(c.buf[c.pos+7])
	c.pos += 8
	return v, nil
}

// ReadInt32 reads an int32 in big-endian byte order.
func (c *Cursor) ReadInt32() (int32, error) {
	v, err := c.ReadUint32()
	return int32(v), err
}

// ReadID reads an id.
func (c *Cursor) ReadID() (ID, error) {
	v, err := c.ReadUint64()
	return ID(v), err
}

// ReadBytes reads exactly n bytes and returns a copy (safe to retain).
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 || c.pos+n > c.limit {
		return nil, ErrFrameTooShort
	}
	b := make([]byte, n)
	copy(b, c.buf[c.pos:c.pos+n])
	c.pos += n
	return b, nil
}
