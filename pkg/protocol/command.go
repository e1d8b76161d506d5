package protocol

// Command is a single outbound chatd command: an opcode byte followed by
// the opcode's fields. Building is append-only; the bytes are sent as-is.
type Command struct {
	buf []byte
}

// NewCommand starts a command with the given opcode.
func NewCommand(op Opcode) *Command {
	return NewCommandWithCap(op, 32)
}

// NewCommandWithCap starts a command with room for cap bytes of fields.
func NewCommandWithCap(op Opcode, cap int) *Command {
	buf := make([]byte, 1, 1+cap)
	buf[0] = byte(op)
	return &Command{buf: buf}
}

// Opcode returns the command's opcode.
func (c *Command) Opcode() Opcode {
	return Opcode(c.buf[0])
}

// Bytes returns the encoded command. The returned slice is valid until
// the next Add call.
func (c *Command) Bytes() []byte {
	return c.buf
}

// Len returns the encoded size including the opcode.
func (c *Command) Len() int {
	return len(c.buf)
}

// String renders the command for logging.
func (c *Command) String() string {
	return FormatCommand(c.buf)
}

// AddUint8 appends a single byte.
func (c *Command) AddUint8(v uint8) *Command {
	c.buf = append(c.buf, v)
	return c
}

// AddUint16 appends a uint16 in big-endian byte order.
func (c *Command) AddUint16(v uint16) *Command {
	c.buf = append(c.buf, byte(v>>8), byte(v))
	return c
}

// AddUint32 appends a uint32 in big-endian byte order.
func (c *Command) AddUint32(v uint32) *Command {
	c.buf = append(c.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	return c
}

// AddUint64 appends a uint64 in big-endian byte order.
func (c *Command) AddUint64(v uint64) *Command {
	c.buf = append(c.buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	return c
}

// AddInt32 appends an int32 in big-endian byte order.
func (c *Command) AddInt32(v int32) *Command {
	return c.AddUint32(uint32(v))
}

// AddID appends an id.
func (c *Command) AddID(id ID) *Command {
	return c.AddUint64(uint64(id))
}

// AddBytes appends raw bytes without a length prefix.
func (c *Command) AddBytes(b []byte) *Command {
	c.buf = append(c.buf, b...)
	return c
}

// AddLenBytes appends a 32-bit length followed by b.
func (c *Command) AddLenBytes(b []byte) *Command {
	c.AddUint32(uint32(len(b)))
	c.buf = append(c.buf, b...)
	return c
}
