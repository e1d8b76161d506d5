package protocol

// Payload is a decoded chatd command.
type Payload interface {
	// Opcode returns the command's opcode.
	Opcode() Opcode

	// Encode builds the wire form of the command.
	Encode() *Command
}

// Priv is a user's privilege level in a chat.
type Priv int8

const (
	PrivNoChange   Priv = -2 // sent on C→S JOIN: keep the current privilege
	PrivNotPresent Priv = -1 // the user left the chat
	PrivReadOnly   Priv = 0
	PrivFull       Priv = 2
	PrivOperator   Priv = 3
)

// Keepalive is exchanged periodically in both directions.
type Keepalive struct{}

// Join subscribes to a chat (C→S) or reports a member's privilege (S→C).
type Join struct {
	ChatID ID
	UserID ID
	Priv   Priv
}

// Msg carries a message: OLDMSG and NEWMSG share this layout.
type Msg struct {
	Op        Opcode // OpOldMsg or OpNewMsg
	ID        ID     // permanent id, or the transaction id on C→S NEWMSG
	UserID    ID
	ChatID    ID
	Timestamp uint32
	Data      []byte
}

// MsgUpd edits an existing message.
type MsgUpd struct {
	ChatID ID
	ID     ID
	Data   []byte
}

// Seen moves a user's seen cursor.
type Seen struct {
	ChatID ID
	UserID ID
	ID     ID
}

// Received moves the delivery cursor.
type Received struct {
	ChatID ID
	ID     ID
}

// Retention announces a chat's retention period.
type Retention struct {
	ChatID ID
	UserID ID
	Period uint32 // seconds
}

// Hist requests history. Count is negative: it asks for older messages.
type Hist struct {
	ChatID ID
	Count  int32
}

// Range declares the oldest and newest confirmed ids held by the client
// (C→S), or asserts the newest id on the server (S→C).
type Range struct {
	ChatID ID
	Oldest ID
	Newest ID
}

// MsgID confirms a transaction id. A NullID permanent id means rejected.
type MsgID struct {
	TransactionID ID
	ID            ID
}

// Reject reports that the server refused a command. For a rejected NEWMSG
// the transaction id of the message follows the two fixed fields.
type Reject struct {
	Op   Opcode
	Code uint32
	ID   ID // only on the wire when Op is OpNewMsg
}

// HistDone ends a batch of OLDMSGs.
type HistDone struct {
	ChatID ID
}

func (Keepalive) Opcode() Opcode { return OpKeepalive }
func (Join) Opcode() Opcode      { return OpJoin }
func (m Msg) Opcode() Opcode     { return m.Op }
func (MsgUpd) Opcode() Opcode    { return OpMsgUpd }
func (Seen) Opcode() Opcode      { return OpSeen }
func (Received) Opcode() Opcode  { return OpReceived }
func (Retention) Opcode() Opcode { return OpRetention }
func (Hist) Opcode() Opcode      { return OpHist }
func (Range) Opcode() Opcode     { return OpRange }
func (MsgID) Opcode() Opcode     { return OpMsgID }
func (Reject) Opcode() Opcode    { return OpReject }
func (HistDone) Opcode() Opcode  { return OpHistDone }

// Encode builds a KEEPALIVE command.
func (Keepalive) Encode() *Command {
	return NewCommandWithCap(OpKeepalive, 0)
}

// Encode builds a JOIN command.
func (j Join) Encode() *Command {
	return NewCommandWithCap(OpJoin, sizeJoin).
		AddID(j.ChatID).
		AddID(j.UserID).
		AddUint8(uint8(j.Priv))
}

// Encode builds an OLDMSG or NEWMSG command.
func (m Msg) Encode() *Command {
	op := m.Op
	if op != OpOldMsg {
		op = OpNewMsg
	}
	return NewCommandWithCap(op, sizeMsg+len(m.Data)).
		AddID(m.ID).
		AddID(m.UserID).
		AddID(m.ChatID).
		AddUint32(m.Timestamp).
		AddLenBytes(m.Data)
}

// Encode builds a MSGUPD command.
func (m MsgUpd) Encode() *Command {
	return NewCommandWithCap(OpMsgUpd, sizeMsgUpd+len(m.Data)).
		AddID(m.ChatID).
		AddID(m.ID).
		AddLenBytes(m.Data)
}

// Encode builds a SEEN command.
func (s Seen) Encode() *Command {
	return NewCommandWithCap(OpSeen, sizeSeen).
		AddID(s.ChatID).
		AddID(s.UserID).
		AddID(s.ID)
}

// Encode builds a RECEIVED command.
func (r Received) Encode() *Command {
	return NewCommandWithCap(OpReceived, sizeReceived).
		AddID(r.ChatID).
		AddID(r.ID)
}

// Encode builds a RETENTION command.
func (r Retention) Encode() *Command {
	return NewCommandWithCap(OpRetention, sizeRetention).
		AddID(r.ChatID).
		AddID(r.UserID).
		AddUint32(r.Period)
}

// Encode builds a HIST command.
func (h Hist) Encode() *Command {
	return NewCommandWithCap(OpHist, sizeHist).
		AddID(h.ChatID).
		AddInt32(h.Count)
}

// Encode builds a RANGE command.
func (r Range) Encode() *Command {
	return NewCommandWithCap(OpRange, sizeRange).
		AddID(r.ChatID).
		AddID(r.Oldest).
		AddID(r.Newest)
}

// Encode builds a MSGID command.
func (m MsgID) Encode() *Command {
	return NewCommandWithCap(OpMsgID, sizeMsgID).
		AddID(m.TransactionID).
		AddID(m.ID)
}

// Encode builds a REJECT command.
func (r Reject) Encode() *Command {
	cmd := NewCommandWithCap(OpReject, sizeReject+8).
		AddUint32(uint32(r.Op)).
		AddUint32(r.Code)
	if r.Op == OpNewMsg {
		cmd.AddID(r.ID)
	}
	return cmd
}

// Encode builds a HISTDONE command.
func (h HistDone) Encode() *Command {
	return NewCommandWithCap(OpHistDone, sizeHistDone).
		AddID(h.ChatID)
}

// Decode reads one command at the cursor. On success the cursor is left
// just past the command, having advanced by exactly its declared size.
// On failure a *DecodeError is returned and the cursor is left at the
// command's opcode byte; nothing past that point should be trusted.
func Decode(c *Cursor) (Payload, error) {
	start := c.pos
	c.clearLimit()

	b, err := c.ReadUint8()
	if err != nil {
		return nil, &DecodeError{Offset: start, Err: err}
	}
	op := Opcode(b)

	size, ok := MinPayloadSize(op)
	if !ok {
		c.pos = start
		return nil, &DecodeError{Offset: start, Op: op, Err: ErrUnknownOpcode}
	}
	if err := c.setLimit(size); err != nil {
		c.pos = start
		c.clearLimit()
		return nil, &DecodeError{Offset: start, Op: op, Err: err}
	}

	p, err := decodePayload(op, c)
	c.clearLimit()
	if err != nil {
		c.pos = start
		return nil, &DecodeError{Offset: start, Op: op, Err: err}
	}
	return p, nil
}

// DecodeAll decodes every command in frame. It stops at the first error,
// returning the commands decoded before it along with the error.
func DecodeAll(frame []byte) ([]Payload, error) {
	c := NewCursor(frame)
	var out []Payload
	for !c.EOF() {
		p, err := Decode(c)
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}

func decodePayload(op Opcode, c *Cursor) (Payload, error) {
	switch op {
	case OpKeepalive:
		return Keepalive{}, nil
	case OpJoin:
		return decodeJoin(c)
	case OpOldMsg, OpNewMsg:
		return decodeMsg(op, c)
	case OpMsgUpd:
		return decodeMsgUpd(c)
	case OpSeen:
		return decodeSeen(c)
	case OpReceived:
		return decodeReceived(c)
	case OpRetention:
		return decodeRetention(c)
	case OpHist:
		return decodeHist(c)
	case OpRange:
		return decodeRange(c)
	case OpMsgID:
		return decodeMsgID(c)
	case OpReject:
		return decodeReject(c)
	case OpHistDone:
		return decodeHistDone(c)
	}
	return nil, ErrUnknownOpcode
}

func decodeJoin(c *Cursor) (Payload, error) {
	var j Join
	var err error
	if j.ChatID, err = c.ReadID(); err != nil {
		return nil, err
	}
	if j.UserID, err = c.ReadID(); err != nil {
		return nil, err
	}
	priv, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	j.Priv = Priv(int8(priv))
	return j, nil
}

func decodeMsg(op Opcode, c *Cursor) (Payload, error) {
	m := Msg{Op: op}
	var err error
	if m.ID, err = c.ReadID(); err != nil {
		return nil, err
	}
	if m.UserID, err = c.ReadID(); err != nil {
		return nil, err
	}
	if m.ChatID, err = c.ReadID(); err != nil {
		return nil, err
	}
	if m.Timestamp, err = c.ReadUint32(); err != nil {
		return nil, err
	}
	if m.Data, err = readBody(c); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeMsgUpd(c *Cursor) (Payload, error) {
	var m MsgUpd
	var err error
	if m.ChatID, err = c.ReadID(); err != nil {
		return nil, err
	}
	if m.ID, err = c.ReadID(); err != nil {
		return nil, err
	}
	if m.Data, err = readBody(c); err != nil {
		return nil, err
	}
	return m, nil
}

// readBody reads a 32-bit length and then that many bytes, widening the
// command's declared size to cover them.
func readBody(c *Cursor) ([]byte, error) {
	n, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	if n > MaxBodySize || uint64(n) > uint64(len(c.buf)) {
		return nil, ErrFrameTooShort
	}
	if err := c.extendLimit(int(n)); err != nil {
		return nil, err
	}
	return c.ReadBytes(int(n))
}

func decodeSeen(c *Cursor) (Payload, error) {
	var s Seen
	var err error
	if s.ChatID, err = c.ReadID(); err != nil {
		return nil, err
	}
	if s.UserID, err = c.ReadID(); err != nil {
		return nil, err
	}
	if s.ID, err = c.ReadID(); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeReceived(c *Cursor) (Payload, error) {
	var r Received
	var err error
	if r.ChatID, err = c.ReadID(); err != nil {
		return nil, err
	}
	if r.ID, err = c.ReadID(); err != nil {
		return nil, err
	}
	return r, nil
}

func decodeRetention(c *Cursor) (Payload, error) {
	var r Retention
	var err error
	if r.ChatID, err = c.ReadID(); err != nil {
		return nil, err
	}
	if r.UserID, err = c.ReadID(); err != nil {
		return nil, err
	}
	if r.Period, err = c.ReadUint32(); err != nil {
		return nil, err
	}
	return r, nil
}

func decodeHist(c *Cursor) (Payload, error) {
	var h Hist
	var err error
	if h.ChatID, err = c.ReadID(); err != nil {
		return nil, err
	}
	if h.Count, err = c.ReadInt32(); err != nil {
		return nil, err
	}
	return h, nil
}

func decodeRange(c *Cursor) (Payload, error) {
	var r Range
	var err error
	if r.ChatID, err = c.ReadID(); err != nil {
		return nil, err
	}
	if r.Oldest, err = c.ReadID(); err != nil {
		return nil, err
	}
	if r.Newest, err = c.ReadID(); err != nil {
		return nil, err
	}
	return r, nil
}

func decodeMsgID(c *Cursor) (Payload, error) {
	var m MsgID
	var err error
	if m.TransactionID, err = c.ReadID(); err != nil {
		return nil, err
	}
	if m.ID, err = c.ReadID(); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeReject(c *Cursor) (Payload, error) {
	op, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	code, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	r := Reject{Op: Opcode(op), Code: code}
	if op > 0xFF {
		r.Op = OpInvalid
	}
	if r.Op == OpNewMsg {
		if err := c.extendLimit(8); err != nil {
			return nil, err
		}
		if r.ID, err = c.ReadID(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func decodeHistDone(c *Cursor) (Payload, error) {
	var h HistDone
	var err error
	if h.ChatID, err = c.ReadID(); err != nil {
		return nil, err
	}
	return h, nil
}
