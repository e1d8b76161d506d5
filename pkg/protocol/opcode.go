package protocol

import "fmt"

// Opcode identifies a chatd command.
type Opcode uint8

const (
	OpKeepalive Opcode = 0  // both directions, no fields
	OpJoin      Opcode = 1  // C→S subscribe; S→C membership change
	OpOldMsg    Opcode = 2  // S→C history message
	OpNewMsg    Opcode = 3  // C→S new message; S→C message from another connection
	OpMsgUpd    Opcode = 4  // both directions, message edit
	OpSeen      Opcode = 5  // seen cursor
	OpReceived  Opcode = 6  // S→C delivery cursor
	OpRetention Opcode = 7  // S→C retention period
	OpHist      Opcode = 8  // C→S history request
	OpRange     Opcode = 9  // C→S known range; S→C newest id assertion
	OpMsgID     Opcode = 10 // S→C transaction id confirmation
	OpReject    Opcode = 11 // S→C command rejected
	OpHistDone  Opcode = 13 // S→C end of history batch

	OpInvalid Opcode = 0xFF
)

// Fixed payload sizes (bytes after the opcode). Commands carrying a message
// body declare its length in a 32-bit field that is part of the fixed size.
const (
	sizeKeepalive = 0
	sizeJoin      = 8 + 8 + 1
	sizeMsg       = 8 + 8 + 8 + 4 + 4
	sizeMsgUpd    = 8 + 8 + 4
	sizeSeen      = 8 + 8 + 8
	sizeReceived  = 8 + 8
	sizeRetention = 8 + 8 + 4
	sizeHist      = 8 + 4
	sizeRange     = 8 + 8 + 8
	sizeMsgID     = 8 + 8
	sizeReject    = 4 + 4
	sizeHistDone  = 8
)

// MinPayloadSize returns the declared minimum payload size of op, and false
// if op is not a known opcode.
func MinPayloadSize(op Opcode) (int, bool) {
	switch op {
	case OpKeepalive:
		return sizeKeepalive, true
	case OpJoin:
		return sizeJoin, true
	case OpOldMsg, OpNewMsg:
		return sizeMsg, true
	case OpMsgUpd:
		return sizeMsgUpd, true
	case OpSeen:
		return sizeSeen, true
	case OpReceived:
		return sizeReceived, true
	case OpRetention:
		return sizeRetention, true
	case OpHist:
		return sizeHist, true
	case OpRange:
		return sizeRange, true
	case OpMsgID:
		return sizeMsgID, true
	case OpReject:
		return sizeReject, true
	case OpHistDone:
		return sizeHistDone, true
	default:
		return 0, false
	}
}

// String returns the wire name of the opcode.
func (op Opcode) String() string {
	switch op {
	case OpKeepalive:
		return "KEEPALIVE"
	case OpJoin:
		return "JOIN"
	case OpOldMsg:
		return "OLDMSG"
	case OpNewMsg:
		return "NEWMSG"
	case OpMsgUpd:
		return "MSGUPD"
	case OpSeen:
		return "SEEN"
	case OpReceived:
		return "RECEIVED"
	case OpRetention:
		return "RETENTION"
	case OpHist:
		return "HIST"
	case OpRange:
		return "RANGE"
	case OpMsgID:
		return "MSGID"
	case OpReject:
		return "REJECT"
	case OpHistDone:
		return "HISTDONE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(op))
	}
}
