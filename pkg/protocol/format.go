package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// FormatCommand renders the first command in data for logging. It never
// fails: truncated or unknown commands are rendered as such.
func FormatCommand(data []byte) string {
	if len(data) == 0 {
		return "<empty>"
	}
	p, err := Decode(NewCursor(data))
	if err != nil {
		op := Opcode(data[0])
		if errors.Is(err, ErrUnknownOpcode) {
			return op.String()
		}
		return op.String() + " <truncated>"
	}
	return FormatPayload(p)
}

// FormatFrame renders every command in a frame, one per line. A decode
// failure is rendered in place of the rest of the frame.
func FormatFrame(frame []byte) string {
	payloads, err := DecodeAll(frame)
	lines := make([]string, 0, len(payloads)+1)
	for _, p := range payloads {
		lines = append(lines, FormatPayload(p))
	}
	if err != nil {
		lines = append(lines, "error: "+err.Error())
	}
	return strings.Join(lines, "\n")
}

// FormatPayload renders a decoded command.
func FormatPayload(p Payload) string {
	switch v := p.(type) {
	case Keepalive:
		return "KEEPALIVE"
	case Join:
		return fmt.Sprintf("JOIN chat=%s user=%s priv=%d", v.ChatID, v.UserID, v.Priv)
	case Msg:
		return fmt.Sprintf("%s chat=%s msgid=%s user=%s ts=%d len=%d",
			v.Op, v.ChatID, v.ID, v.UserID, v.Timestamp, len(v.Data))
	case MsgUpd:
		return fmt.Sprintf("MSGUPD chat=%s msgid=%s len=%d", v.ChatID, v.ID, len(v.Data))
	case Seen:
		return fmt.Sprintf("SEEN chat=%s user=%s msgid=%s", v.ChatID, v.UserID, v.ID)
	case Received:
		return fmt.Sprintf("RECEIVED chat=%s msgid=%s", v.ChatID, v.ID)
	case Retention:
		return fmt.Sprintf("RETENTION chat=%s user=%s period=%ds", v.ChatID, v.UserID, v.Period)
	case Hist:
		return fmt.Sprintf("HIST chat=%s count=%d", v.ChatID, v.Count)
	case Range:
		return fmt.Sprintf("RANGE chat=%s oldest=%s newest=%s", v.ChatID, v.Oldest, v.Newest)
	case MsgID:
		return fmt.Sprintf("MSGID msgxid=%s msgid=%s", v.TransactionID, v.ID)
	case Reject:
		if v.Op == OpNewMsg {
			return fmt.Sprintf("REJECT op=%s code=%d msgxid=%s", v.Op, v.Code, v.ID)
		}
		return fmt.Sprintf("REJECT op=%s code=%d", v.Op, v.Code)
	case HistDone:
		return fmt.Sprintf("HISTDONE chat=%s", v.ChatID)
	case nil:
		return "<nil>"
	default:
		return p.Opcode().String()
	}
}
