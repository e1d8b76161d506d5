// Package protocol implements the chatd binary wire protocol.
//
// A websocket frame carries one or more concatenated commands. Commands
// never cross frame boundaries.
//
// # Wire Format
//
// Every command is a one-byte opcode followed by fixed fields. Multi-byte
// integers are big-endian. Commands carrying a message body declare its
// length in a 32-bit field just before it:
//
//	┌────────┬─────────────────────────────┬──────────┬─────────────┐
//	│ Opcode │ Fixed fields                │ Len (4)  │ Body (Len)  │
//	│ (1)    │ (per opcode)                │ optional │ optional    │
//	└────────┴─────────────────────────────┴──────────┴─────────────┘
//
// # Commands
//
//	KEEPALIVE  both   (none)
//	JOIN       both   chatId(8) userId(8) priv(1)
//	OLDMSG     S→C    msgId(8) userId(8) chatId(8) ts(4) len(4) msg
//	NEWMSG     both   msgId(8) userId(8) chatId(8) ts(4) len(4) msg
//	MSGUPD     both   chatId(8) msgId(8) len(4) msg
//	SEEN       both   chatId(8) userId(8) msgId(8)
//	RECEIVED   S→C    chatId(8) msgId(8)
//	RETENTION  S→C    chatId(8) userId(8) period(4)
//	HIST       C→S    chatId(8) count(4)
//	RANGE      both   chatId(8) oldestId(8) newestId(8)
//	MSGID      S→C    transactionId(8) permanentId(8)
//	REJECT     S→C    op(4) code(4) [transactionId(8) if op is NEWMSG]
//	HISTDONE   S→C    chatId(8)
//
// # Encoding
//
// Commands are built append-only:
//
//	cmd := protocol.NewCommand(protocol.OpHist).
//	    AddID(chatID).
//	    AddInt32(-32)
//
// or from a typed payload:
//
//	cmd := protocol.Hist{ChatID: chatID, Count: -32}.Encode()
//
// # Decoding
//
// Decoding goes through a Cursor, which refuses to read past the end of
// the frame or past the size the current command declares:
//
//	c := protocol.NewCursor(frame)
//	for !c.EOF() {
//	    p, err := protocol.Decode(c)
//	    if err != nil {
//	        // Discard the rest of the frame.
//	        break
//	    }
//	    handle(p)
//	}
//
// An unknown opcode stops decoding of the frame since its size cannot be
// known. Commands decoded before the failure remain valid.
package protocol
