package main

import (
	"fmt"
	"io"
	"time"

	"github.com/vango-dev/chatd/pkg/chatd"
	"github.com/vango-dev/chatd/pkg/protocol"
)

// printer writes chat events as text lines. It runs on the client loop.
type printer struct {
	chatd.NopListener

	w       io.Writer
	history bool
}

func formatTime(ts uint32) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}

func (p *printer) message(chatID protocol.ID, idx int, tag string, msg chatd.Message) {
	fmt.Fprintf(p.w, "%s #%d %s %s user=%s id=%s %q\n",
		chatID, idx, tag, formatTime(msg.Timestamp), msg.UserID, msg.ID, msg.Data)
}

func (p *printer) OnMessageLoaded(chatID protocol.ID, idx int, msg chatd.Message) {
	if p.history {
		p.message(chatID, idx, "old", msg)
	}
}

func (p *printer) OnMessageReceived(chatID protocol.ID, idx int, msg chatd.Message) {
	p.message(chatID, idx, "new", msg)
}

func (p *printer) OnMessageConfirmed(chatID protocol.ID, idx int, txID protocol.ID, msg chatd.Message) {
	fmt.Fprintf(p.w, "%s #%d confirmed tx=%s id=%s\n", chatID, idx, txID, msg.ID)
}

func (p *printer) OnMessageRejected(chatID protocol.ID, idx int, msg chatd.Message) {
	fmt.Fprintf(p.w, "%s #%d rejected tx=%s\n", chatID, idx, msg.ID)
}

func (p *printer) OnMessageEdited(chatID protocol.ID, idx int, msg chatd.Message) {
	p.message(chatID, idx, "edit", msg)
}

func (p *printer) OnHistoryDone(chatID protocol.ID) {
	fmt.Fprintf(p.w, "%s history done\n", chatID)
}

func (p *printer) OnHistoryReloading(chatID protocol.ID) {
	fmt.Fprintf(p.w, "%s history out of date, reloading\n", chatID)
}

func (p *printer) OnRetention(chatID, userID protocol.ID, period time.Duration) {
	fmt.Fprintf(p.w, "%s retention %s\n", chatID, period)
}

func (p *printer) OnUserJoin(chatID, userID protocol.ID, priv protocol.Priv) {
	fmt.Fprintf(p.w, "%s user %s joined priv=%d\n", chatID, userID, priv)
}

func (p *printer) OnUserLeave(chatID, userID protocol.ID) {
	fmt.Fprintf(p.w, "%s user %s left\n", chatID, userID)
}

func (p *printer) OnOnlineStateChanged(chatID protocol.ID, state chatd.ConnState) {
	fmt.Fprintf(p.w, "%s %s\n", chatID, state)
}

func (p *printer) OnRejected(chatID protocol.ID, op protocol.Opcode, code uint32) {
	fmt.Fprintf(p.w, "server rejected %s code=%d\n", op, code)
}
