package chatd

import (
	"time"

	"github.com/vango-dev/chatd/pkg/protocol"
)

// Listener receives chat events. All methods are called on the loop and
// must not block.
type Listener interface {
	// OnMessageLoaded is called for a history message added at the low end.
	OnMessageLoaded(chatID protocol.ID, idx int, msg Message)

	// OnMessageReceived is called for a new message from the server.
	OnMessageReceived(chatID protocol.ID, idx int, msg Message)

	// OnMessageConfirmed is called when a sent message gets its permanent id.
	OnMessageConfirmed(chatID protocol.ID, idx int, txID protocol.ID, msg Message)

	// OnMessageRejected is called when the server refuses a sent message.
	// The message stays in the buffer in the rejected state.
	OnMessageRejected(chatID protocol.ID, idx int, msg Message)

	// OnMessageEdited is called when the server changes a message.
	OnMessageEdited(chatID protocol.ID, idx int, msg Message)

	// OnHistoryDone is called at the end of a history batch.
	OnHistoryDone(chatID protocol.ID)

	// OnHistoryReloading is called when the local newest message does not
	// match the server and history is fetched again.
	OnHistoryReloading(chatID protocol.ID)

	OnLastSeenChanged(chatID protocol.ID, idx int)
	OnLastReceivedChanged(chatID protocol.ID, idx int)

	OnRetention(chatID, userID protocol.ID, period time.Duration)

	OnUserJoin(chatID, userID protocol.ID, priv protocol.Priv)
	OnUserLeave(chatID, userID protocol.ID)

	// OnOnlineStateChanged is called for every chat on a connection when
	// the connection changes state.
	OnOnlineStateChanged(chatID protocol.ID, state ConnState)

	// OnRejected is called when the server rejects a command other than
	// NEWMSG. chatID is null when the command cannot be attributed.
	OnRejected(chatID protocol.ID, op protocol.Opcode, code uint32)
}

// NopListener implements Listener with no-op methods. Embed it to handle
// only the events of interest.
type NopListener struct{}

func (NopListener) OnMessageLoaded(protocol.ID, int, Message)                 {}
func (NopListener) OnMessageReceived(protocol.ID, int, Message)               {}
func (NopListener) OnMessageConfirmed(protocol.ID, int, protocol.ID, Message) {}
func (NopListener) OnMessageRejected(protocol.ID, int, Message)               {}
func (NopListener) OnMessageEdited(protocol.ID, int, Message)                 {}
func (NopListener) OnHistoryDone(protocol.ID)                                 {}
func (NopListener) OnHistoryReloading(protocol.ID)                            {}
func (NopListener) OnLastSeenChanged(protocol.ID, int)                        {}
func (NopListener) OnLastReceivedChanged(protocol.ID, int)                    {}
func (NopListener) OnRetention(protocol.ID, protocol.ID, time.Duration)       {}
func (NopListener) OnUserJoin(protocol.ID, protocol.ID, protocol.Priv)        {}
func (NopListener) OnUserLeave(protocol.ID, protocol.ID)                      {}
func (NopListener) OnOnlineStateChanged(protocol.ID, ConnState)               {}
func (NopListener) OnRejected(protocol.ID, protocol.Opcode, uint32)           {}

var _ Listener = NopListener{}
