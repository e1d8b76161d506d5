package chatd

import (
	"errors"
	"fmt"

	"github.com/vango-dev/chatd/pkg/protocol"
)

// Sentinel errors for routing and connection state.
var (
	// ErrAlreadyConnecting is returned by Reconnect when the connection is
	// already connecting or connected.
	ErrAlreadyConnecting = errors.New("chatd: already connecting")

	// ErrAlreadyJoined is returned by Join for a chat that has a buffer.
	ErrAlreadyJoined = errors.New("chatd: already joined")

	// ErrUnknownChat is returned when no buffer is registered for a chat id.
	ErrUnknownChat = errors.New("chatd: unknown chat")

	// ErrUnknownTransaction is returned when a confirmation names a
	// transaction id that is not pending.
	ErrUnknownTransaction = errors.New("chatd: unknown transaction")

	// ErrMessageNotFound is returned for an index outside the buffer.
	ErrMessageNotFound = errors.New("chatd: message not found")

	// ErrDisconnected resolves a pending connect that Disconnect superseded.
	ErrDisconnected = errors.New("chatd: disconnected")

	// ErrClientClosed is returned after Close.
	ErrClientClosed = errors.New("chatd: client closed")

	// ErrNoURL is returned by Reconnect when no shard URL is known.
	ErrNoURL = errors.New("chatd: no url for shard")
)

// ChatError wraps an error with the chat it concerns.
type ChatError struct {
	ChatID protocol.ID
	Op     string // Operation that failed
	Err    error  // Underlying error
}

// Error returns the error message with chat context.
func (e *ChatError) Error() string {
	if e.ChatID.IsNull() {
		return fmt.Sprintf("chatd: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("chatd: chat %s: %s: %v", e.ChatID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ChatError) Unwrap() error {
	return e.Err
}

func chatError(chatID protocol.ID, op string, err error) error {
	return &ChatError{ChatID: chatID, Op: op, Err: err}
}
