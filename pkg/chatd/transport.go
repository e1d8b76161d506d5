package chatd

import (
	"context"

	"github.com/vango-dev/chatd/pkg/wsurl"
)

// Transport opens sockets to shard servers. Dial must honour ctx for the
// whole handshake: the engine never times out a connect on its own.
type Transport interface {
	Dial(ctx context.Context, u wsurl.URL) (Socket, error)
}

// Socket is one open connection to a shard.
//
// Start is called once, on the loop, after the open has been accepted.
// From then on the socket delivers every received frame to OnFrame and
// finally calls OnClose exactly once, from its own goroutine.
type Socket interface {
	Start(h SocketHandler)

	// Send writes one frame.
	Send(data []byte) error

	// Close closes the socket and returns once the transport has
	// released it.
	Close() error
}

// SocketHandler receives socket events.
type SocketHandler interface {
	OnFrame(data []byte)
	OnClose(err error)
}
