package chatd

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-dev/chatd/pkg/wsurl"
)

// WebsocketTransport dials shard servers over websocket. Each chatd frame
// is one binary websocket message.
type WebsocketTransport struct {
	// Dialer is used for the handshake. Default: a copy of
	// websocket.DefaultDialer with the configured handshake timeout.
	Dialer *websocket.Dialer

	// Header is sent with the handshake request.
	Header http.Header

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration

	// MaxMessageSize bounds each received frame.
	MaxMessageSize int64
}

// NewWebsocketTransport creates a transport using cfg's timeouts and limits.
func NewWebsocketTransport(cfg *Config) *WebsocketTransport {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = cfg.HandshakeTimeout
	return &WebsocketTransport{
		Dialer:         &dialer,
		WriteTimeout:   cfg.WriteTimeout,
		MaxMessageSize: cfg.MaxMessageSize,
	}
}

// Dial opens a websocket to u.
func (t *WebsocketTransport) Dial(ctx context.Context, u wsurl.URL) (Socket, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.Endpoint(), t.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	if t.MaxMessageSize > 0 {
		conn.SetReadLimit(t.MaxMessageSize)
	}
	return newWebsocketSocket(conn, t.WriteTimeout), nil
}

// websocketSocket adapts a gorilla connection to Socket.
type websocketSocket struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex // gorilla allows one concurrent writer
	started   atomic.Bool
	readDone  chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newWebsocketSocket(conn *websocket.Conn, writeTimeout time.Duration) *websocketSocket {
	return &websocketSocket{
		conn:         conn,
		writeTimeout: writeTimeout,
		readDone:     make(chan struct{}),
	}
}

// Start begins the read loop.
func (s *websocketSocket) Start(h SocketHandler) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.readLoop(h)
}

func (s *websocketSocket) readLoop(h SocketHandler) {
	defer close(s.readDone)
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			h.OnClose(err)
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		h.OnFrame(data)
	}
}

// Send writes data as one binary message.
func (s *websocketSocket) Send(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Close sends a close message, closes the connection and waits for the
// read loop to exit.
func (s *websocketSocket) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		// The peer may already be gone; the close frame is best effort.
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		s.writeMu.Unlock()

		s.closeErr = s.conn.Close()
		if s.started.Load() {
			<-s.readDone
		}
	})
	return s.closeErr
}
