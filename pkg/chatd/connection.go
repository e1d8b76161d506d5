package chatd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vango-dev/chatd/pkg/protocol"
	"github.com/vango-dev/chatd/pkg/wsurl"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ConnState is the state of a Connection.
type ConnState int

const (
	StateNew ConnState = iota
	StateConnecting
	StateConnected
	StateJoined
	StateDisconnected
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

var errKeepaliveTimeout = errors.New("chatd: keepalive timeout")

// connSink receives the events decoded by a Connection. Each inbound
// command results in exactly one call. Client is the only implementation.
type connSink interface {
	onConnected(c *Connection)
	onStateChanged(c *Connection, state ConnState)
	onJoin(chatID, userID protocol.ID, priv protocol.Priv)
	onMessage(chatID protocol.ID, isNew bool, msg Message)
	onMsgUpdate(chatID, msgID protocol.ID, data []byte)
	onSeen(chatID, userID, msgID protocol.ID)
	onReceived(chatID, msgID protocol.ID)
	onRetention(chatID, userID protocol.ID, period uint32)
	onRange(chatID, newest protocol.ID)
	confirm(txID, msgID protocol.ID)
	onReject(r protocol.Reject)
	onHistDone(chatID protocol.ID)
}

// stopFunc cancels a scheduled callback.
type stopFunc func() bool

// afterFunc schedules f after d. It is time.AfterFunc outside of tests.
type afterFunc func(d time.Duration, f func()) stopFunc

func realAfterFunc(d time.Duration, f func()) stopFunc {
	return time.AfterFunc(d, f).Stop
}

// Connection owns one socket to a shard, shared by every chat assigned
// to that shard. It owns the outbound queue, the reconnect state machine
// and the inbound decode loop. All methods must be called on the loop.
type Connection struct {
	shardNo int
	url     wsurl.URL
	chatIDs []protocol.ID

	state  ConnState
	socket Socket
	queue  []*protocol.Command

	// gen identifies the current attempt or socket. Results and socket
	// events carrying an older generation are stale and dropped.
	gen           uint64
	cancelAttempt context.CancelFunc
	stopRetry     stopFunc
	connectDone   *Completion
	disconnecting bool
	rejoining     bool
	lastRecv      time.Time
	bo            *backoff.ExponentialBackOff

	reconnectCtx  context.Context
	reconnectSpan trace.Span

	loop      *Loop
	sink      connSink
	transport Transport
	cfg       *Config
	logger    *slog.Logger
	metrics   *metrics
	tracer    trace.Tracer
	now       func() time.Time
	after     afterFunc
}

func newConnection(shardNo int, cl *Client) *Connection {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cl.cfg.ReconnectDelayInitial
	bo.MaxInterval = cl.cfg.ReconnectDelayMax
	bo.Multiplier = cl.cfg.ReconnectMultiplier
	bo.MaxElapsedTime = 0 // retry until Disconnect
	bo.Reset()

	c := &Connection{
		shardNo:   shardNo,
		state:     StateNew,
		bo:        bo,
		loop:      cl.loop,
		sink:      cl,
		transport: cl.transport,
		cfg:       cl.cfg,
		logger:    cl.logger.With("shard", shardNo),
		metrics:   cl.metrics,
		tracer:    cl.tracer,
		now:       cl.now,
		after:     cl.after,
	}
	c.metrics.connectionState.WithLabelValues(shardLabel(shardNo)).Set(float64(StateNew))
	return c
}

// ShardNo returns the shard number.
func (c *Connection) ShardNo() int {
	return c.shardNo
}

// URL returns the shard URL.
func (c *Connection) URL() wsurl.URL {
	return c.url
}

// State returns the connection state.
func (c *Connection) State() ConnState {
	return c.state
}

// ChatIDs returns the chats assigned to this connection, in join order.
func (c *Connection) ChatIDs() []protocol.ID {
	return append([]protocol.ID(nil), c.chatIDs...)
}

// QueueLen returns the number of commands waiting for the socket to open.
func (c *Connection) QueueLen() int {
	return len(c.queue)
}

// IsOpen reports whether commands are written to the socket immediately.
func (c *Connection) IsOpen() bool {
	if c.socket == nil {
		return false
	}
	return c.rejoining || c.state == StateConnected || c.state == StateJoined
}

func (c *Connection) setURL(u wsurl.URL) {
	c.url = u
}

func (c *Connection) addChat(chatID protocol.ID) {
	for _, id := range c.chatIDs {
		if id == chatID {
			return
		}
	}
	c.chatIDs = append(c.chatIDs, chatID)
}

func (c *Connection) removeChat(chatID protocol.ID) {
	for i, id := range c.chatIDs {
		if id == chatID {
			c.chatIDs = append(c.chatIDs[:i], c.chatIDs[i+1:]...)
			return
		}
	}
}

func (c *Connection) hasChat(chatID protocol.ID) bool {
	for _, id := range c.chatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

func (c *Connection) setState(s ConnState) {
	if c.state == s {
		return
	}
	c.logger.Debug("connection state", "from", c.state, "to", s)
	c.state = s
	c.metrics.connectionState.WithLabelValues(shardLabel(c.shardNo)).Set(float64(s))
	c.sink.onStateChanged(c, s)
}

// Reconnect opens a new socket, replacing any existing one. The returned
// completion resolves when the connection has joined its chats, or with
// ErrDisconnected if Disconnect is called first. Failed attempts are
// retried with exponential backoff until then.
func (c *Connection) Reconnect() (*Completion, error) {
	switch c.state {
	case StateConnecting, StateConnected, StateJoined:
		return nil, ErrAlreadyConnecting
	}
	if !c.url.IsValid() {
		return nil, ErrNoURL
	}

	c.disconnecting = false
	c.resetSocket()
	c.connectDone = newCompletion()
	c.bo.Reset()
	c.startReconnectSpan()
	c.startAttempt()
	return c.connectDone, nil
}

// Disconnect tears down the socket and any attempt in flight, and stops
// reconnecting. A pending Reconnect completion resolves with
// ErrDisconnected. The returned completion resolves once the transport
// has closed the socket.
func (c *Connection) Disconnect() *Completion {
	c.disconnecting = true
	c.gen++
	if c.cancelAttempt != nil {
		c.cancelAttempt()
		c.cancelAttempt = nil
	}
	if c.stopRetry != nil {
		c.stopRetry()
		c.stopRetry = nil
	}
	if c.connectDone != nil {
		c.connectDone.resolve(ErrDisconnected)
	}
	c.endReconnectSpan(ErrDisconnected)

	sock := c.socket
	c.socket = nil
	if c.state != StateNew {
		c.setState(StateDisconnected)
	}
	if sock == nil {
		return resolvedCompletion(nil)
	}

	c.logger.Info("disconnecting")
	done := newCompletion()
	go func() {
		done.resolve(sock.Close())
	}()
	return done
}

// resetSocket drops the current socket without reporting a state change.
func (c *Connection) resetSocket() {
	if c.socket == nil {
		return
	}
	sock := c.socket
	c.socket = nil
	c.gen++
	go sock.Close()
}

func (c *Connection) startReconnectSpan() {
	c.endReconnectSpan(nil)
	c.reconnectCtx, c.reconnectSpan = c.tracer.Start(context.Background(), spanReconnect,
		trace.WithAttributes(shardAttrs(c.shardNo, c.url.String())...))
}

func (c *Connection) endReconnectSpan(err error) {
	if c.reconnectSpan == nil {
		return
	}
	if err != nil {
		c.reconnectSpan.RecordError(err)
		c.reconnectSpan.SetStatus(codes.Error, err.Error())
	}
	c.reconnectSpan.End()
	c.reconnectSpan = nil
	c.reconnectCtx = nil
}

// startAttempt dials in the background. The result is posted back to the
// loop tagged with the attempt's generation.
func (c *Connection) startAttempt() {
	c.gen++
	gen := c.gen
	c.stopRetry = nil
	c.setState(StateConnecting)
	c.metrics.reconnectAttempts.WithLabelValues(shardLabel(c.shardNo)).Inc()

	parent := c.reconnectCtx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	c.cancelAttempt = cancel
	u := c.url

	c.logger.Debug("dialing", "url", u.String())
	go func() {
		defer cancel()
		ctx, span := c.tracer.Start(ctx, spanDial,
			trace.WithAttributes(shardAttrs(c.shardNo, u.String())...))
		sock, err := c.transport.Dial(ctx, u)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		c.loop.Post(func() { c.onDialResult(gen, sock, err) })
	}()
}

func (c *Connection) onDialResult(gen uint64, sock Socket, err error) {
	if gen != c.gen {
		// Superseded by Disconnect or a newer attempt.
		if sock != nil {
			go sock.Close()
		}
		return
	}
	c.cancelAttempt = nil

	if err != nil {
		c.logger.Warn("connect failed", "url", c.url.String(), "error", err)
		c.scheduleRetry()
		return
	}

	c.socket = sock
	c.bo.Reset()
	c.lastRecv = c.now()
	sock.Start(&connHandler{conn: c, gen: gen})
	c.logger.Info("connected", "url", c.url.String())
	c.onOpen()
}

// onOpen rejoins every chat, resends what is pending and then flushes
// the commands queued while offline. Connected is reported once that
// pass is written, so anything a listener sends follows the JOINs.
func (c *Connection) onOpen() {
	queued := c.queue
	c.queue = nil
	c.setQueueDepth()

	c.rejoining = true
	c.sink.onConnected(c)
	for _, cmd := range queued {
		c.sendCommand(cmd)
	}
	c.rejoining = false
	if c.socket == nil {
		return
	}

	c.setState(StateConnected)
	if c.socket == nil {
		return
	}
	c.setState(StateJoined)
	if c.connectDone != nil {
		c.connectDone.resolve(nil)
	}
	c.endReconnectSpan(nil)
}

func (c *Connection) scheduleRetry() {
	delay := c.bo.NextBackOff()
	if delay == backoff.Stop {
		delay = c.cfg.ReconnectDelayMax
	}
	gen := c.gen
	c.logger.Info("reconnecting", "delay", delay)
	c.stopRetry = c.after(delay, func() {
		c.loop.Post(func() {
			if gen != c.gen || c.disconnecting {
				return
			}
			c.startAttempt()
		})
	})
}

// lost handles a socket that died underneath us and starts reconnecting.
func (c *Connection) lost(err error) {
	sock := c.socket
	c.socket = nil
	c.gen++
	if sock != nil {
		go sock.Close()
	}
	c.logger.Warn("connection lost", "error", err)
	c.setState(StateDisconnected)
	if c.disconnecting {
		return
	}

	// A Reconnect completion still pending resolves when this retry joins.
	c.bo.Reset()
	c.startReconnectSpan()
	c.startAttempt()
}

func (c *Connection) onSocketClose(gen uint64, err error) {
	if gen != c.gen || c.socket == nil {
		return
	}
	if err == nil {
		err = errors.New("closed by server")
	}
	c.lost(err)
}

// checkAlive forces a reconnect when nothing was received for the
// keepalive timeout.
func (c *Connection) checkAlive(now time.Time) {
	if !c.IsOpen() {
		return
	}
	if now.Sub(c.lastRecv) > c.cfg.KeepaliveTimeout {
		c.lost(errKeepaliveTimeout)
	}
}

// sendCommand writes cmd if the socket is open and nothing is queued
// ahead of it, and queues it otherwise. It reports whether cmd was
// written.
func (c *Connection) sendCommand(cmd *protocol.Command) bool {
	if !c.IsOpen() || len(c.queue) > 0 {
		c.queue = append(c.queue, cmd)
		c.setQueueDepth()
		return false
	}

	if err := c.socket.Send(cmd.Bytes()); err != nil {
		// The command is dropped: pending messages and edits are resent
		// from the buffers on reconnect.
		c.logger.Error("send failed", "cmd", cmd.String(), "error", err)
		c.lost(err)
		return false
	}
	c.metrics.sent(cmd.Opcode())
	if c.logger.Enabled(context.Background(), slog.LevelDebug) {
		c.logger.Debug("send", "cmd", cmd.String())
	}
	return true
}

func (c *Connection) setQueueDepth() {
	c.metrics.queueDepth.WithLabelValues(shardLabel(c.shardNo)).Set(float64(len(c.queue)))
}

// execCommand decodes a received frame and dispatches each command in
// wire order. A decode error discards the rest of the frame; commands
// before it have already been applied.
func (c *Connection) execCommand(frame []byte) {
	c.lastRecv = c.now()
	cur := protocol.NewCursor(frame)
	for !cur.EOF() {
		p, err := protocol.Decode(cur)
		if err != nil {
			c.metrics.decodeErrors.Inc()
			var de *protocol.DecodeError
			pos := cur.Position()
			if errors.As(err, &de) {
				pos = de.Offset
			}
			c.logger.Error("decode failed, discarding rest of frame",
				"pos", pos,
				"discarded", len(frame)-pos,
				"error", err)
			return
		}
		c.metrics.received(p.Opcode())
		if c.logger.Enabled(context.Background(), slog.LevelDebug) {
			c.logger.Debug("recv", "cmd", protocol.FormatPayload(p))
		}
		c.dispatch(p)
	}
}

func (c *Connection) dispatch(p protocol.Payload) {
	switch v := p.(type) {
	case protocol.Keepalive:
		c.sendCommand(protocol.Keepalive{}.Encode())
	case protocol.Join:
		c.sink.onJoin(v.ChatID, v.UserID, v.Priv)
	case protocol.Msg:
		c.sink.onMessage(v.ChatID, v.Op == protocol.OpNewMsg, Message{
			ID:        v.ID,
			UserID:    v.UserID,
			Timestamp: v.Timestamp,
			Data:      v.Data,
			Status:    StatusConfirmed,
		})
	case protocol.MsgUpd:
		c.sink.onMsgUpdate(v.ChatID, v.ID, v.Data)
	case protocol.Seen:
		c.sink.onSeen(v.ChatID, v.UserID, v.ID)
	case protocol.Received:
		c.sink.onReceived(v.ChatID, v.ID)
	case protocol.Retention:
		c.sink.onRetention(v.ChatID, v.UserID, v.Period)
	case protocol.Range:
		c.sink.onRange(v.ChatID, v.Newest)
	case protocol.MsgID:
		c.sink.confirm(v.TransactionID, v.ID)
	case protocol.Reject:
		c.sink.onReject(v)
	case protocol.HistDone:
		c.sink.onHistDone(v.ChatID)
	default:
		c.logger.Warn("unexpected command from server", "op", p.Opcode())
	}
}

// connHandler marshals socket events onto the loop.
type connHandler struct {
	conn *Connection
	gen  uint64
}

func (h *connHandler) OnFrame(data []byte) {
	h.conn.loop.Post(func() {
		if h.gen != h.conn.gen {
			return
		}
		h.conn.execCommand(data)
	})
}

func (h *connHandler) OnClose(err error) {
	h.conn.loop.Post(func() {
		h.conn.onSocketClose(h.gen, err)
	})
}
