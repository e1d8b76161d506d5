package chatd

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vango-dev/chatd/pkg/protocol"
	"github.com/vango-dev/chatd/pkg/wsurl"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Client keeps the message buffers of a user's chats in sync with the
// chat servers. Chats are spread over shards; each shard is served by
// one Connection shared by all the chats assigned to it.
//
// Client, Connection and Messages are owned by the client's Loop. Their
// methods must be called on the loop, from a Listener callback or
// through Loop().Call. Run, Loop, Disconnect and Close may be called
// from any goroutine.
type Client struct {
	userID protocol.ID

	connections map[int]*Connection
	connForChat map[protocol.ID]*Connection
	messages    map[protocol.ID]*Messages
	txToChat    map[protocol.ID]protocol.ID
	nextTxID    uint64
	online      bool
	closed      bool

	loop      *Loop
	cfg       *Config
	logger    *slog.Logger
	metrics   *metrics
	tracer    trace.Tracer
	listener  Listener
	transport Transport
	now       func() time.Time
	after     afterFunc
}

// NewClient creates a client for userID. No connection is opened until
// Connect is called.
func NewClient(userID protocol.ID, opts ...Option) *Client {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.config == nil {
		o.config = DefaultConfig()
	}
	o.config.normalize()
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}
	if o.listener == nil {
		o.listener = NopListener{}
	}
	if o.transport == nil {
		o.transport = NewWebsocketTransport(o.config)
	}

	logger := o.logger.With("component", "chatd", "user", userID.String())
	return &Client{
		userID:      userID,
		connections: make(map[int]*Connection),
		connForChat: make(map[protocol.ID]*Connection),
		messages:    make(map[protocol.ID]*Messages),
		txToChat:    make(map[protocol.ID]protocol.ID),
		nextTxID:    randomSeed(),
		loop:        NewLoop(logger),
		cfg:         o.config,
		logger:      logger,
		metrics:     newMetrics(o.registry),
		tracer:      newTracer(o.tracerProvider),
		listener:    o.listener,
		transport:   o.transport,
		now:         time.Now,
		after:       realAfterFunc,
	}
}

// randomSeed returns the starting point of the transaction id counter.
func randomSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint64(b[:])
}

// UserID returns the user the client acts for.
func (c *Client) UserID() protocol.ID {
	return c.userID
}

// Loop returns the loop that owns the client's state.
func (c *Client) Loop() *Loop {
	return c.loop
}

// Config returns a copy of the client configuration.
func (c *Client) Config() *Config {
	return c.cfg.Clone()
}

// Run runs the loop and the keepalive heartbeat until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.loop.Run(ctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(c.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				c.loop.Post(func() { c.Heartbeat(now) })
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Heartbeat reconnects every open connection that has been silent for
// longer than the keepalive timeout.
func (c *Client) Heartbeat(now time.Time) {
	for _, shardNo := range c.shardNos() {
		c.connections[shardNo].checkAlive(now)
	}
}

func (c *Client) shardNos() []int {
	out := make([]int, 0, len(c.connections))
	for n := range c.connections {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Join registers chatID on shard shardNo served at rawURL. The shard URL
// is refreshed even if the shard is already known. If the shard is
// connected the chat is joined at once; otherwise it is joined when the
// shard connects.
func (c *Client) Join(chatID protocol.ID, shardNo int, rawURL string) error {
	if c.closed {
		return ErrClientClosed
	}
	if _, ok := c.messages[chatID]; ok {
		return chatError(chatID, "join", ErrAlreadyJoined)
	}
	u, err := wsurl.Parse(rawURL)
	if err != nil {
		return chatError(chatID, "join", err)
	}

	conn, existed := c.connections[shardNo]
	if !existed {
		conn = newConnection(shardNo, c)
		c.connections[shardNo] = conn
	}
	conn.setURL(u)
	conn.addChat(chatID)
	c.connForChat[chatID] = conn

	m := newMessages(c, chatID, conn)
	c.messages[chatID] = m
	c.logger.Info("joined chat", "chat", chatID.String(), "shard", shardNo)

	c.attach(conn, m)
	return nil
}

// attach brings a chat newly assigned to conn online.
func (c *Client) attach(conn *Connection, m *Messages) {
	if conn.IsOpen() {
		m.rejoin()
		return
	}
	if !c.online {
		return
	}
	switch conn.State() {
	case StateNew, StateDisconnected:
		if _, err := conn.Reconnect(); err != nil {
			c.logger.Error("reconnect failed", "shard", conn.ShardNo(), "error", err)
		}
	}
}

// Leave drops chatID and its buffer, including unconfirmed sends.
func (c *Client) Leave(chatID protocol.ID) error {
	m, ok := c.messages[chatID]
	if !ok {
		return chatError(chatID, "leave", ErrUnknownChat)
	}
	for txID := range m.sending {
		delete(c.txToChat, txID)
	}
	m.release()
	delete(c.messages, chatID)
	if conn := c.connForChat[chatID]; conn != nil {
		conn.removeChat(chatID)
	}
	delete(c.connForChat, chatID)
	c.logger.Info("left chat", "chat", chatID.String())
	return nil
}

// Reassign moves chatID to another shard. Its buffer is kept.
func (c *Client) Reassign(chatID protocol.ID, shardNo int, rawURL string) error {
	m, ok := c.messages[chatID]
	if !ok {
		return chatError(chatID, "reassign", ErrUnknownChat)
	}
	u, err := wsurl.Parse(rawURL)
	if err != nil {
		return chatError(chatID, "reassign", err)
	}

	if old := c.connForChat[chatID]; old != nil {
		old.removeChat(chatID)
	}
	conn, existed := c.connections[shardNo]
	if !existed {
		conn = newConnection(shardNo, c)
		c.connections[shardNo] = conn
	}
	conn.setURL(u)
	conn.addChat(chatID)
	c.connForChat[chatID] = conn
	m.conn = conn
	c.logger.Info("reassigned chat", "chat", chatID.String(), "shard", shardNo)

	c.attach(conn, m)
	return nil
}

// Connect brings every shard online. Shards joined later connect as
// they are created. The returned completions resolve as each shard
// finishes joining.
func (c *Client) Connect() ([]*Completion, error) {
	if c.closed {
		return nil, ErrClientClosed
	}
	c.online = true
	var out []*Completion
	for _, shardNo := range c.shardNos() {
		conn := c.connections[shardNo]
		done, err := conn.Reconnect()
		if errors.Is(err, ErrAlreadyConnecting) {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, done)
	}
	return out, nil
}

// disconnectAll takes every shard offline.
func (c *Client) disconnectAll() []*Completion {
	c.online = false
	out := make([]*Completion, 0, len(c.connections))
	for _, shardNo := range c.shardNos() {
		out = append(out, c.connections[shardNo].Disconnect())
	}
	return out
}

// Disconnect closes every shard and waits for the transports to release
// their sockets. Buffers and pending sends are kept for the next Connect.
// It must not be called on the loop.
func (c *Client) Disconnect(ctx context.Context) error {
	var pending []*Completion
	if err := c.loop.Call(ctx, func() { pending = c.disconnectAll() }); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, done := range pending {
		done := done
		g.Go(func() error {
			return done.Wait(ctx)
		})
	}
	return g.Wait()
}

// Close disconnects and rejects further use. It must not be called on
// the loop.
func (c *Client) Close(ctx context.Context) error {
	err := c.Disconnect(ctx)
	if cerr := c.loop.Call(ctx, func() { c.closed = true }); err == nil {
		err = cerr
	}
	return err
}

// Messages returns the buffer of chatID.
func (c *Client) Messages(chatID protocol.ID) (*Messages, bool) {
	m, ok := c.messages[chatID]
	return m, ok
}

// Connection returns the connection of shard shardNo.
func (c *Client) Connection(shardNo int) (*Connection, bool) {
	conn, ok := c.connections[shardNo]
	return conn, ok
}

// Connections returns every shard connection ordered by shard number.
func (c *Client) Connections() []*Connection {
	out := make([]*Connection, 0, len(c.connections))
	for _, shardNo := range c.shardNos() {
		out = append(out, c.connections[shardNo])
	}
	return out
}

// ConnectionForChat returns the connection chatID is assigned to.
func (c *Client) ConnectionForChat(chatID protocol.ID) (*Connection, bool) {
	conn, ok := c.connForChat[chatID]
	return conn, ok
}

func (c *Client) lookup(chatID protocol.ID, op string) (*Messages, error) {
	m, ok := c.messages[chatID]
	if !ok {
		return nil, chatError(chatID, op, ErrUnknownChat)
	}
	return m, nil
}

// MsgSubmit submits a new message to chatID and returns its index.
func (c *Client) MsgSubmit(chatID protocol.ID, data []byte) (int, error) {
	m, err := c.lookup(chatID, "submit")
	if err != nil {
		return 0, err
	}
	return m.Submit(data), nil
}

// MsgModify edits the message at idx in chatID.
func (c *Client) MsgModify(chatID protocol.ID, idx int, data []byte) error {
	m, err := c.lookup(chatID, "modify")
	if err != nil {
		return err
	}
	return m.Modify(idx, data)
}

// MsgConfirm confirms txID in chatID. It reports false if txID is not
// pending there.
func (c *Client) MsgConfirm(chatID, txID, msgID protocol.ID) (bool, error) {
	m, err := c.lookup(chatID, "confirm")
	if err != nil {
		return false, err
	}
	ok := m.Confirm(txID, msgID)
	if ok {
		delete(c.txToChat, txID)
	}
	return ok, nil
}

// Confirm confirms txID in whichever chat it was submitted to. It
// reports false if txID is not pending.
func (c *Client) Confirm(txID, msgID protocol.ID) bool {
	chatID, ok := c.txToChat[txID]
	if !ok {
		return false
	}
	ok, err := c.MsgConfirm(chatID, txID, msgID)
	return err == nil && ok
}

// MsgStore adds a server message to chatID.
func (c *Client) MsgStore(chatID protocol.ID, isNew bool, msg Message) (int, bool, error) {
	m, err := c.lookup(chatID, "store")
	if err != nil {
		return 0, false, err
	}
	idx, stored := m.Store(isNew, msg)
	return idx, stored, nil
}

// MsgCheck compares the server's newest id for chatID with ours.
func (c *Client) MsgCheck(chatID, newest protocol.ID) (bool, error) {
	m, err := c.lookup(chatID, "check")
	if err != nil {
		return false, err
	}
	return m.Check(newest), nil
}

// OnMsgUpdCommand applies a server edit to chatID.
func (c *Client) OnMsgUpdCommand(chatID, msgID protocol.ID, data []byte) error {
	m, err := c.lookup(chatID, "msgupd")
	if err != nil {
		return err
	}
	return m.OnMsgUpdate(msgID, data)
}

func (c *Client) allocTxID(chatID protocol.ID) protocol.ID {
	c.nextTxID++
	id := protocol.ID(c.nextTxID) | protocol.TxIDFlag
	c.txToChat[id] = chatID
	return id
}

// connSink

func (c *Client) onConnected(conn *Connection) {
	for _, chatID := range conn.chatIDs {
		m := c.messages[chatID]
		if m == nil {
			continue
		}
		if !m.rejoin() || !conn.IsOpen() {
			return
		}
	}
}

func (c *Client) onStateChanged(conn *Connection, state ConnState) {
	for _, chatID := range conn.chatIDs {
		c.listener.OnOnlineStateChanged(chatID, state)
	}
}

func (c *Client) onJoin(chatID, userID protocol.ID, priv protocol.Priv) {
	if _, err := c.lookup(chatID, "join"); err != nil {
		c.logger.Warn("membership change for unknown chat", "error", err)
		return
	}
	if priv == protocol.PrivNotPresent {
		c.listener.OnUserLeave(chatID, userID)
		return
	}
	c.listener.OnUserJoin(chatID, userID, priv)
}

func (c *Client) onMessage(chatID protocol.ID, isNew bool, msg Message) {
	if _, _, err := c.MsgStore(chatID, isNew, msg); err != nil {
		c.logger.Warn("message for unknown chat dropped", "error", err)
	}
}

func (c *Client) onMsgUpdate(chatID, msgID protocol.ID, data []byte) {
	if err := c.OnMsgUpdCommand(chatID, msgID, data); err != nil {
		c.logger.Warn("edit dropped", "msgid", msgID.String(), "error", err)
	}
}

func (c *Client) onSeen(chatID, userID, msgID protocol.ID) {
	m, err := c.lookup(chatID, "seen")
	if err != nil {
		c.logger.Warn("seen for unknown chat", "error", err)
		return
	}
	m.onSeen(msgID)
}

func (c *Client) onReceived(chatID, msgID protocol.ID) {
	m, err := c.lookup(chatID, "received")
	if err != nil {
		c.logger.Warn("received for unknown chat", "error", err)
		return
	}
	m.onReceived(msgID)
}

func (c *Client) onRetention(chatID, userID protocol.ID, period uint32) {
	m, err := c.lookup(chatID, "retention")
	if err != nil {
		c.logger.Warn("retention for unknown chat", "error", err)
		return
	}
	m.onRetention(userID, period)
}

func (c *Client) onRange(chatID, newest protocol.ID) {
	if _, err := c.MsgCheck(chatID, newest); err != nil {
		c.logger.Warn("range for unknown chat", "error", err)
	}
}

func (c *Client) confirm(txID, msgID protocol.ID) {
	if !c.Confirm(txID, msgID) {
		c.logger.Error("confirmation of unknown transaction",
			"msgxid", txID.String(),
			"msgid", msgID.String(),
			"error", ErrUnknownTransaction)
	}
}

func (c *Client) onReject(r protocol.Reject) {
	if r.Op == protocol.OpNewMsg {
		c.confirm(r.ID, protocol.NullID)
		return
	}
	c.logger.Warn("command rejected", "op", r.Op, "code", r.Code)
	c.listener.OnRejected(protocol.NullID, r.Op, r.Code)
}

func (c *Client) onHistDone(chatID protocol.ID) {
	m, err := c.lookup(chatID, "histdone")
	if err != nil {
		c.logger.Warn("histdone for unknown chat", "error", err)
		return
	}
	m.onHistDone()
}

var _ connSink = (*Client)(nil)
