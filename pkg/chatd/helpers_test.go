package chatd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vango-dev/chatd/pkg/protocol"
	"github.com/vango-dev/chatd/pkg/wsurl"
)

const (
	testUser  protocol.ID = 0x1111
	testChatA protocol.ID = 0xA0A0
	testChatB protocol.ID = 0xB0B0
	testShard             = "wss://shard0.example.com/chatd"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSocket records sent frames. Frames and closes are injected by the
// test through the handler given to Start.
type fakeSocket struct {
	mu      sync.Mutex
	handler SocketHandler
	sent    [][]byte
	closed  bool
	sendErr error
}

func (s *fakeSocket) Start(h SocketHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *fakeSocket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, append([]byte(nil), data...))
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// deliver hands a frame to the connection as if received.
func (s *fakeSocket) deliver(frame []byte) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	h.OnFrame(frame)
}

// serverClose reports the socket closed by the peer.
func (s *fakeSocket) serverClose(err error) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	h.OnClose(err)
}

// sentPayloads decodes every frame sent so far.
func (s *fakeSocket) sentPayloads(t *testing.T) []protocol.Payload {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []protocol.Payload
	for _, frame := range s.sent {
		ps, err := protocol.DecodeAll(frame)
		if err != nil {
			t.Fatalf("sent frame does not decode: %v", err)
		}
		out = append(out, ps...)
	}
	return out
}

// fakeTransport hands out fakeSockets. Queued errors fail dials in order.
type fakeTransport struct {
	mu      sync.Mutex
	errs    []error
	sockets []*fakeSocket
	dials   int
	block   chan struct{}

	// deadlines records, per dial, whether ctx carried a deadline.
	deadlines []bool
}

func (t *fakeTransport) Dial(ctx context.Context, u wsurl.URL) (Socket, error) {
	t.mu.Lock()
	t.dials++
	_, hasDeadline := ctx.Deadline()
	t.deadlines = append(t.deadlines, hasDeadline)
	block := t.block
	var err error
	if len(t.errs) > 0 {
		err, t.errs = t.errs[0], t.errs[1:]
	}
	t.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	s := &fakeSocket{}
	t.mu.Lock()
	t.sockets = append(t.sockets, s)
	t.mu.Unlock()
	return s, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) socket(i int) *fakeSocket {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.sockets) {
		return nil
	}
	return t.sockets[i]
}

// fakeTimers captures scheduled retries so tests fire them by hand.
type fakeTimers struct {
	mu      sync.Mutex
	pending []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (ft *fakeTimers) after(d time.Duration, f func()) stopFunc {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	ft.pending = append(ft.pending, t)
	return func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		was := !t.stopped
		t.stopped = true
		return was
	}
}

// fire runs the oldest live timer and reports its delay.
func (ft *fakeTimers) fire(t *testing.T) time.Duration {
	t.Helper()
	ft.mu.Lock()
	var next *fakeTimer
	for len(ft.pending) > 0 {
		next, ft.pending = ft.pending[0], ft.pending[1:]
		if !next.stopped {
			break
		}
		next = nil
	}
	ft.mu.Unlock()
	if next == nil {
		t.Fatal("no timer scheduled")
	}
	next.fn()
	return next.delay
}

func (ft *fakeTimers) count() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	n := 0
	for _, t := range ft.pending {
		if !t.stopped {
			n++
		}
	}
	return n
}

// recordingListener logs events as strings.
type recordingListener struct {
	NopListener
	mu     sync.Mutex
	events []string

	// onState, if set, runs after a state change is recorded.
	onState func(chatID protocol.ID, state ConnState)
}

func (r *recordingListener) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recordingListener) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingListener) count(prefix string) int {
	n := 0
	for _, e := range r.list() {
		if len(e) >= len(prefix) && e[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (r *recordingListener) OnMessageLoaded(chatID protocol.ID, idx int, msg Message) {
	r.add("loaded %s %d %s", chatID, idx, msg.ID)
}

func (r *recordingListener) OnMessageReceived(chatID protocol.ID, idx int, msg Message) {
	r.add("received %s %d %s", chatID, idx, msg.ID)
}

func (r *recordingListener) OnMessageConfirmed(chatID protocol.ID, idx int, txID protocol.ID, msg Message) {
	r.add("confirmed %s %d %s", chatID, idx, msg.ID)
}

func (r *recordingListener) OnMessageRejected(chatID protocol.ID, idx int, msg Message) {
	r.add("rejected %s %d", chatID, idx)
}

func (r *recordingListener) OnMessageEdited(chatID protocol.ID, idx int, msg Message) {
	r.add("edited %s %d %s", chatID, idx, msg.Data)
}

func (r *recordingListener) OnHistoryDone(chatID protocol.ID) {
	r.add("histdone %s", chatID)
}

func (r *recordingListener) OnHistoryReloading(chatID protocol.ID) {
	r.add("reloading %s", chatID)
}

func (r *recordingListener) OnLastSeenChanged(chatID protocol.ID, idx int) {
	r.add("seen %s %d", chatID, idx)
}

func (r *recordingListener) OnLastReceivedChanged(chatID protocol.ID, idx int) {
	r.add("delivered %s %d", chatID, idx)
}

func (r *recordingListener) OnRetention(chatID, userID protocol.ID, period time.Duration) {
	r.add("retention %s %s", chatID, period)
}

func (r *recordingListener) OnUserJoin(chatID, userID protocol.ID, priv protocol.Priv) {
	r.add("userjoin %s %s %d", chatID, userID, priv)
}

func (r *recordingListener) OnUserLeave(chatID, userID protocol.ID) {
	r.add("userleave %s %s", chatID, userID)
}

func (r *recordingListener) OnOnlineStateChanged(chatID protocol.ID, state ConnState) {
	r.add("state %s %s", chatID, state)
	if r.onState != nil {
		r.onState(chatID, state)
	}
}

func (r *recordingListener) OnRejected(chatID protocol.ID, op protocol.Opcode, code uint32) {
	r.add("reject %s %d", op, code)
}

type testEnv struct {
	client    *Client
	transport *fakeTransport
	timers    *fakeTimers
	listener  *recordingListener
	registry  *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		transport: &fakeTransport{},
		timers:    &fakeTimers{},
		listener:  &recordingListener{},
		registry:  prometheus.NewRegistry(),
	}
	env.client = NewClient(testUser,
		WithTransport(env.transport),
		WithListener(env.listener),
		WithLogger(discardLogger()),
		WithRegistry(env.registry),
	)
	env.client.after = env.timers.after
	return env
}

// settle drains the loop until cond holds, failing after a second.
func (env *testEnv) settle(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		env.client.loop.drain()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}

// connect joins nothing new; it brings every shard online and waits for
// shard 0 to reach StateJoined.
func (env *testEnv) connect(t *testing.T) *fakeSocket {
	t.Helper()
	if _, err := env.client.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	conn, _ := env.client.Connection(0)
	env.settle(t, func() bool { return conn.State() == StateJoined })
	return env.transport.socket(env.transport.dialCount() - 1)
}

// fakeSender records commands for Messages unit tests.
type fakeSender struct {
	open bool
	sent []*protocol.Command
}

func (s *fakeSender) IsOpen() bool {
	return s.open
}

func (s *fakeSender) sendCommand(cmd *protocol.Command) bool {
	if !s.open {
		return false
	}
	s.sent = append(s.sent, cmd)
	return true
}

func (s *fakeSender) ops() []protocol.Opcode {
	out := make([]protocol.Opcode, len(s.sent))
	for i, c := range s.sent {
		out[i] = c.Opcode()
	}
	return out
}

func (s *fakeSender) payloads(t *testing.T) []protocol.Payload {
	t.Helper()
	var out []protocol.Payload
	for _, c := range s.sent {
		p, err := protocol.Decode(protocol.NewCursor(c.Bytes()))
		if err != nil {
			t.Fatalf("Decode(%s) error: %v", c, err)
		}
		out = append(out, p)
	}
	return out
}

func opsOf(ps []protocol.Payload) []protocol.Opcode {
	out := make([]protocol.Opcode, len(ps))
	for i, p := range ps {
		out[i] = p.Opcode()
	}
	return out
}

func newTestMessages(t *testing.T, open bool) (*Messages, *fakeSender, *recordingListener) {
	t.Helper()
	env := newTestEnv(t)
	sender := &fakeSender{open: open}
	return newMessages(env.client, testChatA, sender), sender, env.listener
}
