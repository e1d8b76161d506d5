package main

import (
	"bytes"
	stderrors "errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-dev/chatd/internal/config"
	"github.com/vango-dev/chatd/pkg/protocol"
)

const (
	testUser protocol.ID = 1
	testChat protocol.ID = 10
	peerUser protocol.ID = 2
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// syncBuffer is a bytes.Buffer safe for a writer on the client loop and
// a reader in the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// fakeShard is a shard server that answers NEWMSG with MSGID, or with a
// REJECT when reject is set, and hands every connection to the test.
type fakeShard struct {
	srv      *httptest.Server
	conns    chan *websocket.Conn
	received chan protocol.Payload
	reject   bool
	nextID   protocol.ID

	writeMu sync.Mutex
}

func newFakeShard(t *testing.T, reject bool) *fakeShard {
	t.Helper()
	s := &fakeShard{
		conns:    make(chan *websocket.Conn, 4),
		received: make(chan protocol.Payload, 256),
		reject:   reject,
		nextID:   1000,
	}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		s.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ps, err := protocol.DecodeAll(data)
			if err != nil {
				t.Errorf("shard: undecodable frame: %v", err)
				return
			}
			for _, p := range ps {
				s.received <- p
				if msg, ok := p.(protocol.Msg); ok && msg.Op == protocol.OpNewMsg {
					s.answer(conn, msg)
				}
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeShard) answer(conn *websocket.Conn, msg protocol.Msg) {
	var reply *protocol.Command
	if s.reject {
		reply = protocol.Reject{Op: protocol.OpNewMsg, Code: 1, ID: msg.ID}.Encode()
	} else {
		s.nextID++
		reply = protocol.MsgID{TransactionID: msg.ID, ID: s.nextID}.Encode()
	}
	s.write(conn, reply.Bytes())
}

func (s *fakeShard) write(conn *websocket.Conn, frame []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (s *fakeShard) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/chatd"
}

func (s *fakeShard) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("shard: no connection")
		return nil
	}
}

func (s *fakeShard) expect(t *testing.T, op protocol.Opcode) protocol.Payload {
	t.Helper()
	select {
	case p := <-s.received:
		if p.Opcode() != op {
			t.Fatalf("shard received %s, want %s", protocol.FormatPayload(p), op)
		}
		return p
	case <-time.After(3 * time.Second):
		t.Fatalf("shard did not receive %s", op)
		return nil
	}
}

// testConfig returns a validated config with one chat on shardURL.
func testConfig(t *testing.T, shardURL string) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.User = testUser.String()
	cfg.Shards = []config.ShardConfig{{Shard: 0, URL: shardURL}}
	cfg.Chats = []config.ChatConfig{{ID: testChat.String(), Shard: 0}}
	cfg.Client.ReconnectDelayInitial = config.Duration(10 * time.Millisecond)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	return cfg
}

// writeTestConfig saves cfg in a temp dir and returns its path.
func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.ConfigFileName)
	if err := cfg.SaveTo(path); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs the root command with args and returns its standard
// output. Logs go to a separate buffer.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.Execute()
	return out.String(), err
}

func asError(err error, target any) bool {
	return stderrors.As(err, target)
}
