package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/chatd/internal/errors"
	"github.com/vango-dev/chatd/pkg/protocol"
)

func TestSendCmd(t *testing.T) {
	shard := newFakeShard(t, false)
	path := writeTestConfig(t, testConfig(t, shard.url()))

	out, err := execute(t, "", "send", "--config", path, "--chat", testChat.String(), "hello", "world")
	if err != nil {
		t.Fatalf("send error = %v", err)
	}
	if got, want := strings.TrimSpace(out), protocol.ID(1001).String(); got != want {
		t.Errorf("send output = %q, want %q", got, want)
	}

	shard.expect(t, protocol.OpJoin)
	shard.expect(t, protocol.OpHist)
	msg := shard.expect(t, protocol.OpNewMsg).(protocol.Msg)
	if string(msg.Data) != "hello world" || msg.ChatID != testChat || msg.UserID != testUser {
		t.Errorf("NEWMSG = %+v", msg)
	}
}

func TestRunSend_Rejected(t *testing.T) {
	shard := newFakeShard(t, true)
	cfg := testConfig(t, shard.url())
	w := &sendWatcher{chatID: testChat, result: make(chan sendResult, 1)}
	s, err := newSession(cfg, discardLogger(), w)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = runSend(ctx, s, w, []byte("nope"))
	if errors.Code(err) != "E130" || !strings.Contains(err.Error(), "Shard connection failed") {
		t.Fatalf("runSend() = %v, want E130", err)
	}
	var ce *errors.Error
	if !asError(err, &ce) || !strings.Contains(ce.Detail, "rejected") {
		t.Errorf("detail = %+v", ce)
	}
}

func TestRunSend_UnknownChat(t *testing.T) {
	shard := newFakeShard(t, false)
	cfg := testConfig(t, shard.url())
	w := &sendWatcher{chatID: peerUser, result: make(chan sendResult, 1)}
	s, err := newSession(cfg, discardLogger(), w)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := runSend(ctx, s, w, []byte("x")); errors.Code(err) != "E140" {
		t.Fatalf("runSend() = %v, want E140", err)
	}
}

func TestRunSend_Timeout(t *testing.T) {
	cfg := testConfig(t, "ws://127.0.0.1:1/chatd")
	w := &sendWatcher{chatID: testChat, result: make(chan sendResult, 1)}
	s, err := newSession(cfg, discardLogger(), w)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = runSend(ctx, s, w, []byte("x"))
	if errors.Code(err) != "E130" {
		t.Fatalf("runSend() = %v, want E130", err)
	}
}
