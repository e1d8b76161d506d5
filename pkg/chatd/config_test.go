package chatd

import (
	"errors"
	"testing"
	"time"

	"github.com/vango-dev/chatd/pkg/protocol"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ReconnectDelayMax != 60*time.Second {
		t.Errorf("ReconnectDelayMax = %v, want 60s", cfg.ReconnectDelayMax)
	}
	if cfg.MaxMessageSize != protocol.DefaultMaxFrameSize {
		t.Errorf("MaxMessageSize = %d", cfg.MaxMessageSize)
	}
}

func TestConfig_CloneIsIndependent(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.InitialHistory = 1
	if cfg.InitialHistory == 1 {
		t.Fatal("Clone() shares state")
	}
	var nilCfg *Config
	if nilCfg.Clone() != nil {
		t.Fatal("nil Clone() != nil")
	}
}

func TestConfig_NormalizeFillsZeroes(t *testing.T) {
	cfg := &Config{ReconnectDelayInitial: 2 * time.Minute}
	cfg.normalize()
	if cfg.ReconnectDelayMax != 2*time.Minute {
		t.Errorf("ReconnectDelayMax = %v, want raised to the initial delay", cfg.ReconnectDelayMax)
	}
	if cfg.InitialHistory != 32 || cfg.CheckLookback != 32 {
		t.Errorf("history defaults = %d, %d", cfg.InitialHistory, cfg.CheckLookback)
	}
	if cfg.ReconnectMultiplier != 2.0 {
		t.Errorf("ReconnectMultiplier = %v", cfg.ReconnectMultiplier)
	}
}

func TestWithConfig_Copies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialHistory = 7
	cl := NewClient(testUser, WithConfig(cfg), WithTransport(&fakeTransport{}), WithLogger(discardLogger()))
	cfg.InitialHistory = 99
	if cl.Config().InitialHistory != 7 {
		t.Fatalf("InitialHistory = %d, want 7", cl.Config().InitialHistory)
	}
}

func TestChatError(t *testing.T) {
	err := chatError(testChatA, "submit", ErrUnknownChat)
	if !errors.Is(err, ErrUnknownChat) {
		t.Fatal("errors.Is failed")
	}
	if got, want := err.Error(), "chatd: chat "+testChatA.String()+": submit: chatd: unknown chat"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	anon := &ChatError{Op: "x", Err: ErrNoURL}
	if anon.Error() != "chatd: x: chatd: no url for shard" {
		t.Fatalf("Error() = %q", anon.Error())
	}
}
