package chatd

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vango-dev/chatd/pkg/protocol"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the tunables of a Client.
type Config struct {
	// Reconnect policy

	// ReconnectDelayInitial is the delay before the first retry.
	// Default: 1 second.
	ReconnectDelayInitial time.Duration

	// ReconnectDelayMax caps the delay between retries.
	// Default: 60 seconds.
	ReconnectDelayMax time.Duration

	// ReconnectMultiplier grows the delay after each failed attempt.
	// Default: 2.0.
	ReconnectMultiplier float64

	// Timeouts

	// WriteTimeout bounds a single frame write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HandshakeTimeout bounds the transport-level connect.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// KeepaliveTimeout is how long an open connection may stay silent
	// before it is considered dead and reconnected.
	// Default: 90 seconds.
	KeepaliveTimeout time.Duration

	// HeartbeatInterval is the period of the keepalive check.
	// Default: 10 seconds.
	HeartbeatInterval time.Duration

	// History

	// InitialHistory is the number of messages requested for a chat joined
	// with an empty buffer.
	// Default: 32.
	InitialHistory int

	// CheckLookback is the number of messages re-fetched when the server's
	// newest id does not match ours.
	// Default: 32.
	CheckLookback int

	// Limits

	// MaxMessageSize bounds a received frame.
	// Default: 1MB.
	MaxMessageSize int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ReconnectDelayInitial: time.Second,
		ReconnectDelayMax:     60 * time.Second,
		ReconnectMultiplier:   2.0,
		WriteTimeout:          10 * time.Second,
		HandshakeTimeout:      10 * time.Second,
		KeepaliveTimeout:      90 * time.Second,
		HeartbeatInterval:     10 * time.Second,
		InitialHistory:        32,
		CheckLookback:         32,
		MaxMessageSize:        protocol.DefaultMaxFrameSize,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// normalize fills zero fields with defaults.
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.ReconnectDelayInitial <= 0 {
		c.ReconnectDelayInitial = d.ReconnectDelayInitial
	}
	if c.ReconnectDelayMax <= 0 {
		c.ReconnectDelayMax = d.ReconnectDelayMax
	}
	if c.ReconnectDelayMax < c.ReconnectDelayInitial {
		c.ReconnectDelayMax = c.ReconnectDelayInitial
	}
	if c.ReconnectMultiplier < 1 {
		c.ReconnectMultiplier = d.ReconnectMultiplier
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.KeepaliveTimeout <= 0 {
		c.KeepaliveTimeout = d.KeepaliveTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.InitialHistory <= 0 {
		c.InitialHistory = d.InitialHistory
	}
	if c.CheckLookback <= 0 {
		c.CheckLookback = d.CheckLookback
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
}

// options collects the collaborators passed to NewClient.
type options struct {
	config         *Config
	logger         *slog.Logger
	registry       prometheus.Registerer
	tracerProvider trace.TracerProvider
	listener       Listener
	transport      Transport
}

// Option configures a Client.
type Option func(*options)

// WithConfig sets the client configuration. The config is copied.
func WithConfig(cfg *Config) Option {
	return func(o *options) {
		o.config = cfg.Clone()
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegistry sets the Prometheus registerer for client metrics.
// Default: a private registry, so that several clients can coexist.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithTracerProvider sets the tracer provider.
// Default: the global OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithListener sets the receiver of chat events.
func WithListener(l Listener) Option {
	return func(o *options) {
		o.listener = l
	}
}

// WithTransport sets the socket transport.
// Default: a gorilla/websocket transport.
func WithTransport(t Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}
