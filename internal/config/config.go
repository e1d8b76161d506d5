package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vango-dev/chatd/internal/errors"
	"github.com/vango-dev/chatd/pkg/chatd"
	"github.com/vango-dev/chatd/pkg/protocol"
	"github.com/vango-dev/chatd/pkg/wsurl"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "chatd.json"

	// DefaultLogLevel is used when log.level is empty.
	DefaultLogLevel = "info"

	// DefaultLogFormat is used when log.format is empty.
	DefaultLogFormat = "text"
)

// Config represents the complete chatd.json configuration.
type Config struct {
	// User is the base64url id of the user the tool acts for.
	User string `json:"user"`

	Shards []ShardConfig `json:"shards"`
	Chats  []ChatConfig  `json:"chats"`

	// Client overrides the chatd client defaults.
	Client ClientConfig `json:"client,omitempty"`

	Log     LogConfig     `json:"log,omitempty"`
	Metrics MetricsConfig `json:"metrics,omitempty"`

	// configPath is the path to the loaded config file (not serialized).
	configPath string
}

// ShardConfig maps a shard number to the URL serving it.
type ShardConfig struct {
	Shard int    `json:"shard"`
	URL   string `json:"url"`
}

// ChatConfig assigns a chat to a shard.
type ChatConfig struct {
	ID    string `json:"id"`
	Shard int    `json:"shard"`
}

// ClientConfig mirrors chatd.Config. Zero fields keep the chatd default.
type ClientConfig struct {
	ReconnectDelayInitial Duration `json:"reconnectDelayInitial,omitempty"`
	ReconnectDelayMax     Duration `json:"reconnectDelayMax,omitempty"`
	ReconnectMultiplier   float64  `json:"reconnectMultiplier,omitempty"`
	WriteTimeout          Duration `json:"writeTimeout,omitempty"`
	HandshakeTimeout      Duration `json:"handshakeTimeout,omitempty"`
	KeepaliveTimeout      Duration `json:"keepaliveTimeout,omitempty"`
	HeartbeatInterval     Duration `json:"heartbeatInterval,omitempty"`
	InitialHistory        int      `json:"initialHistory,omitempty"`
	CheckLookback         int      `json:"checkLookback,omitempty"`
	MaxMessageSize        int64    `json:"maxMessageSize,omitempty"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// MetricsConfig configures the status and metrics endpoint.
type MetricsConfig struct {
	// Addr is the listen address. Empty disables the endpoint.
	Addr string `json:"addr,omitempty"`
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler. Plain numbers are taken as
// seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var secs float64
		if nerr := json.Unmarshal(data, &secs); nerr != nil {
			return fmt.Errorf("duration must be a string or a number of seconds: %s", data)
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// New creates a new Config with default values.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads chatd.json from dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile loads and validates a configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E100").
				WithLocation(path, 0, 0).
				WithSuggestion("Pass --config or create " + ConfigFileName + " in the working directory")
		}
		return nil, errors.New("E101").WithLocation(path, 0, 0).Wrap(err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		line, col := 0, 0
		if off, ok := errorOffset(err); ok {
			line, col = position(data, off)
		}
		return nil, errors.New("E102").
			WithLocation(path, line, col).
			WithSuggestion("Check that " + filepath.Base(path) + " is valid JSON").
			Wrap(err)
	}

	cfg.configPath = path
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		var ce *errors.Error
		if stderrors.As(err, &ce) && ce.Location == nil {
			ce.WithLocation(path, 0, 0)
		}
		return nil, err
	}
	return cfg, nil
}

// errorOffset extracts the byte offset from a decoding error.
func errorOffset(err error) (int64, bool) {
	var syn *json.SyntaxError
	if stderrors.As(err, &syn) {
		return syn.Offset, true
	}
	var typ *json.UnmarshalTypeError
	if stderrors.As(err, &typ) {
		return typ.Offset, true
	}
	return 0, false
}

// position converts a byte offset into a 1-based line and column.
func position(data []byte, off int64) (line, col int) {
	if off > int64(len(data)) {
		off = int64(len(data))
	}
	line, col = 1, 1
	for _, b := range data[:off] {
		if b == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

// Save writes the configuration back to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.New("E101").WithDetail("Config was not loaded from a file")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E101").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E101").WithLocation(path, 0, 0).Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path of the loaded config file.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for missing fields.
func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.User == "" {
		return errors.New("E103")
	}
	if id, err := protocol.ParseID(c.User); err != nil || id.IsNull() {
		return errors.New("E104").
			WithSuggestion(fmt.Sprintf("user %q is not a valid id", c.User)).
			Wrap(err)
	}

	shards := make(map[int]bool, len(c.Shards))
	for _, s := range c.Shards {
		if s.Shard < 0 {
			return errors.New("E105").WithSuggestion(fmt.Sprintf("shard %d must not be negative", s.Shard))
		}
		if shards[s.Shard] {
			return errors.New("E105").WithSuggestion(fmt.Sprintf("shard %d is listed twice", s.Shard))
		}
		if _, err := wsurl.Parse(s.URL); err != nil {
			return errors.New("E105").
				WithSuggestion(fmt.Sprintf("shard %d has a malformed url %q", s.Shard, s.URL)).
				Wrap(err)
		}
		shards[s.Shard] = true
	}

	chats := make(map[protocol.ID]bool, len(c.Chats))
	for _, ch := range c.Chats {
		id, err := protocol.ParseID(ch.ID)
		if err != nil {
			return errors.New("E104").
				WithSuggestion(fmt.Sprintf("chat %q is not a valid id", ch.ID)).
				Wrap(err)
		}
		if chats[id] {
			return errors.New("E106").WithSuggestion(fmt.Sprintf("chat %s is listed twice", ch.ID))
		}
		if !shards[ch.Shard] {
			return errors.New("E106").WithSuggestion(fmt.Sprintf("chat %s names unknown shard %d", ch.ID, ch.Shard))
		}
		chats[id] = true
	}

	cc := c.Client
	if cc.ReconnectDelayInitial < 0 || cc.ReconnectDelayMax < 0 || cc.WriteTimeout < 0 ||
		cc.HandshakeTimeout < 0 || cc.KeepaliveTimeout < 0 || cc.HeartbeatInterval < 0 {
		return errors.New("E107").WithDetail("Durations must not be negative")
	}
	if cc.ReconnectMultiplier != 0 && cc.ReconnectMultiplier < 1 {
		return errors.New("E107").WithDetail("reconnectMultiplier must be at least 1")
	}
	if cc.InitialHistory < 0 || cc.CheckLookback < 0 || cc.MaxMessageSize < 0 {
		return errors.New("E107").WithDetail("Counts and sizes must not be negative")
	}

	if _, err := c.LogLevel(); err != nil {
		return errors.New("E107").Wrap(err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.New("E107").WithDetail(fmt.Sprintf("Unknown log format %q, want text or json", c.Log.Format))
	}
	return nil
}

// UserID returns the parsed user id.
func (c *Config) UserID() (protocol.ID, error) {
	return protocol.ParseID(c.User)
}

// ShardURL returns the URL of shard n.
func (c *Config) ShardURL(n int) (string, bool) {
	for _, s := range c.Shards {
		if s.Shard == n {
			return s.URL, true
		}
	}
	return "", false
}

// ClientConfig returns the chatd client configuration, starting from
// the chatd defaults.
func (c *Config) ClientConfig() *chatd.Config {
	out := chatd.DefaultConfig()
	cc := c.Client
	setDuration(&out.ReconnectDelayInitial, cc.ReconnectDelayInitial)
	setDuration(&out.ReconnectDelayMax, cc.ReconnectDelayMax)
	setDuration(&out.WriteTimeout, cc.WriteTimeout)
	setDuration(&out.HandshakeTimeout, cc.HandshakeTimeout)
	setDuration(&out.KeepaliveTimeout, cc.KeepaliveTimeout)
	setDuration(&out.HeartbeatInterval, cc.HeartbeatInterval)
	if cc.ReconnectMultiplier > 0 {
		out.ReconnectMultiplier = cc.ReconnectMultiplier
	}
	if cc.InitialHistory > 0 {
		out.InitialHistory = cc.InitialHistory
	}
	if cc.CheckLookback > 0 {
		out.CheckLookback = cc.CheckLookback
	}
	if cc.MaxMessageSize > 0 {
		out.MaxMessageSize = cc.MaxMessageSize
	}
	return out
}

func setDuration(dst *time.Duration, d Duration) {
	if d > 0 {
		*dst = time.Duration(d)
	}
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, err
	}
	return level, nil
}

// NewLogger builds the slog logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := c.LogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Exists returns true if a chatd.json exists in dir.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// Find walks up from startDir looking for chatd.json and returns its path.
func Find(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", errors.New("E101").Wrap(err)
	}

	for {
		if Exists(dir) {
			return filepath.Join(dir, ConfigFileName), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E100").
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory").
				WithSuggestion("Pass --config with the path of the config file")
		}
		dir = parent
	}
}
