package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/vango-dev/chatd/internal/config"
	"github.com/vango-dev/chatd/internal/errors"
	"github.com/vango-dev/chatd/pkg/chatd"
)

// closeTimeout bounds the orderly shutdown of a session.
const closeTimeout = 5 * time.Second

// session is a configured client together with its metrics registry.
type session struct {
	cfg      *config.Config
	client   *chatd.Client
	registry *prometheus.Registry
	logger   *slog.Logger
}

// loadConfig loads the file named by --config, or searches for
// chatd.json from the working directory up.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.New("E101").Wrap(err)
	}
	found, err := config.Find(wd)
	if err != nil {
		return nil, err
	}
	return config.LoadFile(found)
}

func newSession(cfg *config.Config, logger *slog.Logger, listener chatd.Listener, opts ...chatd.Option) (*session, error) {
	user, err := cfg.UserID()
	if err != nil {
		return nil, errors.New("E104").Wrap(err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	base := []chatd.Option{
		chatd.WithConfig(cfg.ClientConfig()),
		chatd.WithLogger(logger),
		chatd.WithRegistry(reg),
		chatd.WithListener(listener),
	}
	return &session{
		cfg:      cfg,
		client:   chatd.NewClient(user, append(base, opts...)...),
		registry: reg,
		logger:   logger,
	}, nil
}

// join registers every configured chat. It runs on the loop.
func (s *session) join() error {
	for _, ch := range s.cfg.Chats {
		id, err := parseAnyID(ch.ID)
		if err != nil {
			return err
		}
		url, _ := s.cfg.ShardURL(ch.Shard)
		if err := s.client.Join(id, ch.Shard, url); err != nil {
			return errors.New("E106").Wrap(err)
		}
	}
	return nil
}

// run starts the client loop, joins and connects every chat, then runs
// body. The client is closed when body returns.
func (s *session) run(ctx context.Context, body func(ctx context.Context) error) error {
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() { loopDone <- s.client.Run(loopCtx) }()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	var setupErr error
	err := s.client.Loop().Call(ctx, func() {
		if setupErr = s.join(); setupErr != nil {
			return
		}
		_, setupErr = s.client.Connect()
	})
	if err == nil {
		err = setupErr
	}
	if err == nil {
		err = body(ctx)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if cerr := s.client.Close(closeCtx); cerr != nil {
		s.logger.Warn("close failed", "error", cerr)
	}
	return err
}

// addConfigFlag registers the --config flag shared by the client commands.
func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", "", "Config file (default: nearest "+config.ConfigFileName+")")
}
