package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vango-dev/chatd/internal/config"
	cerrors "github.com/vango-dev/chatd/internal/errors"
	"golang.org/x/sync/errgroup"
)

func tailCmd() *cobra.Command {
	var (
		configPath  string
		metricsAddr string
		history     bool
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the configured chats",
		Long: `Connect to every configured shard, join the chats and print
messages as they arrive. Connections are retried with backoff until
the command is interrupted.

With --metrics-addr (or metrics.addr in the config) a status endpoint
is served:
  /status                 shard connections and their chats
  /status/chats/{chatID}  buffer of one chat
  /metrics                Prometheus metrics
  /healthz                liveness

Examples:
  chatdctl tail
  chatdctl tail --history --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.Metrics.Addr = metricsAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := cfg.NewLogger(cmd.ErrOrStderr())
			return runTail(ctx, cfg, logger, cmd.OutOrStdout(), history, nil)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve status and metrics on this address")
	cmd.Flags().BoolVar(&history, "history", false, "Print history messages as they load")
	return cmd
}

// runTail follows the configured chats until ctx is cancelled. When
// ready is non-nil the status listener address is sent on it once
// serving.
func runTail(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer, history bool, ready chan<- net.Addr) error {
	s, err := newSession(cfg, logger, &printer{w: out, history: history})
	if err != nil {
		return err
	}

	return s.run(ctx, func(ctx context.Context) error {
		if cfg.Metrics.Addr == "" {
			<-ctx.Done()
			return nil
		}

		ln, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return cerrors.New("E131").Wrap(err)
		}
		srv := &http.Server{
			Handler:           newStatusRouter(s.client, s.registry, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		logger.Info("status endpoint listening", "addr", ln.Addr().String())
		if ready != nil {
			ready <- ln.Addr()
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return cerrors.New("E131").Wrap(err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	})
}
