package main

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vango-dev/chatd/internal/archive"
	"github.com/vango-dev/chatd/internal/errors"
	"github.com/vango-dev/chatd/pkg/chatd"
	"github.com/vango-dev/chatd/pkg/protocol"
)

// historyWatcher signals the end of every history batch for one chat.
// It runs on the loop.
type historyWatcher struct {
	chatd.NopListener

	chatID protocol.ID
	done   chan struct{}
}

func (h *historyWatcher) OnHistoryDone(chatID protocol.ID) {
	if chatID != h.chatID {
		return
	}
	select {
	case h.done <- struct{}{}:
	default:
	}
}

func exportCmd() *cobra.Command {
	var (
		configPath string
		chat       string
		count      int
		out        string
		maxSize    int64
		s3cfg      archive.S3Config
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "export --chat ID --out TARGET",
		Short: "Fetch a chat's history and write it as JSON Lines",
		Long: `Join the configured chats, page back through the history of --chat
until --count messages are buffered or the server has no more, and
write them oldest first to --out.

TARGET is a local path or an s3://bucket/key URL. S3 credentials are
read from AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.

Examples:
  chatdctl export --chat AAAAAAAAAAo --out history.jsonl
  chatdctl export --chat AAAAAAAAAAo --count 1000 --out s3://backups/chat.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			chatID, err := parseAnyID(chat)
			if err != nil {
				return err
			}
			if count <= 0 {
				return errors.Newf(errors.CategoryCLI, "--count must be positive, got %d", count)
			}
			store, name, err := archive.Open(out, s3cfg, maxSize)
			if err != nil {
				return errors.New("E140").WithDetail("Cannot write to " + out).Wrap(err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			logger := cfg.NewLogger(cmd.ErrOrStderr())
			w := &historyWatcher{chatID: chatID, done: make(chan struct{}, 1)}
			s, err := newSession(cfg, logger, w)
			if err != nil {
				return err
			}
			records, err := runExport(ctx, s, w, count)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			if err := archive.Encode(&buf, records); err != nil {
				return errors.New("E101").Wrap(err)
			}
			loc, err := store.Put(ctx, name, &buf)
			if err != nil {
				return errors.New("E101").WithDetail("Cannot write to " + out).Wrap(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d messages to %s\n", len(records), loc)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&chat, "chat", "", "Chat to export")
	cmd.Flags().IntVar(&count, "count", 100, "Number of messages to fetch")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Local path or s3://bucket/key")
	cmd.Flags().Int64Var(&maxSize, "max-size", 0, "Refuse exports larger than this many bytes (0: no limit)")
	cmd.Flags().StringVar(&s3cfg.Region, "s3-region", "", "S3 region (default us-east-1)")
	cmd.Flags().StringVar(&s3cfg.Endpoint, "s3-endpoint", "", "S3-compatible endpoint URL")
	cmd.Flags().BoolVar(&s3cfg.PathStyle, "s3-path-style", false, "Use path-style S3 addressing")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "Give up after this long")
	cmd.MarkFlagRequired("chat")
	cmd.MarkFlagRequired("out")
	return cmd
}

// runExport waits for the join-time history batch, then keeps asking for
// older messages until count are buffered or a batch adds nothing.
func runExport(ctx context.Context, s *session, w *historyWatcher, count int) ([]archive.Record, error) {
	var records []archive.Record
	err := s.run(ctx, func(ctx context.Context) error {
		var joined bool
		if err := s.client.Loop().Call(ctx, func() {
			_, joined = s.client.Messages(w.chatID)
		}); err != nil {
			return err
		}
		if !joined {
			return errors.New("E140").WithDetail("Chat " + w.chatID.String() + " is not configured")
		}
		if err := waitHistory(ctx, w); err != nil {
			return err
		}

		prev := -1
		for {
			if err := s.client.Loop().Call(ctx, func() {
				m, _ := s.client.Messages(w.chatID)
				have := m.Len()
				if have >= count || have == prev {
					records = archive.Snapshot(m)
					return
				}
				prev = have
				m.GetHistory(count - have)
			}); err != nil {
				return err
			}
			if records != nil {
				return nil
			}
			if err := waitHistory(ctx, w); err != nil {
				return err
			}
		}
	})
	return records, err
}

func waitHistory(ctx context.Context, w *historyWatcher) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return errors.New("E130").
			WithDetail("History did not arrive before the timeout").
			Wrap(ctx.Err())
	}
}
