package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vango-dev/chatd/internal/errors"
	"github.com/vango-dev/chatd/pkg/chatd"
	"github.com/vango-dev/chatd/pkg/protocol"
)

// sendResult is the server's verdict on a submitted message.
type sendResult struct {
	id       protocol.ID
	rejected bool
}

// sendWatcher waits for the verdict on one message. It runs on the loop.
type sendWatcher struct {
	chatd.NopListener

	chatID protocol.ID
	idx    int
	result chan sendResult
}

func (s *sendWatcher) OnMessageConfirmed(chatID protocol.ID, idx int, txID protocol.ID, msg chatd.Message) {
	if chatID == s.chatID && idx == s.idx {
		s.result <- sendResult{id: msg.ID}
	}
}

func (s *sendWatcher) OnMessageRejected(chatID protocol.ID, idx int, msg chatd.Message) {
	if chatID == s.chatID && idx == s.idx {
		s.result <- sendResult{rejected: true}
	}
}

func sendCmd() *cobra.Command {
	var (
		configPath string
		chat       string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send --chat ID MESSAGE...",
		Short: "Send a message and wait for the server to confirm it",
		Long: `Join the configured chats, send one message to --chat and print the
permanent id the server assigns to it.

Examples:
  chatdctl send --chat AAAAAAAAAAo hello there`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			chatID, err := parseAnyID(chat)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			logger := cfg.NewLogger(cmd.ErrOrStderr())
			w := &sendWatcher{chatID: chatID, idx: chatd.NoIndex, result: make(chan sendResult, 1)}
			s, err := newSession(cfg, logger, w)
			if err != nil {
				return err
			}
			id, err := runSend(ctx, s, w, []byte(strings.Join(args, " ")))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&chat, "chat", "", "Chat to send to")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Give up after this long")
	cmd.MarkFlagRequired("chat")
	return cmd
}

// runSend submits data and waits for the server's verdict.
func runSend(ctx context.Context, s *session, w *sendWatcher, data []byte) (protocol.ID, error) {
	var id protocol.ID
	err := s.run(ctx, func(ctx context.Context) error {
		var submitErr error
		if err := s.client.Loop().Call(ctx, func() {
			w.idx, submitErr = s.client.MsgSubmit(w.chatID, data)
		}); err != nil {
			return err
		}
		if submitErr != nil {
			return errors.New("E140").Wrap(submitErr)
		}

		select {
		case res := <-w.result:
			if res.rejected {
				return errors.New("E130").WithDetail("The server rejected the message")
			}
			id = res.id
			return nil
		case <-ctx.Done():
			return errors.New("E130").
				WithDetail("No confirmation before the timeout").
				Wrap(ctx.Err())
		}
	})
	return id, err
}
