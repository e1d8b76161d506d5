package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vango-dev/chatd/internal/config"
	"github.com/vango-dev/chatd/internal/errors"
)

func initCmd() *cobra.Command {
	var (
		path        string
		user        string
		shards      []string
		chats       []string
		metricsAddr string
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a chatd.json config file",
		Long: `Write a config file naming the user, the shard servers and the chats
to follow.

Shards are given as NUMBER=URL and chats as ID@SHARD.

Examples:
  chatdctl init --user AAAAAAAAAAE --shard 0=wss://shard0.example.com/chatd --chat AAAAAAAAAAo@0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if _, err := os.Stat(path); err == nil {
					return errors.New("E140").
						WithDetail(path + " already exists").
						WithSuggestion("Pass --force to overwrite it")
				}
			}

			cfg := config.New()
			cfg.User = user
			cfg.Metrics.Addr = metricsAddr
			for _, s := range shards {
				sc, err := parseShardFlag(s)
				if err != nil {
					return err
				}
				cfg.Shards = append(cfg.Shards, sc)
			}
			for _, c := range chats {
				cc, err := parseChatFlag(c)
				if err != nil {
					return err
				}
				cfg.Chats = append(cfg.Chats, cc)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.SaveTo(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d shards, %d chats)\n", path, len(cfg.Shards), len(cfg.Chats))
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "config", "c", config.ConfigFileName, "Path of the config file to write")
	cmd.Flags().StringVar(&user, "user", "", "User id")
	cmd.Flags().StringArrayVar(&shards, "shard", nil, "Shard as NUMBER=URL (repeatable)")
	cmd.Flags().StringArrayVar(&chats, "chat", nil, "Chat as ID@SHARD (repeatable)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Listen address of the status endpoint")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func parseShardFlag(s string) (config.ShardConfig, error) {
	num, url, ok := strings.Cut(s, "=")
	n, err := strconv.Atoi(num)
	if !ok || err != nil {
		return config.ShardConfig{}, errors.New("E140").
			WithDetail(fmt.Sprintf("--shard %q is not NUMBER=URL", s))
	}
	return config.ShardConfig{Shard: n, URL: url}, nil
}

func parseChatFlag(s string) (config.ChatConfig, error) {
	id, num, ok := strings.Cut(s, "@")
	n, err := strconv.Atoi(num)
	if !ok || err != nil {
		return config.ChatConfig{}, errors.New("E140").
			WithDetail(fmt.Sprintf("--chat %q is not ID@SHARD", s))
	}
	return config.ChatConfig{ID: id, Shard: n}, nil
}
