package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/vango-dev/chatd/internal/errors"
	"github.com/vango-dev/chatd/pkg/protocol"
	"github.com/vango-dev/chatd/pkg/wsurl"
)

func urlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url URL",
		Short: "Show how a shard URL is parsed",
		Long: `Parse a shard URL the way the client does and print its parts.

Examples:
  chatdctl url shard1.example.com/chatd
  chatdctl url "wss://[::1]:8443/chatd"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := wsurl.Parse(args[0])
			if err != nil {
				return errors.New("E140").
					WithDetail(fmt.Sprintf("%q is not a shard URL", args[0])).
					Wrap(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "protocol: %s\n", u.Protocol)
			fmt.Fprintf(out, "host:     %s\n", u.Host)
			fmt.Fprintf(out, "port:     %d\n", u.Port)
			fmt.Fprintf(out, "path:     %s\n", u.Path)
			fmt.Fprintf(out, "secure:   %t\n", u.Secure)
			fmt.Fprintf(out, "endpoint: %s\n", u.Endpoint())
			return nil
		},
	}
}

func idCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "id ID...",
		Short: "Convert ids between base64url and decimal",
		Long: `Print each id in both forms. An argument that parses as a decimal
number is taken as a numeric id; anything else must be base64url.

Examples:
  chatdctl id AAAAAAAAAAo
  chatdctl id 10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				id, err := parseAnyID(arg)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", id, uint64(id))
			}
			return nil
		},
	}
}

func parseAnyID(s string) (protocol.ID, error) {
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return protocol.ID(n), nil
	}
	id, err := protocol.ParseID(s)
	if err != nil {
		return protocol.NullID, errors.New("E104").
			WithSuggestion(fmt.Sprintf("%q is neither a decimal nor a base64url id", s)).
			Wrap(err)
	}
	return id, nil
}
