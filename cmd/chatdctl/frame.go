package main

import (
	"bufio"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vango-dev/chatd/internal/errors"
	"github.com/vango-dev/chatd/pkg/protocol"
)

const (
	formatAuto   = "auto"
	formatHex    = "hex"
	formatBase64 = "base64"
)

func decodeCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "decode [FRAME...]",
		Short: "Decode captured protocol frames",
		Long: `Decode one or more binary frames and print every command they hold.

Frames are given as hex or base64. With no arguments, one frame per
line is read from standard input.

Examples:
  chatdctl decode 00
  chatdctl decode --format base64 CAAAAAAAAAAKAAAAAAAAAAE
  pbpaste | chatdctl decode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			frames := args
			if len(frames) == 0 {
				var err error
				if frames, err = readLines(cmd.InOrStdin()); err != nil {
					return errors.New("E140").Wrap(err)
				}
			}
			return runDecode(cmd.OutOrStdout(), frames, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatAuto, "Frame encoding: auto, hex or base64")
	return cmd
}

func runDecode(w io.Writer, frames []string, format string) error {
	var firstErr error
	for i, s := range frames {
		frame, err := parseFrame(s, format)
		if err != nil {
			return err
		}
		if len(frames) > 1 {
			fmt.Fprintf(w, "# frame %d (%d bytes)\n", i+1, len(frame))
		}
		fmt.Fprintln(w, protocol.FormatFrame(frame))
		if _, err := protocol.DecodeAll(frame); err != nil && firstErr == nil {
			firstErr = errors.New("E120").
				WithSuggestion(fmt.Sprintf("frame %d is damaged; the commands before the error were decoded", i+1)).
				Wrap(err)
		}
	}
	return firstErr
}

// parseFrame decodes a frame written as hex or base64.
func parseFrame(s, format string) ([]byte, error) {
	s = strings.TrimSpace(s)
	switch format {
	case formatHex:
		return parseHex(s)
	case formatBase64:
		return parseBase64(s)
	case formatAuto:
		if b, err := parseHex(s); err == nil {
			return b, nil
		}
		return parseBase64(s)
	default:
		return nil, errors.New("E140").
			WithDetail(fmt.Sprintf("Unknown frame format %q", format)).
			WithSuggestion("Use auto, hex or base64")
	}
}

func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.New("E121").Wrap(err)
	}
	return b, nil
}

func parseBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("E121").WithDetail(fmt.Sprintf("%q is neither hex nor base64", s))
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*protocol.DefaultMaxFrameSize)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

// encodeFlags holds the fields a command can be built from.
type encodeFlags struct {
	chat, user, id, tx string
	oldest, newest     string
	priv               int
	count              int
	period, ts, code   uint32
	data               string
	rejectOp           string
	format             string
}

func encodeCmd() *cobra.Command {
	var f encodeFlags

	cmd := &cobra.Command{
		Use:   "encode OPCODE",
		Short: "Build a protocol command",
		Long: `Build a single command and print its wire form.

Ids are given in their base64url form. The output can be fed to a
test shard or back into chatdctl decode.

Examples:
  chatdctl encode join --chat AAAAAAAAAAo --user AAAAAAAAAAE --priv -2
  chatdctl encode hist --chat AAAAAAAAAAo --count -32
  chatdctl encode newmsg --chat AAAAAAAAAAo --user AAAAAAAAAAE --id AAAAAAAAAAM --data hello`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPayload(args[0], f)
			if err != nil {
				return err
			}
			raw := p.Encode().Bytes()
			switch f.format {
			case formatBase64:
				fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(raw))
			default:
				fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(raw))
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.chat, "chat", "", "Chat id")
	fl.StringVar(&f.user, "user", "", "User id")
	fl.StringVar(&f.id, "id", "", "Message id")
	fl.StringVar(&f.tx, "tx", "", "Transaction id (msgid)")
	fl.StringVar(&f.oldest, "oldest", "", "Oldest id (range)")
	fl.StringVar(&f.newest, "newest", "", "Newest id (range)")
	fl.IntVar(&f.priv, "priv", int(protocol.PrivNoChange), "Privilege (join)")
	fl.IntVar(&f.count, "count", -32, "Message count (hist)")
	fl.Uint32Var(&f.period, "period", 0, "Retention period in seconds")
	fl.Uint32Var(&f.ts, "ts", 0, "Timestamp (newmsg, oldmsg)")
	fl.Uint32Var(&f.code, "code", 0, "Reject code")
	fl.StringVar(&f.data, "data", "", "Message body")
	fl.StringVar(&f.rejectOp, "reject-op", "NEWMSG", "Rejected opcode (reject)")
	fl.StringVarP(&f.format, "format", "f", formatHex, "Output encoding: hex or base64")
	return cmd
}

// parseOpcode resolves an opcode name case-insensitively.
func parseOpcode(name string) (protocol.Opcode, bool) {
	name = strings.ToUpper(name)
	for op := protocol.OpKeepalive; op <= protocol.OpHistDone; op++ {
		if op.String() == name {
			return op, true
		}
	}
	return protocol.OpInvalid, false
}

func buildPayload(name string, f encodeFlags) (protocol.Payload, error) {
	op, ok := parseOpcode(name)
	if !ok {
		return nil, errors.New("E140").WithDetail(fmt.Sprintf("Unknown opcode %q", name))
	}

	ids := map[string]protocol.ID{}
	for flag, s := range map[string]string{
		"chat": f.chat, "user": f.user, "id": f.id, "tx": f.tx,
		"oldest": f.oldest, "newest": f.newest,
	} {
		if s == "" {
			continue
		}
		id, err := protocol.ParseID(s)
		if err != nil {
			return nil, errors.New("E104").WithSuggestion(fmt.Sprintf("--%s %q is not a valid id", flag, s)).Wrap(err)
		}
		ids[flag] = id
	}

	switch op {
	case protocol.OpKeepalive:
		return protocol.Keepalive{}, nil
	case protocol.OpJoin:
		return protocol.Join{ChatID: ids["chat"], UserID: ids["user"], Priv: protocol.Priv(f.priv)}, nil
	case protocol.OpOldMsg, protocol.OpNewMsg:
		return protocol.Msg{Op: op, ID: ids["id"], UserID: ids["user"], ChatID: ids["chat"], Timestamp: f.ts, Data: []byte(f.data)}, nil
	case protocol.OpMsgUpd:
		return protocol.MsgUpd{ChatID: ids["chat"], ID: ids["id"], Data: []byte(f.data)}, nil
	case protocol.OpSeen:
		return protocol.Seen{ChatID: ids["chat"], UserID: ids["user"], ID: ids["id"]}, nil
	case protocol.OpReceived:
		return protocol.Received{ChatID: ids["chat"], ID: ids["id"]}, nil
	case protocol.OpRetention:
		return protocol.Retention{ChatID: ids["chat"], UserID: ids["user"], Period: f.period}, nil
	case protocol.OpHist:
		return protocol.Hist{ChatID: ids["chat"], Count: int32(f.count)}, nil
	case protocol.OpRange:
		return protocol.Range{ChatID: ids["chat"], Oldest: ids["oldest"], Newest: ids["newest"]}, nil
	case protocol.OpMsgID:
		return protocol.MsgID{TransactionID: ids["tx"], ID: ids["id"]}, nil
	case protocol.OpReject:
		rop, ok := parseOpcode(f.rejectOp)
		if !ok {
			return nil, errors.New("E140").WithDetail(fmt.Sprintf("Unknown opcode %q", f.rejectOp))
		}
		return protocol.Reject{Op: rop, Code: f.code, ID: ids["tx"]}, nil
	case protocol.OpHistDone:
		return protocol.HistDone{ChatID: ids["chat"]}, nil
	}
	return nil, errors.New("E140").WithDetail(fmt.Sprintf("Opcode %s cannot be encoded", op))
}
