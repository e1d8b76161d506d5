package protocol

import (
	"strings"
	"testing"
)

func TestFormatCommand(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"empty", nil, "<empty>"},
		{"keepalive", Keepalive{}.Encode().Bytes(), "KEEPALIVE"},
		{"unknown", []byte{0x42}, "UNKNOWN(0x42)"},
		{"truncated", []byte{byte(OpSeen), 0x01}, "SEEN <truncated>"},
		{"histdone", HistDone{ChatID: 1}.Encode().Bytes(), "HISTDONE chat=" + ID(1).String()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatCommand(tt.data); got != tt.want {
				t.Errorf("FormatCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandString(t *testing.T) {
	cmd := Msg{Op: OpNewMsg, ID: 1, UserID: 2, ChatID: 3, Timestamp: 4, Data: []byte("hey")}.Encode()
	s := cmd.String()
	if !strings.HasPrefix(s, "NEWMSG ") || !strings.Contains(s, "len=3") {
		t.Errorf("String() = %q", s)
	}

	rej := Reject{Op: OpNewMsg, Code: 7, ID: 9}.Encode().String()
	if !strings.Contains(rej, "msgxid="+ID(9).String()) {
		t.Errorf("REJECT String() = %q, want msgxid", rej)
	}
}

func TestFormatFrame(t *testing.T) {
	frame := append(Keepalive{}.Encode().Bytes(), 0xEE)
	got := FormatFrame(frame)
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("FormatFrame() = %q, want 2 lines", got)
	}
	if lines[0] != "KEEPALIVE" || !strings.HasPrefix(lines[1], "error: ") {
		t.Errorf("FormatFrame() = %q", got)
	}
}
