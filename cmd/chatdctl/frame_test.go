package main

import (
	"encoding/base64"
	"encoding/hex"
	"reflect"
	"strings"
	"testing"

	"github.com/vango-dev/chatd/internal/errors"
	"github.com/vango-dev/chatd/pkg/protocol"
)

func TestParseFrame(t *testing.T) {
	raw := protocol.Seen{ChatID: testChat, UserID: testUser, ID: 5}.Encode().Bytes()
	hexed := hex.EncodeToString(raw)

	tests := []struct {
		name   string
		input  string
		format string
	}{
		{"hex", hexed, formatHex},
		{"hex with prefix and spaces", "0x" + hexed[:4] + " " + hexed[4:], formatHex},
		{"base64", base64.StdEncoding.EncodeToString(raw), formatBase64},
		{"raw url base64", base64.RawURLEncoding.EncodeToString(raw), formatBase64},
		{"auto hex", hexed, formatAuto},
		{"auto base64", base64.StdEncoding.EncodeToString(raw), formatAuto},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFrame(tt.input, tt.format)
			if err != nil {
				t.Fatalf("parseFrame() error = %v", err)
			}
			if !reflect.DeepEqual(got, raw) {
				t.Fatalf("parseFrame() = %x, want %x", got, raw)
			}
		})
	}
}

func TestParseFrame_Errors(t *testing.T) {
	if _, err := parseFrame("zz", formatHex); errors.Code(err) != "E121" {
		t.Errorf("bad hex = %v, want E121", err)
	}
	if _, err := parseFrame("!!!", formatAuto); errors.Code(err) != "E121" {
		t.Errorf("garbage = %v, want E121", err)
	}
	if _, err := parseFrame("00", "binary"); errors.Code(err) != "E140" {
		t.Errorf("unknown format = %v, want E140", err)
	}
}

func TestDecodeCmd(t *testing.T) {
	frame := append(
		protocol.Msg{Op: protocol.OpNewMsg, ID: 7, UserID: peerUser, ChatID: testChat, Data: []byte("hi")}.Encode().Bytes(),
		protocol.HistDone{ChatID: testChat}.Encode().Bytes()...,
	)

	out, err := execute(t, "", "decode", hex.EncodeToString(frame))
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "NEWMSG chat="+testChat.String()) || !strings.HasPrefix(lines[1], "HISTDONE") {
		t.Fatalf("decode output = %q", out)
	}
}

func TestDecodeCmd_Stdin(t *testing.T) {
	a := hex.EncodeToString(protocol.Keepalive{}.Encode().Bytes())
	b := hex.EncodeToString(protocol.Received{ChatID: testChat, ID: 3}.Encode().Bytes())

	out, err := execute(t, a+"\n\n"+b+"\n", "decode")
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}
	for _, want := range []string{"# frame 1", "KEEPALIVE", "# frame 2", "RECEIVED chat="} {
		if !strings.Contains(out, want) {
			t.Errorf("decode output missing %q:\n%s", want, out)
		}
	}
}

func TestDecodeCmd_DamagedFrame(t *testing.T) {
	frame := append(protocol.Keepalive{}.Encode().Bytes(), byte(protocol.OpSeen), 0, 0)

	out, err := execute(t, "", "decode", hex.EncodeToString(frame))
	if errors.Code(err) != "E120" {
		t.Fatalf("decode error = %v, want E120", err)
	}
	if !strings.Contains(out, "KEEPALIVE") || !strings.Contains(out, "error:") {
		t.Errorf("decode output = %q, want the good prefix and the error", out)
	}
}

func TestParseOpcode(t *testing.T) {
	for op := protocol.OpKeepalive; op <= protocol.OpHistDone; op++ {
		if op == 12 {
			continue
		}
		got, ok := parseOpcode(strings.ToLower(op.String()))
		if !ok || got != op {
			t.Errorf("parseOpcode(%s) = %v, %v", op, got, ok)
		}
	}
	if _, ok := parseOpcode("bogus"); ok {
		t.Error("parseOpcode(bogus) should fail")
	}
}

func TestBuildPayload(t *testing.T) {
	f := encodeFlags{
		chat:     testChat.String(),
		user:     testUser.String(),
		id:       protocol.ID(9).String(),
		tx:       protocol.ID(4).String(),
		oldest:   protocol.ID(2).String(),
		newest:   protocol.ID(8).String(),
		priv:     int(protocol.PrivNoChange),
		count:    -16,
		period:   60,
		ts:       1234,
		code:     7,
		data:     "body",
		rejectOp: "newmsg",
	}

	tests := []struct {
		name string
		want protocol.Payload
	}{
		{"keepalive", protocol.Keepalive{}},
		{"join", protocol.Join{ChatID: testChat, UserID: testUser, Priv: protocol.PrivNoChange}},
		{"newmsg", protocol.Msg{Op: protocol.OpNewMsg, ID: 9, UserID: testUser, ChatID: testChat, Timestamp: 1234, Data: []byte("body")}},
		{"oldmsg", protocol.Msg{Op: protocol.OpOldMsg, ID: 9, UserID: testUser, ChatID: testChat, Timestamp: 1234, Data: []byte("body")}},
		{"msgupd", protocol.MsgUpd{ChatID: testChat, ID: 9, Data: []byte("body")}},
		{"seen", protocol.Seen{ChatID: testChat, UserID: testUser, ID: 9}},
		{"received", protocol.Received{ChatID: testChat, ID: 9}},
		{"retention", protocol.Retention{ChatID: testChat, UserID: testUser, Period: 60}},
		{"hist", protocol.Hist{ChatID: testChat, Count: -16}},
		{"range", protocol.Range{ChatID: testChat, Oldest: 2, Newest: 8}},
		{"msgid", protocol.MsgID{TransactionID: 4, ID: 9}},
		{"reject", protocol.Reject{Op: protocol.OpNewMsg, Code: 7, ID: 4}},
		{"histdone", protocol.HistDone{ChatID: testChat}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := buildPayload(tt.name, f)
			if err != nil {
				t.Fatalf("buildPayload() error = %v", err)
			}
			decoded, err := protocol.DecodeAll(p.Encode().Bytes())
			if err != nil || len(decoded) != 1 {
				t.Fatalf("DecodeAll() = %v, %v", decoded, err)
			}
			if !reflect.DeepEqual(decoded[0], tt.want) {
				t.Errorf("decoded = %#v, want %#v", decoded[0], tt.want)
			}
		})
	}
}

func TestBuildPayload_Errors(t *testing.T) {
	if _, err := buildPayload("nope", encodeFlags{}); errors.Code(err) != "E140" {
		t.Errorf("unknown opcode = %v, want E140", err)
	}
	if _, err := buildPayload("seen", encodeFlags{chat: "bad"}); errors.Code(err) != "E104" {
		t.Errorf("bad id = %v, want E104", err)
	}
	if _, err := buildPayload("reject", encodeFlags{rejectOp: "x"}); errors.Code(err) != "E140" {
		t.Errorf("bad reject op = %v, want E140", err)
	}
}

func TestEncodeCmd_FeedsDecode(t *testing.T) {
	out, err := execute(t, "", "encode", "hist", "--chat", testChat.String(), "--count", "-32")
	if err != nil {
		t.Fatalf("encode error = %v", err)
	}
	decoded, err := execute(t, "", "decode", strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if want := "HIST chat=" + testChat.String() + " count=-32"; strings.TrimSpace(decoded) != want {
		t.Errorf("decode = %q, want %q", decoded, want)
	}

	out, err = execute(t, "", "encode", "keepalive", "--format", "base64")
	if err != nil || strings.TrimSpace(out) != "AA==" {
		t.Errorf("encode keepalive base64 = %q, %v", out, err)
	}
}
