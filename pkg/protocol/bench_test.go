package protocol

import (
	"bytes"
	"testing"
)

func benchFrame() []byte {
	body := bytes.Repeat([]byte("x"), 200)
	var frame []byte
	for i := 0; i < 32; i++ {
		frame = append(frame, Msg{Op: OpOldMsg, ID: ID(i + 1), UserID: 7, ChatID: 9, Timestamp: 1, Data: body}.Encode().Bytes()...)
	}
	return append(frame, HistDone{ChatID: 9}.Encode().Bytes()...)
}

func BenchmarkEncodeNewMsg(b *testing.B) {
	m := Msg{Op: OpNewMsg, ID: 1, UserID: 2, ChatID: 3, Timestamp: 4, Data: bytes.Repeat([]byte("x"), 200)}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = m.Encode()
	}
}

func BenchmarkDecodeAll_HistoryBatch(b *testing.B) {
	frame := benchFrame()
	b.SetBytes(int64(len(frame)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := DecodeAll(frame); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFormatFrame(b *testing.B) {
	frame := benchFrame()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = FormatFrame(frame)
	}
}
