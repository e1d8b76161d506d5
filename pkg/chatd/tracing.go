package chatd

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vango-dev/chatd"

// Span names.
const (
	spanReconnect = "chatd.reconnect"
	spanDial      = "chatd.dial"
)

func newTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName)
}

func shardAttrs(shardNo int, url string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("chatd.shard", shardNo),
		attribute.String("chatd.url", url),
	}
}
