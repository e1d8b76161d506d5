package chatd

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/chatd/pkg/protocol"
)

const metricsNamespace = "chatd"

// metrics holds the Prometheus metrics of one Client.
type metrics struct {
	commandsSent      *prometheus.CounterVec
	commandsReceived  *prometheus.CounterVec
	decodeErrors      prometheus.Counter
	reconnectAttempts *prometheus.CounterVec
	queueDepth        *prometheus.GaugeVec
	connectionState   *prometheus.GaugeVec
	pendingSends      prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		commandsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_sent_total",
			Help:      "Commands written to shard sockets, by opcode",
		}, []string{"opcode"}),

		commandsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_received_total",
			Help:      "Commands decoded from shard sockets, by opcode",
		}, []string{"opcode"}),

		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decode_errors_total",
			Help:      "Frames whose remainder was discarded after a decode error",
		}),

		reconnectAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconnect_attempts_total",
			Help:      "Transport connect attempts, by shard",
		}, []string{"shard"}),

		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "queue_depth",
			Help:      "Commands queued while the shard socket is not open",
		}, []string{"shard"}),

		connectionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connection_state",
			Help:      "Current connection state of each shard (see ConnState)",
		}, []string{"shard"}),

		pendingSends: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pending_sends",
			Help:      "Submitted messages awaiting confirmation",
		}),
	}
}

func shardLabel(shardNo int) string {
	return strconv.Itoa(shardNo)
}

func (m *metrics) sent(op protocol.Opcode) {
	m.commandsSent.WithLabelValues(op.String()).Inc()
}

func (m *metrics) received(op protocol.Opcode) {
	m.commandsReceived.WithLabelValues(op.String()).Inc()
}
