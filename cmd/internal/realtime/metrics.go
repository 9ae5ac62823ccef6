package realtime

import "github.com/prometheus/client_golang/prometheus"

// Delivery outcomes of a persisted message.
const (
	DeliveryLive    = "live"
	DeliveryOffline = "offline"
	DeliveryDropped = "dropped"
)

// Metrics holds the messaging collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessions         prometheus.Gauge
	handshakes       *prometheus.CounterVec
	persisted        prometheus.Counter
	persistFailures  prometheus.Counter
	deliveries       *prometheus.CounterVec
	readReceipts     *prometheus.CounterVec
	markedRead       prometheus.Counter
	historySnapshots *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg gets a private registry, which keeps tests independent of the global one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "unifree",
			Name:      "presence_sessions",
			Help:      "Users currently reachable for live delivery.",
		}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unifree",
			Name:      "ws_handshakes_total",
			Help:      "Websocket handshakes by result and rejection reason.",
		}, []string{"result", "reason"}),
		persisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "unifree",
			Name:      "messages_persisted_total",
			Help:      "Messages durably stored.",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "unifree",
			Name:      "message_persist_failures_total",
			Help:      "Send events lost to a message store failure.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unifree",
			Name:      "message_deliveries_total",
			Help:      "Live delivery attempts by outcome.",
		}, []string{"outcome"}),
		readReceipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unifree",
			Name:      "read_receipts_total",
			Help:      "Mark-as-read events by result.",
		}, []string{"result"}),
		markedRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "unifree",
			Name:      "messages_marked_read_total",
			Help:      "Messages flipped to read by recipient.",
		}),
		historySnapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unifree",
			Name:      "history_snapshots_total",
			Help:      "Initial history pushes by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.sessions,
		m.handshakes,
		m.persisted,
		m.persistFailures,
		m.deliveries,
		m.readReceipts,
		m.markedRead,
		m.historySnapshots,
	)
	return m
}

func (m *Metrics) setSessions(n int) {
	if m != nil {
		m.sessions.Set(float64(n))
	}
}

func (m *Metrics) handshake(result, reason string) {
	if m != nil {
		m.handshakes.WithLabelValues(result, reason).Inc()
	}
}

func (m *Metrics) messagePersisted() {
	if m != nil {
		m.persisted.Inc()
	}
}

func (m *Metrics) persistFailed() {
	if m != nil {
		m.persistFailures.Inc()
	}
}

func (m *Metrics) delivery(outcome string) {
	if m != nil {
		m.deliveries.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) readReceipt(result string, changed int64) {
	if m == nil {
		return
	}
	m.readReceipts.WithLabelValues(result).Inc()
	if changed > 0 {
		m.markedRead.Add(float64(changed))
	}
}

func (m *Metrics) historySnapshot(result string) {
	if m != nil {
		m.historySnapshots.WithLabelValues(result).Inc()
	}
}
