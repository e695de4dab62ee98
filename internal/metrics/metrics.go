package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Messages persisted, by kind (direct or group)",
	}, []string{"kind"})

	MessagesSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_swept_total",
		Help: "Self-destructing messages soft-deleted by the sweep",
	})

	SweepErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_sweep_errors_total",
		Help: "Per-message failures during expiry sweeps",
	})

	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_active_connections",
		Help: "Active websocket connections",
	})
)

func Init() {
	prometheus.MustRegister(MessagesSent, MessagesSwept, SweepErrors, Connections)
}
