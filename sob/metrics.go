package sob

import "github.com/prometheus/client_golang/prometheus"

// Counters follow the teacher's stats package convention (see
// stats/target_stats.go): one registry-backed gauge/counter set per
// subsystem, registered once at construction.
type metrics struct {
	subjectsTotal   prometheus.Gauge
	messagesDropped *prometheus.CounterVec
	txInflight      prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		subjectsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sob_subjects_total",
			Help: "Number of subjects currently tracked by the bus.",
		}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sob_messages_dropped_total",
			Help: "Broker messages dropped during parse/apply, by reason.",
		}, []string{"reason"}),
		txInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sob_tx_inflight",
			Help: "Open transactions across all subjects.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.subjectsTotal, m.messagesDropped, m.txInflight)
	}
	return m
}
