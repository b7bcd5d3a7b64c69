package nlae

import "github.com/prometheus/client_golang/prometheus"

// metrics are unregistered counters by default, wired into a registry
// by the process entrypoint via Register (sob, by contrast, registers
// its metrics at construction).
type metrics struct {
	locksHeld     prometheus.Gauge
	attrOps       prometheus.Counter
	commitRejects *prometheus.CounterVec
}

func newMetrics() *metrics {
	return &metrics{
		locksHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nlae_locks_held",
			Help: "Entity locks currently held across all trackers.",
		}),
		attrOps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nlae_attr_ops_total",
			Help: "Attribute get/set/remove operations processed.",
		}),
		commitRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nlae_commit_rejects_total",
			Help: "Commit protocol rejections by reason.",
		}, []string{"reason"}),
	}
}

// Register attaches this engine's metrics to reg; safe to call once at
// process bootstrap.
func (eng *Engine) Register(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	reg.MustRegister(eng.metrics.locksHeld, eng.metrics.attrOps, eng.metrics.commitRejects)
}
