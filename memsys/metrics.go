package memsys

import "github.com/prometheus/client_golang/prometheus"

// metrics follows the same unregistered-by-default shape as nlae (see
// its metrics.go): gauges/counters built at construction, attached to a
// registry explicitly via Register.
type metrics struct {
	buffersAllocated prometheus.Counter
	bytesAllocated   prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		buffersAllocated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memsys_buffers_allocated_total",
			Help: "Fresh buffer allocations across all slots and oversize requests.",
		}),
		bytesAllocated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memsys_bytes_allocated",
			Help: "Bytes currently accounted against the buffer pool ceiling.",
		}),
	}
}

// Register attaches m's metrics to reg; safe to call once at bootstrap.
func (m *BufferManager) Register(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	reg.MustRegister(m.metrics.buffersAllocated, m.metrics.bytesAllocated)
}
