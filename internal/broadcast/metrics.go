package broadcast

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 广播循环指标
type Metrics struct {
	ticks          prometheus.Counter
	tickDuration   prometheus.Histogram
	pushes         *prometheus.CounterVec
	sessionRemoved prometheus.Counter
	sessions       prometheus.Gauge
}

// NewMetrics 创建指标，reg 为 nil 时不注册
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pcc",
			Subsystem: "broadcast",
			Name:      "ticks_total",
			Help:      "Broadcast ticks executed.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pcc",
			Subsystem: "broadcast",
			Name:      "tick_duration_seconds",
			Help:      "Time spent materializing and pushing one tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pcc",
			Subsystem: "broadcast",
			Name:      "pushes_total",
			Help:      "Per-session pushes, by result.",
		}, []string{"result"}),
		sessionRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pcc",
			Subsystem: "broadcast",
			Name:      "sessions_removed_total",
			Help:      "Sessions dropped after failed pushes.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pcc",
			Subsystem: "broadcast",
			Name:      "sessions",
			Help:      "Live sessions at the last tick.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ticks, m.tickDuration, m.pushes, m.sessionRemoved, m.sessions)
	}
	return m
}
