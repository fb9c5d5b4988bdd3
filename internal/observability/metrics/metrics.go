package metrics

import "github.com/prometheus/client_golang/prometheus"

// DispatchMetrics exposes counters/histograms for conversation runs. It
// satisfies dispatch.Observer.
type DispatchMetrics struct {
	sendsTotal    *prometheus.CounterVec
	rateLimitWait prometheus.Histogram
	turnDelay     *prometheus.HistogramVec
	runsTotal     *prometheus.CounterVec
}

func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	m := &DispatchMetrics{
		sendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatrelay",
			Subsystem: "dispatch",
			Name:      "sends_total",
			Help:      "Send attempts by sender and result",
		}, []string{"sender", "status"}),
		rateLimitWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chatrelay",
			Subsystem: "dispatch",
			Name:      "rate_limit_wait_seconds",
			Help:      "Waits imposed by rate-limited responses",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		turnDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatrelay",
			Subsystem: "dispatch",
			Name:      "turn_delay_seconds",
			Help:      "Inter-turn delays by phase",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"phase"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatrelay",
			Subsystem: "dispatch",
			Name:      "runs_total",
			Help:      "Finished conversation runs by status",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sendsTotal, m.rateLimitWait, m.turnDelay, m.runsTotal)
	return m
}

func (m *DispatchMetrics) ObserveSend(sender, status string) {
	if m == nil {
		return
	}
	m.sendsTotal.WithLabelValues(sender, status).Inc()
}

func (m *DispatchMetrics) ObserveRateLimitWait(seconds float64) {
	if m == nil {
		return
	}
	m.rateLimitWait.Observe(seconds)
}

func (m *DispatchMetrics) ObserveDelay(phase string, seconds float64) {
	if m == nil {
		return
	}
	m.turnDelay.WithLabelValues(phase).Observe(seconds)
}

func (m *DispatchMetrics) ObserveRun(status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
}
