package observ

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"lanetrace/internal/trace"
)

// Metrics counts scope lifecycle transitions. It is safe to share between
// stacks running on different goroutines.
type Metrics struct {
	reg *prometheus.Registry

	opened     *prometheus.CounterVec
	disposed   *prometheus.CounterVec
	interrupts prometheus.Counter
	resumes    prometheus.Counter
	lanes      prometheus.Gauge
	duration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		opened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lanetrace_scopes_opened_total",
				Help: "Total number of opened scopes",
			},
			[]string{"domain"},
		),
		disposed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lanetrace_scopes_disposed_total",
				Help: "Total number of disposed scopes",
			},
			[]string{"domain"},
		),
		interrupts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lanetrace_interrupts_total",
			Help: "Total number of scope interrupts",
		}),
		resumes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lanetrace_resumes_total",
			Help: "Total number of scope resumes",
		}),
		lanes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lanetrace_live_lanes",
			Help: "Interruptable roots currently holding a lane",
		}),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lanetrace_scope_duration_seconds",
				Help:    "Duration of scopes from open to dispose",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"domain"},
		),
	}
	for _, c := range []prometheus.Collector{m.opened, m.disposed, m.interrupts, m.resumes, m.lanes, m.duration} {
		if err := m.reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// Registry exposes the registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Hooks returns trace hooks recording into m. Durations are measured with
// clock, which must be the time source of the stack the hooks go on.
func (m *Metrics) Hooks(clock func() time.Time) trace.Hooks {
	if clock == nil {
		clock = time.Now
	}
	return trace.Hooks{
		OnOpen: func(s *trace.Scope) {
			m.opened.WithLabelValues(s.Domain()).Inc()
			if s.IsInterruptable() {
				m.lanes.Inc()
			}
		},
		OnInterrupt: func(*trace.Scope) { m.interrupts.Inc() },
		OnResume:    func(*trace.Scope) { m.resumes.Inc() },
		OnDispose: func(s *trace.Scope) {
			m.disposed.WithLabelValues(s.Domain()).Inc()
			if s.IsInterruptable() {
				m.lanes.Dec()
			}
			m.duration.WithLabelValues(s.Domain()).Observe(clock().Sub(s.StartTime()).Seconds())
		},
	}
}

// WriteText writes every metric in the Prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	}
	return nil
}
