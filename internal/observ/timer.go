package observ

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"lanetrace/internal/trace"
)

// Phase aggregates the disposed scopes sharing one name.
type Phase struct {
	Name  string
	Count int
	Total time.Duration
	Max   time.Duration
}

// Timer tracks how long scopes take, grouped by scope name.
type Timer struct {
	mu     sync.Mutex
	phases map[string]*Phase
	order  []string
}

// NewTimer creates a new empty Timer.
func NewTimer() *Timer { return &Timer{phases: make(map[string]*Phase, 8)} }

// Observe records one completed scope.
func (t *Timer) Observe(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.phases[name]
	if p == nil {
		p = &Phase{Name: name}
		t.phases[name] = p
		t.order = append(t.order, name)
	}
	p.Count++
	p.Total += d
	p.Max = max(p.Max, d)
}

// Hooks returns trace hooks feeding t. clock must be the stack's time source.
func (t *Timer) Hooks(clock func() time.Time) trace.Hooks {
	if clock == nil {
		clock = time.Now
	}
	return trace.Hooks{
		OnDispose: func(s *trace.Scope) {
			t.Observe(s.Name(), clock().Sub(s.StartTime()))
		},
	}
}

// Summary returns a human-readable string summarizing all tracked phases.
func (t *Timer) Summary() string {
	report := t.Report()
	var sb strings.Builder
	sb.WriteString("timings:\n")
	for _, p := range report.Phases {
		fmt.Fprintf(&sb, "  %-20s %4dx %9.2f ms  (max %.2f ms)\n", p.Name, p.Count, p.TotalMS, p.MaxMS)
	}
	fmt.Fprintf(&sb, "  %-20s %4dx %9.2f ms\n", "total", report.Count, report.TotalMS)
	return sb.String()
}

// PhaseReport is the serializable form of a Phase.
type PhaseReport struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	TotalMS float64 `json:"total_ms"`
	MaxMS   float64 `json:"max_ms"`
}

// Report holds aggregated timer data.
type Report struct {
	Count   int           `json:"count"`
	TotalMS float64       `json:"total_ms"`
	Phases  []PhaseReport `json:"phases"`
}

// Report lists phases by descending total time, ties in first-seen order.
func (t *Timer) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.order) == 0 {
		return Report{}
	}
	report := Report{Phases: make([]PhaseReport, 0, len(t.order))}
	var total time.Duration
	for _, name := range t.order {
		p := t.phases[name]
		total += p.Total
		report.Count += p.Count
		report.Phases = append(report.Phases, PhaseReport{
			Name:    p.Name,
			Count:   p.Count,
			TotalMS: durationToMillis(p.Total),
			MaxMS:   durationToMillis(p.Max),
		})
	}
	slices.SortStableFunc(report.Phases, func(a, b PhaseReport) int {
		switch {
		case a.TotalMS > b.TotalMS:
			return -1
		case a.TotalMS < b.TotalMS:
			return 1
		}
		return 0
	})
	report.TotalMS = durationToMillis(total)
	return report
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
