// Package telemetry wraps prometheus registration for the counters
// and gauges the schedulers and shard executor expose: admitted,
// refused, transformed, executed, and committed event volume, the
// conflict rate, and in-flight phase/message-bus depth.
package telemetry

import (
	"fmt"
	"time"

	"github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors a scheduler or shard executor run
// updates as it processes a graph.
type Metrics struct {
	Registry prometheus.Registerer

	Admitted    prometheus.Counter
	Refused     prometheus.Counter
	Transformed prometheus.Counter
	Executed    prometheus.Counter
	Committed   prometheus.Counter

	RefusalsByCode *prometheus.CounterVec
	PhaseSize      prometheus.Gauge
	BusDepth       prometheus.Gauge

	// PhaseDuration averages the wall-clock cost of each phase's
	// admission loop, built with metric.NewAverager the same way the
	// teacher's poll/prism sets track poll duration.
	PhaseDuration metric.Averager
}

// New builds and registers the standard collector set under reg. The
// namespace is the caller's choosing (distinct CLI runs or test cases
// should use distinct namespaces to avoid prometheus registration
// collisions).
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		Registry: reg,
		Admitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "admitted_total", Help: "tasks admitted",
		}),
		Refused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "refused_total", Help: "tasks refused",
		}),
		Transformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "transformed_total", Help: "tasks transformed by a law",
		}),
		Executed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "executed_total", Help: "tasks executed",
		}),
		Committed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "committed_total", Help: "tasks committed",
		}),
		RefusalsByCode: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "refusals_by_code_total", Help: "refusals broken down by refusal code",
		}, []string{"code"}),
		PhaseSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "phase_size", Help: "number of tasks in the phase currently being scheduled",
		}),
		BusDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "bus_depth", Help: "number of messages queued in the shard message bus",
		}),
	}

	collectors := []prometheus.Collector{
		m.Admitted, m.Refused, m.Transformed, m.Executed, m.Committed,
		m.RefusalsByCode, m.PhaseSize, m.BusDepth,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	duration, err := metric.NewAverager(namespace+"_phase_duration_seconds", "phase admission loop duration in seconds", reg)
	if err != nil {
		return nil, err
	}
	m.PhaseDuration = duration

	return m, nil
}

// ObservePhase records one phase's task count and admission-loop
// duration, wired from execctx.PhaseObserver.
func (m *Metrics) ObservePhase(taskCount int, d time.Duration) {
	m.PhaseSize.Set(float64(taskCount))
	m.PhaseDuration.Observe(d.Seconds())
}

// ObserveBusDepth records the shard message bus's current queue
// length, wired from the shard executor after each outbound forward.
func (m *Metrics) ObserveBusDepth(depth int) {
	m.BusDepth.Set(float64(depth))
}

// NoOp returns a Metrics whose collectors are registered in a fresh,
// private prometheus registry that nothing exports, for callers
// (mostly tests) that want the struct wired but don't care about
// prometheus export.
func NoOp() *Metrics {
	m, _ := New(prometheus.NewRegistry(), "")
	return m
}
