// Package metrics exposes allocation telemetry to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"IPOAllocator/internal/model"
	"IPOAllocator/internal/optimizer"
)

// Registry holds the allocator metrics. It implements allocator.Observer.
type Registry struct {
	SolverOutcomes     *prometheus.CounterVec
	AllocationDuration prometheus.Histogram
	Plans              *prometheus.CounterVec
	Leftover           prometheus.Gauge
	Utilization        prometheus.Gauge
	EligibleCandidates prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewRegistry creates the metrics and registers them with reg. A nil reg
// gets a fresh prometheus.Registry.
func NewRegistry(reg *prometheus.Registry) (*Registry, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Registry{
		SolverOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipo_allocator_solver_outcomes_total",
				Help: "Exact solver outcomes by status",
			},
			[]string{"status"},
		),
		AllocationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ipo_allocator_allocation_duration_seconds",
				Help:    "Wall time of one allocation run",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
		),
		Plans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipo_allocator_plans_total",
				Help: "Plans produced by solver path",
			},
			[]string{"solver", "degraded"},
		),
		Leftover: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ipo_allocator_leftover",
				Help: "Unallocated budget of the latest plan",
			},
		),
		Utilization: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ipo_allocator_utilization_percent",
				Help: "Invested share of the budget in the latest plan",
			},
		),
		EligibleCandidates: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ipo_allocator_eligible_candidates",
				Help: "Candidates that passed the filter in the latest plan",
			},
		),
		gatherer: reg,
	}

	for _, c := range []prometheus.Collector{
		r.SolverOutcomes, r.AllocationDuration, r.Plans,
		r.Leftover, r.Utilization, r.EligibleCandidates,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) ObserveOutcome(status optimizer.Status) {
	r.SolverOutcomes.WithLabelValues(status.String()).Inc()
}

func (r *Registry) ObservePlan(plan *model.AllocationPlan, elapsed time.Duration) {
	degraded := "false"
	if plan.Degraded {
		degraded = "true"
	}
	r.Plans.WithLabelValues(plan.Solver, degraded).Inc()
	r.AllocationDuration.Observe(elapsed.Seconds())
	r.Leftover.Set(plan.Leftover.InexactFloat64())
	r.Utilization.Set(plan.Utilization())
	r.EligibleCandidates.Set(float64(plan.EligibleCount))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
