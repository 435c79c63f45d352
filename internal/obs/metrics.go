// Copyright 2025 James Ross
package obs

import (
    "fmt"
    "net/http"

    "github.com/jamesross/carefleet-sim/internal/config"
    "github.com/prometheus/client_golang/prometheus"
    promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    TicksProcessed = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "sim_ticks_processed_total",
        Help: "Total number of one-minute ticks processed",
    })
    VisitsScheduled = prometheus.NewCounterVec(prometheus.CounterOpts{
        Name: "sim_visits_scheduled_total",
        Help: "Total number of visits scheduled, by manager level",
    }, []string{"manager_level"})
    VisitsUnscheduled = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "sim_visits_unscheduled_total",
        Help: "Total number of visits that reached end of day without being scheduled",
    })
    VisitsOverrunUnabsorbable = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "sim_visits_overrun_unabsorbable_total",
        Help: "Total number of visit overruns that could not be absorbed by the day's slack",
    })
    CriticityScore = prometheus.NewHistogram(prometheus.HistogramOpts{
        Name:    "sim_criticity_score",
        Help:    "Histogram of criticality scores computed by the manager",
        Buckets: prometheus.DefBuckets,
    })
    BrokenRuns = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "sim_broken_runs_total",
        Help: "Total number of simulation runs that hit the broken-time guard",
    })
    OperatorsActive = prometheus.NewGauge(prometheus.GaugeOpts{
        Name: "sim_operators_active",
        Help: "Number of operators not in the unavailable state",
    })
)

func init() {
    prometheus.MustRegister(TicksProcessed, VisitsScheduled, VisitsUnscheduled, VisitsOverrunUnabsorbable, CriticityScore, BrokenRuns, OperatorsActive)
}

// StartMetricsServer exposes /metrics and returns a server for controlled shutdown.
func StartMetricsServer(cfg *config.Config) *http.Server {
    mux := http.NewServeMux()
    mux.Handle("/metrics", promhttp.Handler())
    srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: mux}
    go func() { _ = srv.ListenAndServe() }()
    return srv
}
