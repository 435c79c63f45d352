// Copyright 2025 James Ross

// Command status-api runs a simulation in a background goroutine and
// exposes a read-only HTTP surface over it: /stats (current
// stats.Snapshot as JSON) and /metrics (Prometheus). It is deliberately
// not a control surface — it cannot drive ticks or submit events — the
// same observability-only role the teacher's admin API plays over a
// running worker fleet.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gorilla/mux"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jamesross/carefleet-sim/internal/config"
	"github.com/jamesross/carefleet-sim/internal/model"
	"github.com/jamesross/carefleet-sim/internal/obs"
	"github.com/jamesross/carefleet-sim/internal/scenario"
	"github.com/jamesross/carefleet-sim/internal/simrand"
	"github.com/jamesross/carefleet-sim/internal/stats"
	"go.uber.org/zap"
)

var version = "dev"

// server holds the live model behind a mutex so HTTP handlers can read a
// consistent snapshot while the background tick loop mutates it.
type server struct {
	mu    sync.RWMutex
	model *model.Model
	costs stats.Costs
}

func (s *server) snapshot() stats.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stats.Compute(s.model, s.costs, []int{15, 30, 60})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func main() {
	var configPath string
	var port int
	var seed int64
	var numOperators int
	var numPatients int
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.IntVar(&port, "port", 8090, "HTTP port for /stats and /metrics")
	fs.Int64Var(&seed, "seed", 1, "RNG seed")
	fs.IntVar(&numOperators, "operators", 8, "Number of operators in the synthetic scenario")
	fs.IntVar(&numPatients, "patients", 40, "Number of patients in the synthetic scenario")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	rng := simrand.New(seed)
	m, err := scenario.Build(cfg, rng, logger, scenario.Options{NumOperators: numOperators, NumPatients: numPatients})
	if err != nil {
		logger.Fatal("failed to build scenario", obs.Err(err))
	}

	srv := &server{model: m, costs: stats.Costs{
		Movement:  cfg.Hyperparams.CMovement,
		Overskill: cfg.Hyperparams.COverskill,
		Execution: cfg.Hyperparams.CExecution,
		Sigma0:    cfg.Hyperparams.Sigma0,
		Sigma1:    cfg.Hyperparams.Sigma1,
		Omega:     cfg.Hyperparams.Omega,
	}}

	router := mux.NewRouter()
	router.HandleFunc("/stats", srv.handleStats).Methods("GET")
	router.HandleFunc("/healthz", srv.handleHealthz).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: router}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status-api server failed", obs.Err(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("signal received, stopping status-api")
		cancel()
	}()

	logger.Info("status-api serving", zap.Int("port", port))
	for m.Running {
		select {
		case <-ctx.Done():
			srv.mu.Lock()
			m.Running = false
			srv.mu.Unlock()
		default:
			srv.mu.Lock()
			m.Step()
			srv.mu.Unlock()
		}
	}

	_ = httpSrv.Shutdown(context.Background())
}
