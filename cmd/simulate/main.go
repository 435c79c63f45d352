// Copyright 2025 James Ross

// Command simulate is a thin driver for manual smoke runs: it loads
// configuration, builds a small synthetic scenario, and runs the model
// to completion (or until a signal arrives), mirroring the shape of
// cmd/job-queue-system/main.go without adding scheduling logic of its
// own — every decision still lives in internal/manager.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/jamesross/carefleet-sim/internal/checkpoint"
	"github.com/jamesross/carefleet-sim/internal/config"
	"github.com/jamesross/carefleet-sim/internal/eventbus"
	"github.com/jamesross/carefleet-sim/internal/model"
	"github.com/jamesross/carefleet-sim/internal/obs"
	"github.com/jamesross/carefleet-sim/internal/redisclient"
	"github.com/jamesross/carefleet-sim/internal/scenario"
	"github.com/jamesross/carefleet-sim/internal/simrand"
	"github.com/jamesross/carefleet-sim/internal/stats"
	"github.com/jamesross/carefleet-sim/internal/visit"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	var configPath string
	var seed int64
	var numOperators int
	var numPatients int
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.Int64Var(&seed, "seed", 1, "RNG seed, for reproducible runs")
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

	tp, err := obs.MaybeInitTracing(cfg)
	if err != nil {
		logger.Warn("tracing init failed", obs.Err(err))
	}
	if tp != nil {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	runID := uuid.NewString()
	logger.Info("starting simulation run", zap.String("run_id", runID), zap.Int("num_operators", numOperators), zap.Int("num_patients", numPatients))

	rdb := redisclient.New(cfg)
	defer rdb.Close()

	readyCheck := func(c context.Context) error {
		_, err := rdb.Ping(c).Result()
		return err
	}
	httpSrv := obs.StartHTTPServer(cfg, readyCheck)
	defer func() { _ = httpSrv.Shutdown(context.Background()) }()

	var store *checkpoint.Store
	if cfg.Checkpoint.Enabled {
		store, err = checkpoint.NewStore(rdb, cfg.Checkpoint)
		if err != nil {
			logger.Fatal("failed to init checkpoint store", obs.Err(err))
		}
	}

	var publisher eventbus.Publisher
	if cfg.EventBus.NATSEnabled {
		publisher, err = eventbus.NewNATSPublisher(cfg.EventBus.NATSURL, cfg.EventBus.Subject)
		if err != nil {
			logger.Warn("NATS publisher unavailable, continuing with in-process fan-out only", obs.Err(err))
			publisher = nil
		}
	}
	bus := eventbus.New(runID, publisher, logger)
	defer bus.Close()
	bus.Subscribe(eventbus.FuncSubscriber{SubID: "log", Fn: func(e eventbus.Event) {
		logger.Debug("domain event", zap.String("type", string(e.Type)), zap.Int("day", e.Day), zap.Int("minute", e.Minute))
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, stopping after current tick", obs.String("signal", sig.String()))
		cancel()
	}()

	rng := simrand.New(seed)
	m, err := scenario.Build(cfg, rng, logger, scenario.Options{NumOperators: numOperators, NumPatients: numPatients})
	if err != nil {
		logger.Fatal("failed to build scenario", obs.Err(err))
	}
	wireHooks(m, bus, store, runID, logger)

	var replanDue atomic.Bool
	if cfg.Replan.Enabled {
		sched := cron.New()
		_, err := sched.AddFunc(cfg.Replan.Cron, func() { replanDue.Store(true) })
		if err != nil {
			logger.Fatal("invalid replan cron expression", obs.Err(err), zap.String("cron", cfg.Replan.Cron))
		}
		sched.Start()
		defer sched.Stop()
	}

	for m.Running {
		select {
		case <-ctx.Done():
			logger.Info("run stopped early", zap.Int("day", m.Day), zap.Int("minute", m.Minute))
			m.Running = false
		default:
			if replanDue.CompareAndSwap(true, false) {
				logger.Info("periodic replan triggered", zap.Int("day", m.Day), zap.Int("minute", m.Minute))
				m.StartWeek()
			}
			m.Step()
		}
	}

	if store != nil {
		snap := checkpoint.FromModel(runID, m)
		if err := store.Save(context.Background(), snap); err != nil {
			logger.Warn("final checkpoint save failed", obs.Err(err))
		}
	}

	snapshot := stats.Compute(m, stats.Costs{
		Movement:  cfg.Hyperparams.CMovement,
		Overskill: cfg.Hyperparams.COverskill,
		Execution: cfg.Hyperparams.CExecution,
		Sigma0:    cfg.Hyperparams.Sigma0,
		Sigma1:    cfg.Hyperparams.Sigma1,
		Omega:     cfg.Hyperparams.Omega,
	}, []int{15, 30, 60})

	out, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		logger.Fatal("failed to marshal final stats", obs.Err(err))
	}
	fmt.Println(string(out))
}

// wireHooks connects model.Hooks to checkpoint persistence and domain
// event publication without model importing either package.
func wireHooks(m *model.Model, bus *eventbus.Bus, store *checkpoint.Store, runID string, logger *zap.Logger) {
	m.Hooks.OnScheduled = func(v *visit.Visit) {
		bus.Emit(eventbus.VisitScheduled, m.Day, m.Minute, eventbus.WithVisit(v.ID, v.PatientID))
	}
	m.Hooks.OnUnschedulable = func(v *visit.Visit) {
		bus.Emit(eventbus.VisitDescheduled, m.Day, m.Minute, eventbus.WithVisit(v.ID, v.PatientID))
	}
	m.Hooks.OnDayEnd = func(day int) {
		bus.Emit(eventbus.DayCompleted, day, m.Minute)
		if store != nil {
			snap := checkpoint.FromModel(runID, m)
			if err := store.Save(context.Background(), snap); err != nil {
				logger.Warn("day-boundary checkpoint save failed", obs.Err(err), zap.Int("day", day))
			}
		}
	}
	m.Hooks.OnBroken = func(day, minute int) {
		bus.Emit(eventbus.RunBroken, day, minute)
	}
}
