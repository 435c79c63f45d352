// Copyright 2025 James Ross

// Package scenario builds a runnable model.Model from configuration plus
// a synthetic operator/patient roster, shared by cmd/simulate and
// cmd/status-api so neither main package duplicates the other's wiring.
package scenario

import (
	"github.com/jamesross/carefleet-sim/internal/config"
	"github.com/jamesross/carefleet-sim/internal/graph"
	"github.com/jamesross/carefleet-sim/internal/manager"
	"github.com/jamesross/carefleet-sim/internal/model"
	"go.uber.org/zap"
)

// RNG is the random source a scenario is built and seeded with.
type RNG interface {
	model.RNG
}

// Options controls the size of the synthetic roster seeded into the
// returned model; it carries no bearing on the model's own dynamics.
type Options struct {
	NumOperators int
	NumPatients  int
}

// Build constructs a travel-time graph, a manager at the configured
// strategy level, and a model wired to both, then seeds it with a
// synthetic operator/patient roster.
func Build(cfg *config.Config, rng RNG, log *zap.Logger, opts Options) (*model.Model, error) {
	g, err := buildGraph(cfg.Hyperparams.NumMunicipalities, rng)
	if err != nil {
		return nil, err
	}

	mgr := manager.New(1, manager.Level(cfg.Scheduling.ManagerLevel), manager.Hyperparams{
		CMovement:  cfg.Hyperparams.CMovement,
		CWage:      cfg.Hyperparams.CWage,
		COverskill: cfg.Hyperparams.COverskill,
		Sigma0:     cfg.Hyperparams.Sigma0,
		Sigma1:     cfg.Hyperparams.Sigma1,
		Omega:      cfg.Hyperparams.Omega,
	})

	m := model.New(g, mgr, model.Hyperparams{
		CWage:             cfg.Hyperparams.CWage,
		CMovement:         cfg.Hyperparams.CMovement,
		COverskill:        cfg.Hyperparams.COverskill,
		CExecution:        cfg.Hyperparams.CExecution,
		BigM:              cfg.Hyperparams.BigM,
		Sigma0:            cfg.Hyperparams.Sigma0,
		Sigma1:            cfg.Hyperparams.Sigma1,
		Omega:             cfg.Hyperparams.Omega,
		ShorteningPerc:    cfg.Scheduling.ShorteningPerc,
		MaxAllowedDelay:   cfg.Scheduling.MaxAllowedDelay,
		NumDays:           cfg.Hyperparams.NumDays,
		NumMunicipalities: cfg.Hyperparams.NumMunicipalities,
		EventRateLimitPerTick: cfg.Hyperparams.EventRateLimitPerTick,
	}, model.Clock{
		TimeUnit:     cfg.Clock.TimeUnit,
		IntraMunTime: cfg.Clock.IntraMunTime,
		OpStartTime:  cfg.Clock.OpStartTime,
		OpEndTime:    cfg.Clock.OpEndTime,
		PatStartTime: cfg.Clock.PatStartTime,
		PatEndTime:   cfg.Clock.PatEndTime,
		BrokenTime:   cfg.Clock.BrokenTime,
	}, model.EventProbabilities{
		NewVisit:           cfg.Probabilities.NewVisitFrequency,
		SingleCancellation: cfg.Probabilities.SingleCancellationFrequency,
		AllCancellations:   cfg.Probabilities.AllCancellationsFrequency,
		NewPatient:         cfg.Probabilities.NewPatientFrequency,
		QuitDay:            cfg.Probabilities.QuitDayFrequency,
		LateEntry:          cfg.Probabilities.LateEntryFrequency,
		EarlyExit:          cfg.Probabilities.EarlyExitFrequency,
		ProlongedVisit:     cfg.Probabilities.ProlongedVisitProbability,
		ProlongedTravel:    cfg.Probabilities.ProlongedTravelProbability,
		ProlongMin:         float64(cfg.Probabilities.ProlongMin),
		ProlongMode:        float64(cfg.Probabilities.ProlongMode),
		ProlongMax:         float64(cfg.Probabilities.ProlongMax),
		NoiseTime:          cfg.Probabilities.NoiseTime,
		HighSkillProb:      cfg.Probabilities.HighSkillProb,
		PremiumProb:        cfg.Probabilities.PremiumProb,
	}, rng, log)

	seed(m, rng, opts, cfg.Hyperparams.NumMunicipalities, cfg.Hyperparams.NumDays)
	return m, nil
}

// buildGraph generates a small synthetic, symmetric travel-time matrix
// over n municipalities.
func buildGraph(n int, rng RNG) (*graph.Graph, error) {
	if n < 1 {
		n = 1
	}
	matrix := make([][]int, n)
	positions := make([]graph.Point, n)
	for i := range matrix {
		matrix[i] = make([]int, n)
		positions[i] = graph.Point{X: float64(rng.Intn(100)), Y: float64(rng.Intn(100))}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			w := 10 + rng.Intn(50)
			matrix[i][j] = w
			matrix[j][i] = w
		}
	}
	return graph.New(matrix, positions)
}

// seed populates the arena with a synthetic operator and patient roster,
// each patient drawing its first visit immediately.
func seed(m *model.Model, rng RNG, opts Options, numMunicipalities, numDays int) {
	avail := make([]bool, numDays)
	starts := make([]int, numDays)
	ends := make([]int, numDays)
	for d := 0; d < numDays; d++ {
		avail[d] = true
		starts[d] = m.Clock.OpStartTime
		ends[d] = m.Clock.OpEndTime
	}

	for i := 0; i < opts.NumOperators; i++ {
		mun := rng.Intn(numMunicipalities)
		skill := 0
		if rng.Float64() < 0.3 {
			skill = 1
		}
		m.AddOperator(mun, skill, 360, 480, avail, starts, ends)
	}

	for i := 0; i < opts.NumPatients; i++ {
		mun := rng.Intn(numMunicipalities)
		premium := rng.Float64() < m.Probs.PremiumProb
		p := m.AddPatient(mun, premium, -1, false)
		p.GenerateNewVisit(m, rng)
	}
}
