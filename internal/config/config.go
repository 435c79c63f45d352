// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Hyperparams holds the objective-function weights and scaling constants
// that parameterize criticality and the decomposed objective.
type Hyperparams struct {
	CWage            float64 `mapstructure:"c_wage"`
	CMovement        float64 `mapstructure:"c_movement"`
	COverskill       float64 `mapstructure:"c_overskill"`
	CExecution       float64 `mapstructure:"c_execution"`
	BigM             float64 `mapstructure:"big_m"`
	Sigma0           float64 `mapstructure:"sigma0"`
	Sigma1           float64 `mapstructure:"sigma1"`
	Omega            float64 `mapstructure:"omega"`
	NumDays          int     `mapstructure:"num_days"`
	NumMunicipalities int    `mapstructure:"num_municipalities"`
	// EventRateLimitPerTick caps unsolicited events (new visits,
	// cancellations, new-patient arrivals) admitted per simulated
	// minute; 0 disables the limit.
	EventRateLimitPerTick int `mapstructure:"event_rate_limit_per_tick"`
}

// Clock holds the minute-granular horizon and default day windows.
type Clock struct {
	TimeUnit       int `mapstructure:"time_unit"`
	IntraMunTime   int `mapstructure:"intra_mun_time"`
	OpStartTime    int `mapstructure:"op_start_time"`
	OpEndTime      int `mapstructure:"op_end_time"`
	PatStartTime   int `mapstructure:"pat_start_time"`
	PatEndTime     int `mapstructure:"pat_end_time"`
	BrokenTime     int `mapstructure:"broken_time"`
}

// Scheduling holds the schedule-mutation-algebra guard constants.
type Scheduling struct {
	MinNoticeTime   int     `mapstructure:"min_notice_time"`
	MaxAllowedDelay int     `mapstructure:"max_allowed_delay"`
	ShorteningPerc  float64 `mapstructure:"shortening_perc"`
	ManagerLevel    int     `mapstructure:"manager_level"`
}

// Probabilities holds the unexpected-event generation rates, one instance
// of unexpected demand per simulated day, plus prolongation sampling.
type Probabilities struct {
	NewVisitFrequency          float64 `mapstructure:"new_visit_frequency"`
	SingleCancellationFrequency float64 `mapstructure:"single_cancellation_frequency"`
	AllCancellationsFrequency  float64 `mapstructure:"all_cancellations_frequency"`
	NewPatientFrequency        float64 `mapstructure:"new_patient_frequency"`
	QuitDayFrequency           float64 `mapstructure:"quit_day_frequency"`
	LateEntryFrequency         float64 `mapstructure:"late_entry_frequency"`
	EarlyExitFrequency         float64 `mapstructure:"early_exit_frequency"`
	ProlongedVisitProbability  float64 `mapstructure:"prolonged_visit_probability"`
	ProlongedTravelProbability float64 `mapstructure:"prolonged_travel_probability"`
	ProlongMin                 int     `mapstructure:"prolong_min"`
	ProlongMode                int     `mapstructure:"prolong_mode"`
	ProlongMax                 int     `mapstructure:"prolong_max"`
	NoiseTime                  int     `mapstructure:"noise_time"`
	HighSkillProb              float64 `mapstructure:"high_skill_prob"`
	PremiumProb                float64 `mapstructure:"premium_prob"`
	EventRatePerTick           int     `mapstructure:"event_rate_per_tick"`
	EventBurst                 int     `mapstructure:"event_burst"`
}

type Redis struct {
	Addr               string        `mapstructure:"addr"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	DB                 int           `mapstructure:"db"`
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	PoolSizeMultiplier int           `mapstructure:"pool_size_multiplier"`
	MinIdleConns       int           `mapstructure:"min_idle_conns"`
}

// Checkpoint configures day-boundary snapshotting to Redis.
type Checkpoint struct {
	Enabled     bool   `mapstructure:"enabled"`
	KeyPrefix   string `mapstructure:"key_prefix"`
	Compression string `mapstructure:"compression"` // "gzip" or "zstd"
}

// EventBus configures in-process fan-out and optional NATS delivery.
type EventBus struct {
	NATSEnabled bool   `mapstructure:"nats_enabled"`
	NATSURL     string `mapstructure:"nats_url"`
	Subject     string `mapstructure:"subject"`
}

// Replan configures the cron-driven periodic re-plan trigger.
type Replan struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"`
}

type TracingConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	Endpoint         string  `mapstructure:"endpoint"`
	Environment      string  `mapstructure:"environment"`
	SamplingStrategy string  `mapstructure:"sampling_strategy"`
	SamplingRate     float64 `mapstructure:"sampling_rate"`
}

// Tracing is a backwards-compatible alias
type Tracing = TracingConfig

type ObservabilityConfig struct {
	MetricsPort int           `mapstructure:"metrics_port"`
	LogLevel    string        `mapstructure:"log_level"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

// Observability is a backwards-compatible alias
type Observability = ObservabilityConfig

type Config struct {
	Hyperparams   Hyperparams   `mapstructure:"hyperparams"`
	Clock         Clock         `mapstructure:"clock"`
	Scheduling    Scheduling    `mapstructure:"scheduling"`
	Probabilities Probabilities `mapstructure:"probabilities"`
	Redis         Redis         `mapstructure:"redis"`
	Checkpoint    Checkpoint    `mapstructure:"checkpoint"`
	EventBus      EventBus      `mapstructure:"event_bus"`
	Replan        Replan        `mapstructure:"replan"`
	Observability Observability `mapstructure:"observability"`
}

func defaultConfig() *Config {
	return &Config{
		Hyperparams: Hyperparams{
			CWage:             1,
			CMovement:         1,
			COverskill:        0,
			CExecution:        1000,
			BigM:              1000,
			Sigma0:            0.3,
			Sigma1:            0.1,
			Omega:             0.27,
			NumDays:           5,
			NumMunicipalities: 11,
			EventRateLimitPerTick: 50,
		},
		Clock: Clock{
			TimeUnit:     15,
			IntraMunTime: 15,
			OpStartTime:  0,
			OpEndTime:    840,
			PatStartTime: 30,
			PatEndTime:   810,
			BrokenTime:   1110,
		},
		Scheduling: Scheduling{
			MinNoticeTime:   120,
			MaxAllowedDelay: 60,
			ShorteningPerc:  0.15,
			ManagerLevel:    2, // OPTIMIZER
		},
		Probabilities: Probabilities{
			NewVisitFrequency:           4,
			SingleCancellationFrequency: 2,
			AllCancellationsFrequency:   0.2,
			NewPatientFrequency:         1,
			QuitDayFrequency:            0.1,
			LateEntryFrequency:          1,
			EarlyExitFrequency:          1,
			ProlongedVisitProbability:   0.1,
			ProlongedTravelProbability:  0.02,
			ProlongMin:                  10,
			ProlongMode:                 25,
			ProlongMax:                  60,
			NoiseTime:                   5,
			HighSkillProb:               0.05,
			PremiumProb:                 0.2,
			EventRatePerTick:            5,
			EventBurst:                  10,
		},
		Redis: Redis{
			Addr:               "localhost:6379",
			DialTimeout:        5 * time.Second,
			ReadTimeout:        3 * time.Second,
			WriteTimeout:       3 * time.Second,
			MaxRetries:         3,
			PoolSizeMultiplier: 10,
			MinIdleConns:       2,
		},
		Checkpoint: Checkpoint{
			Enabled:     true,
			KeyPrefix:   "carefleet:checkpoint",
			Compression: "gzip",
		},
		EventBus: EventBus{
			NATSEnabled: false,
			Subject:     "carefleet.events",
		},
		Replan: Replan{
			Enabled: false,
			Cron:    "0 0 * * MON",
		},
		Observability: Observability{
			MetricsPort: 9090,
			LogLevel:    "info",
			Tracing:     Tracing{Enabled: false},
		},
	}
}

// Load reads configuration from a YAML file and env overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	setDefaults(v, def)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, def *Config) {
	v.SetDefault("hyperparams.c_wage", def.Hyperparams.CWage)
	v.SetDefault("hyperparams.c_movement", def.Hyperparams.CMovement)
	v.SetDefault("hyperparams.c_overskill", def.Hyperparams.COverskill)
	v.SetDefault("hyperparams.c_execution", def.Hyperparams.CExecution)
	v.SetDefault("hyperparams.big_m", def.Hyperparams.BigM)
	v.SetDefault("hyperparams.sigma0", def.Hyperparams.Sigma0)
	v.SetDefault("hyperparams.sigma1", def.Hyperparams.Sigma1)
	v.SetDefault("hyperparams.omega", def.Hyperparams.Omega)
	v.SetDefault("hyperparams.num_days", def.Hyperparams.NumDays)
	v.SetDefault("hyperparams.num_municipalities", def.Hyperparams.NumMunicipalities)
	v.SetDefault("hyperparams.event_rate_limit_per_tick", def.Hyperparams.EventRateLimitPerTick)

	v.SetDefault("clock.time_unit", def.Clock.TimeUnit)
	v.SetDefault("clock.intra_mun_time", def.Clock.IntraMunTime)
	v.SetDefault("clock.op_start_time", def.Clock.OpStartTime)
	v.SetDefault("clock.op_end_time", def.Clock.OpEndTime)
	v.SetDefault("clock.pat_start_time", def.Clock.PatStartTime)
	v.SetDefault("clock.pat_end_time", def.Clock.PatEndTime)
	v.SetDefault("clock.broken_time", def.Clock.BrokenTime)

	v.SetDefault("scheduling.min_notice_time", def.Scheduling.MinNoticeTime)
	v.SetDefault("scheduling.max_allowed_delay", def.Scheduling.MaxAllowedDelay)
	v.SetDefault("scheduling.shortening_perc", def.Scheduling.ShorteningPerc)
	v.SetDefault("scheduling.manager_level", def.Scheduling.ManagerLevel)

	v.SetDefault("probabilities.new_visit_frequency", def.Probabilities.NewVisitFrequency)
	v.SetDefault("probabilities.single_cancellation_frequency", def.Probabilities.SingleCancellationFrequency)
	v.SetDefault("probabilities.all_cancellations_frequency", def.Probabilities.AllCancellationsFrequency)
	v.SetDefault("probabilities.new_patient_frequency", def.Probabilities.NewPatientFrequency)
	v.SetDefault("probabilities.quit_day_frequency", def.Probabilities.QuitDayFrequency)
	v.SetDefault("probabilities.late_entry_frequency", def.Probabilities.LateEntryFrequency)
	v.SetDefault("probabilities.early_exit_frequency", def.Probabilities.EarlyExitFrequency)
	v.SetDefault("probabilities.prolonged_visit_probability", def.Probabilities.ProlongedVisitProbability)
	v.SetDefault("probabilities.prolonged_travel_probability", def.Probabilities.ProlongedTravelProbability)
	v.SetDefault("probabilities.prolong_min", def.Probabilities.ProlongMin)
	v.SetDefault("probabilities.prolong_mode", def.Probabilities.ProlongMode)
	v.SetDefault("probabilities.prolong_max", def.Probabilities.ProlongMax)
	v.SetDefault("probabilities.noise_time", def.Probabilities.NoiseTime)
	v.SetDefault("probabilities.high_skill_prob", def.Probabilities.HighSkillProb)
	v.SetDefault("probabilities.premium_prob", def.Probabilities.PremiumProb)
	v.SetDefault("probabilities.event_rate_per_tick", def.Probabilities.EventRatePerTick)
	v.SetDefault("probabilities.event_burst", def.Probabilities.EventBurst)

	v.SetDefault("redis.addr", def.Redis.Addr)
	v.SetDefault("redis.dial_timeout", def.Redis.DialTimeout)
	v.SetDefault("redis.read_timeout", def.Redis.ReadTimeout)
	v.SetDefault("redis.write_timeout", def.Redis.WriteTimeout)
	v.SetDefault("redis.max_retries", def.Redis.MaxRetries)
	v.SetDefault("redis.pool_size_multiplier", def.Redis.PoolSizeMultiplier)
	v.SetDefault("redis.min_idle_conns", def.Redis.MinIdleConns)

	v.SetDefault("checkpoint.enabled", def.Checkpoint.Enabled)
	v.SetDefault("checkpoint.key_prefix", def.Checkpoint.KeyPrefix)
	v.SetDefault("checkpoint.compression", def.Checkpoint.Compression)

	v.SetDefault("event_bus.nats_enabled", def.EventBus.NATSEnabled)
	v.SetDefault("event_bus.subject", def.EventBus.Subject)

	v.SetDefault("replan.enabled", def.Replan.Enabled)
	v.SetDefault("replan.cron", def.Replan.Cron)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.tracing.enabled", def.Observability.Tracing.Enabled)
	v.SetDefault("observability.tracing.endpoint", def.Observability.Tracing.Endpoint)
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if cfg.Hyperparams.NumDays < 1 {
		return fmt.Errorf("hyperparams.num_days must be >= 1")
	}
	if cfg.Hyperparams.NumMunicipalities < 1 {
		return fmt.Errorf("hyperparams.num_municipalities must be >= 1")
	}
	if cfg.Clock.TimeUnit <= 0 {
		return fmt.Errorf("clock.time_unit must be > 0")
	}
	if cfg.Clock.OpEndTime <= cfg.Clock.OpStartTime {
		return fmt.Errorf("clock.op_end_time must be after clock.op_start_time")
	}
	if cfg.Scheduling.ManagerLevel < 0 || cfg.Scheduling.ManagerLevel > 3 {
		return fmt.Errorf("scheduling.manager_level must be in [0,3]")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	return nil
}
