package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/alejandrodnm/riskadapt/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del gestor de riesgo.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Apply     ApplyConfig     `yaml:"apply"`
	Loop      LoopConfig      `yaml:"loop"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// EngineConfig apunta a la API del engine de trading.
type EngineConfig struct {
	BaseURL        string      `yaml:"base_url"`
	TimeoutSeconds int         `yaml:"timeout_seconds"`
	RatePerSec     float64     `yaml:"rate_per_sec"`
	Retry          RetryConfig `yaml:"retry"`
}

// RetryConfig es la política de reintentos del cliente HTTP.
type RetryConfig struct {
	MaxRetries int   `yaml:"max_retries"`
	BaseWaitMs int   `yaml:"base_wait_ms"`
	MaxWaitMs  int   `yaml:"max_wait_ms"`
	Statuses   []int `yaml:"statuses"`
}

// OptimizerConfig controla la búsqueda de TP, el SL y las ventanas.
type OptimizerConfig struct {
	PrimarySize  float64   `yaml:"primary_size"` // nocional para el optimizador de TP
	TPMin        float64   `yaml:"tp_min"`
	TPMax        float64   `yaml:"tp_max"`
	TPStep       float64   `yaml:"tp_step"`
	SLQuantile   float64   `yaml:"sl_quantile"`
	SLFloor      float64   `yaml:"sl_floor"`
	SLCap        float64   `yaml:"sl_cap"`
	Windows      string    `yaml:"windows"` // "size[:weight],..."
	SummarySizes []float64 `yaml:"summary_sizes"`
}

// ApplyConfig controla si y cuándo se empujan los parámetros al engine.
type ApplyConfig struct {
	Enabled         bool    `yaml:"enabled"`
	DryRun          bool    `yaml:"dry_run"`
	HysteresisBps   float64 `yaml:"hysteresis_bps"`
	CooldownSeconds int     `yaml:"cooldown_seconds"`
	RestoreState    bool    `yaml:"restore_state"` // arrancar con el último push guardado en storage
}

// LoopConfig controla la cadencia del loop.
type LoopConfig struct {
	PollSeconds       int `yaml:"poll_seconds"`
	ReevaluateSeconds int `yaml:"reevaluate_seconds"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN    string `yaml:"dsn"`     // ruta al archivo SQLite, ":memory:" o vacío para desactivar
	LogCSV string `yaml:"log_csv"` // log CSV de evaluaciones; vacío para desactivar
}

// MetricsConfig controla el listener de Prometheus.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // ej. ":9108"; vacío para desactivar
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// Parse interpreta el YAML sobre los defaults y aplica overrides de entorno.
// Las keys ausentes conservan su default; un 0 explícito se respeta en los campos
// donde es válido (hysteresis_bps, cooldown_seconds, sl_floor, max_retries).
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg, nil
}

// Default devuelve la configuración sin YAML: solo overrides de entorno y defaults.
// Es la única vía en la que storage y el log CSV se activan sin declararlos.
func Default() *Config {
	cfg := defaults()
	cfg.Storage = StorageConfig{DSN: "riskadapt.db", LogCSV: "adaptive_risk_log.csv"}
	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg
}

// PollInterval devuelve el intervalo entre polls.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Loop.PollSeconds) * time.Second
}

// ReevaluateInterval devuelve el intervalo de reevaluación periódica.
func (c *Config) ReevaluateInterval() time.Duration {
	return time.Duration(c.Loop.ReevaluateSeconds) * time.Second
}

// Cooldown devuelve el cooldown mínimo entre aplicaciones.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Apply.CooldownSeconds) * time.Second
}

// EngineTimeout devuelve el timeout por request al engine.
func (c *Config) EngineTimeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSeconds) * time.Second
}

// Grid devuelve el grid de TP configurado.
func (c *Config) Grid() domain.TPGrid {
	return domain.TPGrid{Min: c.Optimizer.TPMin, Max: c.Optimizer.TPMax, Step: c.Optimizer.TPStep}
}

// Validate revisa rangos y el formato de las ventanas. Devuelve el primer error.
func (c *Config) Validate() error {
	if c.Engine.BaseURL == "" {
		return errors.New("config: engine.base_url is required")
	}
	if err := c.Grid().Validate(); err != nil {
		return fmt.Errorf("config: optimizer: %w", err)
	}
	if _, err := domain.ParseWindows(c.Optimizer.Windows); err != nil {
		return fmt.Errorf("config: optimizer.windows: %w", err)
	}
	if c.Optimizer.PrimarySize <= 0 {
		return fmt.Errorf("config: optimizer.primary_size must be > 0, got %v", c.Optimizer.PrimarySize)
	}
	if c.Optimizer.SLQuantile <= 0 || c.Optimizer.SLQuantile >= 1 {
		return fmt.Errorf("config: optimizer.sl_quantile must be in (0, 1), got %v", c.Optimizer.SLQuantile)
	}
	if c.Optimizer.SLFloor < 0 || c.Optimizer.SLFloor > c.Optimizer.SLCap {
		return fmt.Errorf("config: optimizer.sl_floor must be in [0, sl_cap=%v], got %v",
			c.Optimizer.SLCap, c.Optimizer.SLFloor)
	}
	if c.Engine.Retry.MaxRetries < 0 {
		return fmt.Errorf("config: engine.retry.max_retries must be >= 0, got %d", c.Engine.Retry.MaxRetries)
	}
	if c.Apply.HysteresisBps < 0 {
		return fmt.Errorf("config: apply.hysteresis_bps must be >= 0, got %v", c.Apply.HysteresisBps)
	}
	if c.Apply.CooldownSeconds < 0 {
		return fmt.Errorf("config: apply.cooldown_seconds must be >= 0, got %d", c.Apply.CooldownSeconds)
	}
	if c.Loop.PollSeconds <= 0 || c.Loop.ReevaluateSeconds <= 0 {
		return fmt.Errorf("config: loop intervals must be > 0, got poll=%d reevaluate=%d",
			c.Loop.PollSeconds, c.Loop.ReevaluateSeconds)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text|json, got %q", c.Log.Format)
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.Engine.BaseURL = v
	}
	if v := os.Getenv("WINDOWS"); v != "" {
		cfg.Optimizer.Windows = v
	}
	if v, ok := envBool("APPLY"); ok {
		cfg.Apply.Enabled = v
	}
	if v, ok := envBool("DRY_RUN"); ok {
		cfg.Apply.DryRun = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// defaults devuelve la configuración base sobre la que se decodifica el YAML.
func defaults() Config {
	return Config{
		Engine: EngineConfig{
			BaseURL:        "http://localhost:5000/api",
			TimeoutSeconds: 10,
			RatePerSec:     5,
			Retry: RetryConfig{
				MaxRetries: 3,
				BaseWaitMs: 500,
				MaxWaitMs:  5000,
				Statuses:   []int{429, 500, 502, 503, 504},
			},
		},
		Optimizer: OptimizerConfig{
			PrimarySize:  50,
			TPMin:        0.002,
			TPMax:        0.015,
			TPStep:       0.0005,
			SLQuantile:   0.80,
			SLFloor:      0.006,
			SLCap:        domain.DefaultSLCap,
			Windows:      "10:0.40,50:0.30,100:0.20,250:0.075,1000:0.025",
			SummarySizes: []float64{20, 30, 50, 200},
		},
		Apply: ApplyConfig{
			HysteresisBps:   2,
			CooldownSeconds: 1800,
		},
		Loop: LoopConfig{
			PollSeconds:       10,
			ReevaluateSeconds: 900,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// setDefaults repone el default en los campos donde un valor vacío o no positivo
// nunca es válido.
func setDefaults(cfg *Config) {
	d := defaults()

	if cfg.Engine.BaseURL == "" {
		cfg.Engine.BaseURL = d.Engine.BaseURL
	}
	if cfg.Engine.TimeoutSeconds <= 0 {
		cfg.Engine.TimeoutSeconds = d.Engine.TimeoutSeconds
	}
	if cfg.Engine.RatePerSec <= 0 {
		cfg.Engine.RatePerSec = d.Engine.RatePerSec
	}
	if cfg.Engine.Retry.BaseWaitMs <= 0 {
		cfg.Engine.Retry.BaseWaitMs = d.Engine.Retry.BaseWaitMs
	}
	if cfg.Engine.Retry.MaxWaitMs <= 0 {
		cfg.Engine.Retry.MaxWaitMs = d.Engine.Retry.MaxWaitMs
	}
	if len(cfg.Engine.Retry.Statuses) == 0 {
		cfg.Engine.Retry.Statuses = d.Engine.Retry.Statuses
	}

	if cfg.Optimizer.PrimarySize <= 0 {
		cfg.Optimizer.PrimarySize = d.Optimizer.PrimarySize
	}
	if cfg.Optimizer.TPMin <= 0 {
		cfg.Optimizer.TPMin = d.Optimizer.TPMin
	}
	if cfg.Optimizer.TPMax <= 0 {
		cfg.Optimizer.TPMax = d.Optimizer.TPMax
	}
	if cfg.Optimizer.TPStep <= 0 {
		cfg.Optimizer.TPStep = d.Optimizer.TPStep
	}
	if cfg.Optimizer.SLQuantile <= 0 {
		cfg.Optimizer.SLQuantile = d.Optimizer.SLQuantile
	}
	if cfg.Optimizer.SLCap <= 0 {
		cfg.Optimizer.SLCap = d.Optimizer.SLCap
	}
	if cfg.Optimizer.Windows == "" {
		cfg.Optimizer.Windows = d.Optimizer.Windows
	}
	if len(cfg.Optimizer.SummarySizes) == 0 {
		cfg.Optimizer.SummarySizes = d.Optimizer.SummarySizes
	}

	if cfg.Loop.PollSeconds <= 0 {
		cfg.Loop.PollSeconds = d.Loop.PollSeconds
	}
	if cfg.Loop.ReevaluateSeconds <= 0 {
		cfg.Loop.ReevaluateSeconds = d.Loop.ReevaluateSeconds
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = d.Log.Format
	}
}
