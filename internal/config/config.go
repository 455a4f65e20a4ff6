package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/sheldongordon4/coherence-engine/internal/logging"
	"github.com/sheldongordon4/coherence-engine/internal/metrics"
	"github.com/sheldongordon4/coherence-engine/internal/source"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Darshan   DarshanConfig   `mapstructure:"darshan"`
	Incidents IncidentsConfig `mapstructure:"incidents"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig governs the HTTP API.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MetricsConfig holds the compute-core tunables. Every threshold is
// independently overridable; ordering invariants are enforced at load.
type MetricsConfig struct {
	WarnThreshold      float64 `mapstructure:"warn_threshold"`
	CriticalThreshold  float64 `mapstructure:"critical_threshold"`
	StabilityHigh      float64 `mapstructure:"stability_high"`
	StabilityMedium    float64 `mapstructure:"stability_medium"`
	TrendSensitivity   float64 `mapstructure:"trend_sensitivity"`
	RiskRule           string  `mapstructure:"risk_rule"`
	DefaultWindow      string  `mapstructure:"default_window"`
	DefaultSource      string  `mapstructure:"default_source"`
	MockPath           string  `mapstructure:"mock_path"`
	MockScale          string  `mapstructure:"mock_scale"`
	IncludeLegacyNames bool    `mapstructure:"include_legacy_names"`
}

// Thresholds projects the config values into the compute core's type.
func (m MetricsConfig) Thresholds() metrics.Thresholds {
	return metrics.Thresholds{
		Warn:             m.WarnThreshold,
		Critical:         m.CriticalThreshold,
		StabilityHigh:    m.StabilityHigh,
		StabilityMedium:  m.StabilityMedium,
		TrendSensitivity: m.TrendSensitivity,
	}
}

// StorageConfig selects and parameterises the history backend.
type StorageConfig struct {
	Backend         string        `mapstructure:"backend"`
	CSVPath         string        `mapstructure:"csv_path"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DarshanConfig covers remote signal ingestion. InputScale declares the
// scale the upstream publishes on; it is never inferred from the values.
type DarshanConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	InputScale     string        `mapstructure:"input_scale"`
	PageSize       int           `mapstructure:"page_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryBaseWait  time.Duration `mapstructure:"retry_base_wait"`
	RetryMaxWait   time.Duration `mapstructure:"retry_max_wait"`
}

// IncidentsConfig governs ledger emission.
type IncidentsConfig struct {
	Dir         string `mapstructure:"dir"`
	MinSeverity string `mapstructure:"min_severity"`
}

// SchedulerConfig governs the watch loop cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COHERENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "coherence-engine")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)

	v.SetDefault("metrics.warn_threshold", 0.10)
	v.SetDefault("metrics.critical_threshold", 0.25)
	v.SetDefault("metrics.stability_high", 0.80)
	v.SetDefault("metrics.stability_medium", 0.55)
	v.SetDefault("metrics.trend_sensitivity", 0.03)
	v.SetDefault("metrics.risk_rule", metrics.RiskRuleVolatility)
	v.SetDefault("metrics.default_window", "1h")
	v.SetDefault("metrics.default_source", "darshan_api")
	v.SetDefault("metrics.mock_scale", source.ScaleUnit)
	v.SetDefault("metrics.include_legacy_names", true)

	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.csv_path", "rolling_store.csv")
	v.SetDefault("storage.sqlite_path", "rolling_store.db")
	v.SetDefault("storage.max_open_conns", 10)
	v.SetDefault("storage.max_idle_conns", 5)
	v.SetDefault("storage.conn_max_lifetime", "30m")

	v.SetDefault("darshan.input_scale", source.ScaleUnit)
	v.SetDefault("darshan.page_size", 500)
	v.SetDefault("darshan.request_timeout", "10s")
	v.SetDefault("darshan.retry_attempts", 3)
	v.SetDefault("darshan.retry_base_wait", "500ms")
	v.SetDefault("darshan.retry_max_wait", "3s")

	v.SetDefault("incidents.dir", "artifacts/incidents")
	v.SetDefault("incidents.min_severity", "medium")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs the startup sanity checks. Threshold ordering
// violations are fatal; values are never reordered or clamped on the
// caller's behalf.
func (c *Config) Validate() error {
	if err := c.Metrics.Thresholds().Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	if c.Metrics.RiskRule != metrics.RiskRuleVolatility && c.Metrics.RiskRule != metrics.RiskRuleMeanAware {
		return fmt.Errorf("metrics.risk_rule must be %q or %q, got %q",
			metrics.RiskRuleVolatility, metrics.RiskRuleMeanAware, c.Metrics.RiskRule)
	}
	if _, err := metrics.ParseRiskLevel(c.Incidents.MinSeverity); err != nil {
		return fmt.Errorf("incidents.min_severity: %w", err)
	}
	if !source.ValidScale(c.Metrics.MockScale) {
		return fmt.Errorf("metrics.mock_scale must be %q or %q, got %q",
			source.ScaleUnit, source.ScalePercent, c.Metrics.MockScale)
	}
	if !source.ValidScale(c.Darshan.InputScale) {
		return fmt.Errorf("darshan.input_scale must be %q or %q, got %q",
			source.ScaleUnit, source.ScalePercent, c.Darshan.InputScale)
	}

	switch c.Storage.Backend {
	case "none", "csv", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.backend must be one of none, csv, sqlite, postgres; got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for the postgres backend")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port, got %d", c.Server.Port)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Darshan.RetryAttempts <= 0 {
		return fmt.Errorf("darshan.retry_attempts must be greater than zero")
	}
	return nil
}

// MinSeverity returns the validated incident gate.
func (c *Config) MinSeverity() metrics.RiskLevel {
	level, _ := metrics.ParseRiskLevel(c.Incidents.MinSeverity)
	return level
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
