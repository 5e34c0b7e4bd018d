// Package config loads governance settings from a YAML file, ASSETGOV_*
// environment variables and built-in defaults, in that order of precedence
// (env wins over file, file wins over defaults).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
// asset_management.update_interval is read from ASSETGOV_ASSET_MANAGEMENT_UPDATE_INTERVAL.
const EnvPrefix = "ASSETGOV"

// DefaultPath is read when no explicit config file is given and it exists.
const DefaultPath = "config/app_config.yaml"

// Settings is the typed view of the configuration consumed by the core.
type Settings struct {
	AssetManagement AssetManagement `mapstructure:"asset_management"`
	Governance      Governance      `mapstructure:"governance"`
	Health          Health          `mapstructure:"health"`
	JobScheduler    JobScheduler    `mapstructure:"job_scheduler"`
	Database        Database        `mapstructure:"database"`
	Ingestion       Ingestion       `mapstructure:"ingestion"`
	HTTP            HTTP            `mapstructure:"http"`
	Environment     string          `mapstructure:"environment"`
	ProjectName     string          `mapstructure:"project_name"`
}

type AssetManagement struct {
	// UpdateInterval is the registration debounce, in seconds.
	UpdateInterval int `mapstructure:"update_interval"`
}

// UpdateIntervalDuration returns UpdateInterval as a duration.
func (a AssetManagement) UpdateIntervalDuration() time.Duration {
	return time.Duration(a.UpdateInterval) * time.Second
}

type Governance struct {
	AutoDiscoveryInterval int    `mapstructure:"auto_discovery_interval"`
	DefinitionsDir        string `mapstructure:"definitions_dir"`
}

// AutoDiscoveryIntervalDuration returns AutoDiscoveryInterval as a duration.
func (g Governance) AutoDiscoveryIntervalDuration() time.Duration {
	return time.Duration(g.AutoDiscoveryInterval) * time.Second
}

type Health struct {
	VolumeThreshold float64 `mapstructure:"volume_threshold"`
	TimeThreshold   float64 `mapstructure:"time_threshold"`
	FreshnessHours  float64 `mapstructure:"freshness_hours"`
	HistoryLimit    int     `mapstructure:"history_limit"`
}

// FreshnessWindow returns the staleness cutoff. Zero disables the check.
func (h Health) FreshnessWindow() time.Duration {
	return time.Duration(h.FreshnessHours * float64(time.Hour))
}

type JobScheduler struct {
	Enabled            bool          `mapstructure:"enabled"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	HealthCheckJob     string        `mapstructure:"health_check_job"`
	DiscoveryJob       string        `mapstructure:"discovery_job"`
	AlertProcessingJob string        `mapstructure:"alert_processing_job"`
}

type Database struct {
	MetadataDB string `mapstructure:"metadata_db"`
}

type Ingestion struct {
	LoadMode          string `mapstructure:"load_mode"`
	LockTime          string `mapstructure:"lock_time"`
	FullModeStartDate string `mapstructure:"full_mode_start_date"`
	SourceDriver      string `mapstructure:"source_driver"`
	SourceDSN         string `mapstructure:"source_dsn"`
	TargetDriver      string `mapstructure:"target_driver"`
	TargetDSN         string `mapstructure:"target_dsn"`
	TargetSchema      string `mapstructure:"target_schema"`
}

type HTTP struct {
	Addr string `mapstructure:"addr"`
}

var defaults = map[string]any{
	"asset_management.update_interval":   900,
	"governance.auto_discovery_interval": 3600,
	"governance.definitions_dir":         "assets",
	"health.volume_threshold":            0.2,
	"health.time_threshold":              0.5,
	"health.freshness_hours":             25,
	"health.history_limit":               10,
	"job_scheduler.enabled":              true,
	"job_scheduler.poll_interval":        "60s",
	"job_scheduler.shutdown_timeout":     "10s",
	"job_scheduler.health_check_job":     "@every 15 minutes",
	"job_scheduler.discovery_job":        "@every 1 hour",
	"job_scheduler.alert_processing_job": "@every 5 minutes",
	"database.metadata_db":               "metadata.db",
	"ingestion.load_mode":                "current_month",
	"ingestion.lock_time":                "01 00:00:00",
	"ingestion.full_mode_start_date":     "2024-01-01",
	"ingestion.source_driver":            "postgres",
	"ingestion.source_dsn":               "",
	"ingestion.target_driver":            "postgres",
	"ingestion.target_dsn":               "",
	"ingestion.target_schema":            "stg",
	"http.addr":                          ":8080",
	"environment":                        "development",
	"project_name":                       "assetgov",
}

// Config is a generic key/value accessor over the merged configuration.
// Keys are dot paths, e.g. "health.volume_threshold".
type Config struct {
	v    *viper.Viper
	file string
}

// Load builds a Config. An empty path falls back to DefaultPath when that
// file exists; an explicit path that cannot be read is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := path
	if file == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			file = DefaultPath
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", file, err)
		}
	}
	return &Config{v: v, file: file}, nil
}

// File returns the config file in use, or "" when none was read.
func (c *Config) File() string { return c.file }

// Set overrides a key for the lifetime of this Config.
func (c *Config) Set(key string, value any) { c.v.Set(key, value) }

func (c *Config) Get(key string) any { return c.v.Get(key) }
func (c *Config) GetString(key string) string { return c.v.GetString(key) }
func (c *Config) GetInt(key string) int { return c.v.GetInt(key) }
func (c *Config) GetFloat(key string) float64 { return c.v.GetFloat64(key) }
func (c *Config) GetBool(key string) bool { return c.v.GetBool(key) }
func (c *Config) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }

// IsSet reports whether key has a value from any source, defaults included.
func (c *Config) IsSet(key string) bool { return c.v.IsSet(key) }

// ErrInvalidSettings wraps validation failures from Settings.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings decodes the merged configuration into the typed struct.
func (c *Config) Settings() (Settings, error) {
	var s Settings
	if err := c.v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) validate() error {
	switch {
	case s.AssetManagement.UpdateInterval < 0:
		return fmt.Errorf("%w: asset_management.update_interval must be >= 0", ErrInvalidSettings)
	case s.Health.VolumeThreshold < 0 || s.Health.TimeThreshold < 0:
		return fmt.Errorf("%w: health thresholds must be >= 0", ErrInvalidSettings)
	case s.Health.FreshnessHours < 0:
		return fmt.Errorf("%w: health.freshness_hours must be >= 0", ErrInvalidSettings)
	case s.JobScheduler.PollInterval <= 0:
		return fmt.Errorf("%w: job_scheduler.poll_interval must be > 0", ErrInvalidSettings)
	}
	return nil
}
