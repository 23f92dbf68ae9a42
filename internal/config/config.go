package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/withObsrvr/telemetry-copier/internal/storage"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "TC_"

// ConfigFileEnv names a YAML config file when --config is not given.
const ConfigFileEnv = "TELEMETRY_COPIER_CONFIG"

type Config struct {
	OutputRoot               string   `yaml:"output_root" env:"OUTPUT_ROOT"`
	Archives                 []string `yaml:"archives" env:"ARCHIVES" envSeparator:","`
	WorkDir                  string   `yaml:"work_dir" env:"WORK_DIR"`
	ChunkRows                int      `yaml:"chunk_rows" env:"CHUNK_ROWS"`
	DownsampleRate           int      `yaml:"downsample_rate" env:"DOWNSAMPLE_RATE"`
	TelemetrySizeThresholdMB float64  `yaml:"telemetry_size_threshold_mb" env:"TELEMETRY_SIZE_THRESHOLD_MB"`
	TelemetryKeywords        []string `yaml:"telemetry_keywords" env:"TELEMETRY_KEYWORDS" envSeparator:","`

	Output     OutputConfig     `yaml:"output" envPrefix:"OUTPUT_"`
	Storage    StorageConfig    `yaml:"storage" envPrefix:"STORAGE_"`
	Perf       PerfConfig       `yaml:"perf" envPrefix:"PERF_"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" envPrefix:"CHECKPOINT_"`
	Catalog    CatalogConfig    `yaml:"catalog" envPrefix:"CATALOG_"`
	Metrics    MetricsConfig    `yaml:"metrics" envPrefix:"METRICS_"`
	Logging    LoggingConfig    `yaml:"logging" envPrefix:"LOG_"`
	Tracing    TracingConfig    `yaml:"tracing" envPrefix:"TRACING_"`
}

type OutputConfig struct {
	Formats      []string `yaml:"formats" env:"FORMATS" envSeparator:","`
	Compression  string   `yaml:"compression" env:"COMPRESSION"`
	SkipExisting bool     `yaml:"skip_existing" env:"SKIP_EXISTING"`
}

type StorageConfig struct {
	Backend  string `yaml:"backend" env:"BACKEND"`
	Bucket   string `yaml:"bucket" env:"BUCKET"`
	Prefix   string `yaml:"prefix" env:"PREFIX"`
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	Region   string `yaml:"region" env:"REGION"`
	URL      string `yaml:"url" env:"URL"`
}

type PerfConfig struct {
	Workers int `yaml:"workers" env:"WORKERS"`
}

type CheckpointConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Dir     string `yaml:"dir" env:"DIR"`
	Resume  bool   `yaml:"resume" env:"RESUME"`
}

type CatalogConfig struct {
	PostgresDSN string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Address string `yaml:"address" env:"ADDRESS"`
}

type LoggingConfig struct {
	Format     string `yaml:"format" env:"FORMAT"`
	Level      string `yaml:"level" env:"LEVEL"`
	File       string `yaml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
}

type TracingConfig struct {
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		OutputRoot:               "data/json",
		WorkDir:                  os.TempDir(),
		ChunkRows:                10000,
		DownsampleRate:           10,
		TelemetrySizeThresholdMB: 5,
		TelemetryKeywords:        []string{"telemetry", "lap_end", "sensor", "vehicle"},
		Output: OutputConfig{
			Formats:     []string{"json"},
			Compression: "none",
		},
		Storage: StorageConfig{
			Backend: "local",
		},
		Perf: PerfConfig{
			Workers: 1,
		},
		Checkpoint: CheckpointConfig{
			Dir: ".telemetry-copier",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Logging: LoggingConfig{
			Format:     "text",
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		Tracing: TracingConfig{
			ServiceName: "telemetry-copier",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// TC_ prefixed environment variables, in that order. An empty path falls
// back to $TELEMETRY_COPIER_CONFIG. Load does not validate; callers apply
// flag overrides first and then call Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
		slog.Debug("loaded config file", "component", "config", "path", path)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.ChunkRows <= 0 {
		errs = append(errs, fmt.Errorf("chunk_rows must be positive, got %d", c.ChunkRows))
	}
	if c.DownsampleRate <= 0 {
		errs = append(errs, fmt.Errorf("downsample_rate must be positive, got %d", c.DownsampleRate))
	}
	if c.TelemetrySizeThresholdMB < 0 {
		errs = append(errs, fmt.Errorf("telemetry_size_threshold_mb must not be negative, got %v", c.TelemetrySizeThresholdMB))
	}
	if len(c.TelemetryKeywords) == 0 {
		errs = append(errs, errors.New("telemetry_keywords must not be empty"))
	}
	if c.Perf.Workers < 1 {
		errs = append(errs, fmt.Errorf("perf.workers must be at least 1, got %d", c.Perf.Workers))
	}

	switch c.Storage.Backend {
	case "local":
		if c.OutputRoot == "" {
			errs = append(errs, errors.New("output_root required for local backend"))
		}
	case "gcs", "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, fmt.Errorf("storage.bucket required for %s backend", c.Storage.Backend))
		}
	case "bucket":
		if c.Storage.URL == "" {
			errs = append(errs, errors.New("storage.url required for bucket backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend: %s", c.Storage.Backend))
	}

	if len(c.Output.Formats) == 0 {
		errs = append(errs, errors.New("output.formats must not be empty"))
	}
	for _, f := range c.Output.Formats {
		if !contains([]string{"json", "parquet"}, strings.ToLower(f)) {
			errs = append(errs, fmt.Errorf("unknown output format: %s", f))
		}
	}
	if !contains([]string{"", "none", "zstd"}, strings.ToLower(c.Output.Compression)) {
		errs = append(errs, fmt.Errorf("unknown compression: %s", c.Output.Compression))
	}
	if !contains([]string{"text", "json"}, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("unknown log format: %s", c.Logging.Format))
	}
	if !contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Logging.Level)) {
		errs = append(errs, fmt.Errorf("unknown log level: %s", c.Logging.Level))
	}
	if c.Checkpoint.Enabled && c.Checkpoint.Dir == "" {
		errs = append(errs, errors.New("checkpoint.dir required when checkpointing is enabled"))
	}

	return errors.Join(errs...)
}

// SizeThresholdBytes returns the telemetry size threshold in bytes.
func (c *Config) SizeThresholdBytes() int64 {
	return int64(c.TelemetrySizeThresholdMB * 1024 * 1024)
}

// OutputStoreConfig maps the storage section onto a storage backend config.
func (c *Config) OutputStoreConfig() storage.StorageConfig {
	return storage.StorageConfig{
		Backend:    c.Storage.Backend,
		LocalDir:   c.OutputRoot,
		GCSBucket:  c.Storage.Bucket,
		S3Bucket:   c.Storage.Bucket,
		S3Endpoint: c.Storage.Endpoint,
		S3Region:   c.Storage.Region,
		BucketURL:  c.Storage.URL,
		Prefix:     c.Storage.Prefix,
	}
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
