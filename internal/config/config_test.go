package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10000, cfg.ChunkRows)
	assert.Equal(t, 10, cfg.DownsampleRate)
	assert.Equal(t, int64(5*1024*1024), cfg.SizeThresholdBytes())
	assert.Equal(t, []string{"telemetry", "lap_end", "sensor", "vehicle"}, cfg.TelemetryKeywords)
	assert.Equal(t, []string{"json"}, cfg.Output.Formats)
	assert.Equal(t, 1, cfg.Perf.Workers)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copier.yaml")
	content := `
output_root: /srv/json
chunk_rows: 5000
telemetry_keywords: [telemetry, gps]
output:
  formats: [json, parquet]
  compression: zstd
storage:
  backend: s3
  bucket: race-data
  region: us-east-1
perf:
  workers: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("TC_CHUNK_ROWS", "2500")
	t.Setenv("TC_STORAGE_PREFIX", "converted/")
	t.Setenv("TC_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/srv/json", cfg.OutputRoot)
	assert.Equal(t, 2500, cfg.ChunkRows, "env overrides file")
	assert.Equal(t, 10, cfg.DownsampleRate, "default survives")
	assert.Equal(t, []string{"telemetry", "gps"}, cfg.TelemetryKeywords)
	assert.Equal(t, []string{"json", "parquet"}, cfg.Output.Formats)
	assert.Equal(t, "zstd", cfg.Output.Compression)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "converted/", cfg.Storage.Prefix)
	assert.Equal(t, 4, cfg.Perf.Workers)
	assert.Equal(t, "debug", cfg.Logging.Level)

	sc := cfg.OutputStoreConfig()
	assert.Equal(t, "race-data", sc.S3Bucket)
	assert.Equal(t, "us-east-1", sc.S3Region)
	assert.Equal(t, "converted/", sc.Prefix)
}

func TestLoadConfigFileFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copier.yaml")
	require.NoError(t, os.WriteFile(path, []byte("downsample_rate: 25\n"), 0644))
	t.Setenv(ConfigFileEnv, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.DownsampleRate)
}

func TestLoadListFromEnv(t *testing.T) {
	t.Setenv("TC_ARCHIVES", "a.zip,b.zip")
	t.Setenv("TC_TELEMETRY_KEYWORDS", "sensor")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.zip", "b.zip"}, cfg.Archives)
	assert.Equal(t, []string{"sensor"}, cfg.TelemetryKeywords)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk_rows: [1, 2"), 0644))
	_, err = Load(path)
	assert.Error(t, err)

	t.Setenv("TC_CHUNK_ROWS", "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk rows", func(c *Config) { c.ChunkRows = 0 }},
		{"negative rate", func(c *Config) { c.DownsampleRate = -1 }},
		{"negative threshold", func(c *Config) { c.TelemetrySizeThresholdMB = -5 }},
		{"no keywords", func(c *Config) { c.TelemetryKeywords = nil }},
		{"no workers", func(c *Config) { c.Perf.Workers = 0 }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "ftp" }},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = "gcs" }},
		{"bucket without url", func(c *Config) { c.Storage.Backend = "bucket" }},
		{"local without root", func(c *Config) { c.OutputRoot = "" }},
		{"unknown format", func(c *Config) { c.Output.Formats = []string{"xml"} }},
		{"no formats", func(c *Config) { c.Output.Formats = nil }},
		{"unknown compression", func(c *Config) { c.Output.Compression = "lz4" }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"checkpoint without dir", func(c *Config) {
			c.Checkpoint.Enabled = true
			c.Checkpoint.Dir = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.ChunkRows = 0
	cfg.DownsampleRate = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_rows")
	assert.Contains(t, err.Error(), "downsample_rate")
}
