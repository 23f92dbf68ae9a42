package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/telemetry-copier/internal/config"
	"github.com/withObsrvr/telemetry-copier/internal/copier"
	"github.com/withObsrvr/telemetry-copier/internal/logging"
	"github.com/withObsrvr/telemetry-copier/internal/metadata"
	"github.com/withObsrvr/telemetry-copier/internal/metrics"
	"github.com/withObsrvr/telemetry-copier/internal/storage"
	"github.com/withObsrvr/telemetry-copier/internal/tracing"
)

// loadConfig loads the configuration and applies flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if opts.OutputRoot != "" {
		cfg.OutputRoot = opts.OutputRoot
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config, cmd *cobra.Command) io.Closer {
	return logging.Setup(logging.Config{
		Format:     cfg.Logging.Format,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Output:     cmd.ErrOrStderr(),
	})
}

var metricsOnce sync.Once

// startMetrics registers the metrics and serves them in the background.
func startMetrics(address string) {
	metricsOnce.Do(func() {
		metrics.Init("")
		log := logging.Component("metrics")
		go func() {
			log.Info("metrics server listening", "address", address)
			if err := metrics.StartServer(address); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	})
}

// runtime holds everything a conversion command needs.
type runtime struct {
	cfg      *config.Config
	copier   *copier.Copier
	closers  []func() error
	shutdown func(context.Context) error
}

// newRuntime wires configuration, logging, metrics, tracing, the catalog and
// the output store into a Copier.
func newRuntime(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, shutdown: func(context.Context) error { return nil }}
	logCloser := setupLogging(cfg, cmd)
	rt.closers = append(rt.closers, logCloser.Close)

	slog.Info("telemetry copier starting", "version", copier.Version, "git_sha", copier.GitSHA)

	if cfg.Metrics.Enabled {
		startMetrics(cfg.Metrics.Address)
	}

	shutdown, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     copier.Version,
	})
	if err != nil {
		rt.Close()
		return nil, WrapExitError(ExitCommandError, "setup tracing", err)
	}
	rt.shutdown = shutdown

	meta, err := metadata.NewWriter(ctx, metadata.CatalogConfig{PostgresDSN: cfg.Catalog.PostgresDSN})
	if err != nil {
		rt.Close()
		return nil, WrapExitError(ExitCommandError, "connect catalog", err)
	}
	rt.closers = append([]func() error{meta.Close}, rt.closers...)

	store, err := storage.NewOutputStore(ctx, cfg.OutputStoreConfig())
	if err != nil {
		rt.Close()
		return nil, WrapExitError(ExitCommandError, "create output store", err)
	}
	rt.closers = append([]func() error{store.Close}, rt.closers...)

	rt.copier = copier.New(*cfg, store, meta)
	return rt, nil
}

// Close flushes spans and releases the store, catalog and log file.
func (rt *runtime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs := []error{rt.shutdown(ctx)}
	for _, closeFn := range rt.closers {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}
