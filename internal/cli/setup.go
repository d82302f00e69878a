package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/epsync/internal/catalog"
	"github.com/roach88/epsync/internal/config"
	"github.com/roach88/epsync/internal/ledger"
	"github.com/roach88/epsync/internal/logging"
	"github.com/roach88/epsync/internal/store"
)

// loadConfig reads the config file at path, or returns the defaults when
// path is empty.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

// newLogger builds the run logger from the config; --verbose forces debug.
func newLogger(cfg config.Config, opts *RootOptions, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	logger, err := logging.New(w, logging.Verbosity(level, opts.Verbose), cfg.Log.Format)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return logger, nil
}

// newRESTClient builds the catalog client for one configured endpoint.
func newRESTClient(cfg config.Config, name string, logger *slog.Logger) (*catalog.RESTClient, error) {
	if err := cfg.RequireEndpoint(name); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	e := cfg.Source
	if name == "target" {
		e = cfg.Target
	}
	api, err := catalog.ParseAPIVersion(e.APIVersion)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid config: %s.api_version", name), err)
	}
	client, err := catalog.NewRESTClient(e.BaseURL, e.Token,
		catalog.WithAPIVersion(api),
		catalog.WithRetryMax(e.RetryMax),
		catalog.WithListPageSize(e.PageSize),
		catalog.WithRESTLogger(logger.With("endpoint", name)),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("%s client", name), err)
	}
	return client, nil
}

// openStore opens the run database at path. --db overrides store.path;
// an empty result means runs are not persisted and nil is returned.
func openStore(flagPath string, cfg config.Config) (*store.Store, error) {
	path := flagPath
	if path == "" {
		path = cfg.Store.Path
	}
	if path == "" {
		return nil, nil
	}
	st, err := store.Open(path, store.WithBusyTimeout(time.Duration(cfg.Store.BusyTimeoutMS)*time.Millisecond))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func closeStore(st *store.Store, logger *slog.Logger) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil {
		logger.Error("error closing database", "error", err)
	}
}

// runMetrics is the optional Prometheus textfile sink.
type runMetrics struct {
	metrics *ledger.Metrics
	path    string
}

func newRunMetrics(cfg config.Config) *runMetrics {
	if cfg.Metrics.Textfile == "" {
		return nil
	}
	return &runMetrics{metrics: ledger.NewMetrics(), path: cfg.Metrics.Textfile}
}

// sinks returns the ledger sinks to attach; none when metrics are off.
func (m *runMetrics) sinks() []ledger.Sink {
	if m == nil {
		return nil
	}
	return []ledger.Sink{m.metrics}
}

func (m *runMetrics) write(logger *slog.Logger) {
	if m == nil {
		return
	}
	if err := m.metrics.WriteTextfile(m.path); err != nil {
		logger.Error("writing metrics textfile", "path", m.path, "error", err)
	}
}

// signalContext returns the command context, cancelled on SIGINT or
// SIGTERM.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Warn("received signal, finishing in-flight call", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
