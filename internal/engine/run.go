package engine

import (
	"log/slog"
	"time"

	"github.com/roach88/epsync/internal/catalog"
	"github.com/roach88/epsync/internal/ledger"
)

// Run is the explicit context of one execution. It is built once, passed
// by pointer to every task, and owned by a single goroutine.
type Run struct {
	// ID identifies the run in the ledger and on created objects.
	ID string

	// Client is the catalog being reconciled.
	Client catalog.Client

	// Log receives one record per task step.
	Log *ledger.Log

	// DryRun suppresses every mutating call.
	DryRun bool

	// Clock sequences the run's records.
	Clock *Clock

	// Logger is the run's structured logger.
	Logger *slog.Logger

	// RecreateVanished turns an UPDATE whose target vanished into a CREATE
	// instead of a recovered NOOP.
	RecreateVanished bool

	// Strategy decides how versions at or below the latest are handled.
	Strategy VersionStrategy

	// RunIDKey, when set, is the settings key stamped with the run ID on
	// every created entity.
	RunIDKey string
}

// RunOption configures a Run.
type RunOption func(*runConfig)

type runConfig struct {
	run   Run
	idGen IDGenerator
	now   func() time.Time
	sinks []ledger.Sink
}

// WithRunID fixes the run ID.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.run.ID = id
	}
}

// WithIDGenerator sets the generator used when no run ID is fixed.
func WithIDGenerator(g IDGenerator) RunOption {
	return func(c *runConfig) {
		c.idGen = g
	}
}

// WithDryRun enables dry-run mode.
func WithDryRun(dryRun bool) RunOption {
	return func(c *runConfig) {
		c.run.DryRun = dryRun
	}
}

// WithLogger sets the run logger.
func WithLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.run.Logger = logger
	}
}

// WithNow sets the timestamp source for ledger records.
func WithNow(now func() time.Time) RunOption {
	return func(c *runConfig) {
		c.now = now
	}
}

// WithSinks adds ledger sinks such as metrics or the store.
func WithSinks(sinks ...ledger.Sink) RunOption {
	return func(c *runConfig) {
		c.sinks = append(c.sinks, sinks...)
	}
}

// WithRecreateVanished creates entities that disappear between resolve
// and update within the same run.
func WithRecreateVanished() RunOption {
	return func(c *runConfig) {
		c.run.RecreateVanished = true
	}
}

// WithVersionStrategy sets the version strategy. Default StrategyExact.
func WithVersionStrategy(s VersionStrategy) RunOption {
	return func(c *runConfig) {
		c.run.Strategy = s
	}
}

// WithRunIDKey stamps the run ID under key on created entities.
func WithRunIDKey(key string) RunOption {
	return func(c *runConfig) {
		c.run.RunIDKey = key
	}
}

// NewRun creates the run context and its transaction log.
func NewRun(client catalog.Client, opts ...RunOption) *Run {
	cfg := &runConfig{
		run: Run{
			Client:   client,
			Clock:    NewClock(),
			Logger:   slog.Default(),
			Strategy: StrategyExact,
		},
		idGen: UUIDv7Generator{},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	r := cfg.run
	if r.ID == "" {
		r.ID = cfg.idGen.Generate()
	}
	r.Logger = r.Logger.With("run_id", r.ID)
	r.Log = ledger.New(r.ID,
		ledger.WithDryRun(r.DryRun),
		ledger.WithSequencer(r.Clock),
		ledger.WithNow(cfg.now),
		ledger.WithLogger(r.Logger),
		ledger.WithSinks(cfg.sinks...),
	)
	return &r
}

// Summary summarizes the run's transaction log.
func (r *Run) Summary() ledger.Summary {
	return r.Log.Summarize()
}
