package migrate

import (
	"log/slog"
	"time"

	"github.com/roach88/epsync/internal/config"
	"github.com/roach88/epsync/internal/engine"
	"github.com/roach88/epsync/internal/ledger"
	"github.com/roach88/epsync/internal/store"
)

// RunIDKey is the settings key stamped with the run ID on every created
// target entity. It is not a recognized key, so it never causes drift.
const RunIDKey = "runId"

// MaxAbsentPasses bounds the delete passes of an absent run.
const MaxAbsentPasses = 10

// Options are the migration settings taken from the config file.
type Options struct {
	// DryRun decides and records actions without mutating the target.
	DryRun bool

	// FailFast aborts at the first failed entity instead of recording a
	// run issue and continuing.
	FailFast bool

	// Absent deletes a previous migration instead of running one.
	Absent bool

	// AbsentRunID, when set, makes an absent run delete what that run
	// created instead of every prefixed domain.
	AbsentRunID string

	// Prefix is prepended to every target domain name.
	Prefix string

	// InitialVersion is the version created for each migrated object.
	InitialVersion string

	// Strategy handles an existing version that differs.
	Strategy engine.VersionStrategy

	// StateID is the target lifecycle state of created versions.
	StateID string

	// EnumDomainName names the shared domain all enums land in. It takes
	// the prefix like every other domain.
	EnumDomainName string
}

// FromConfig builds Options from a loaded config.
func FromConfig(c config.Config) (Options, error) {
	strategy, err := engine.ParseVersionStrategy(c.Migrate.Versions.Strategy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		DryRun:         c.DryRun(),
		FailFast:       c.FailFast(),
		Absent:         c.Absent(),
		Prefix:         c.Migrate.Prefix,
		InitialVersion: c.Migrate.Versions.InitialVersion,
		Strategy:       strategy,
		StateID:        c.StateID(),
		EnumDomainName: c.Migrate.Enums.ApplicationDomainName,
	}, nil
}

// DefaultOptions returns the options of the default config.
func DefaultOptions() Options {
	opts, err := FromConfig(config.Default())
	if err != nil {
		panic(err)
	}
	return opts
}

// Option configures a Manager.
type Option func(*Manager)

// WithRunID fixes the run ID.
func WithRunID(id string) Option {
	return func(m *Manager) {
		m.runID = id
	}
}

// WithIDGenerator sets the run ID generator. Default UUIDv7.
func WithIDGenerator(g engine.IDGenerator) Option {
	return func(m *Manager) {
		m.runIDs = g
	}
}

// WithIssueIDGenerator sets the run issue ID generator.
func WithIssueIDGenerator(g IssueIDGenerator) Option {
	return func(m *Manager) {
		m.issueIDs = g
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithNow sets the timestamp source.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithSinks adds ledger sinks such as metrics.
func WithSinks(sinks ...ledger.Sink) Option {
	return func(m *Manager) {
		m.sinks = append(m.sinks, sinks...)
	}
}

// WithStore persists the run, its ledger, the ID Map and the run issues.
func WithStore(s *store.Store) Option {
	return func(m *Manager) {
		m.store = s
	}
}
