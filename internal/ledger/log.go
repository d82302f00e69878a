package ledger

import (
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/epsync/internal/ir"
)

// Sink receives every record and failure as it is logged.
type Sink interface {
	Record(rec ir.TransactionRecord) error
	Fail(f Failure) error
}

// Sequencer hands out strictly increasing sequence numbers.
type Sequencer interface {
	Next() int64
}

// Failure is an entity that could not be reconciled.
type Failure struct {
	EntityType ir.EntityType `json:"entity_type"`
	Name       string        `json:"name"`
	Message    string        `json:"message"`
}

// Log is the append-only transaction log of one run. It is owned by the
// run's goroutine and is not safe for concurrent use.
type Log struct {
	runID    string
	dryRun   bool
	seq      Sequencer
	now      func() time.Time
	logger   *slog.Logger
	sinks    []Sink
	records  []ir.TransactionRecord
	failures []Failure
}

// Option configures a Log.
type Option func(*Log)

// WithDryRun marks every record as a dry-run record.
func WithDryRun(dryRun bool) Option {
	return func(l *Log) {
		l.dryRun = dryRun
	}
}

// WithSequencer replaces the default counter starting at 1.
func WithSequencer(s Sequencer) Option {
	return func(l *Log) {
		l.seq = s
	}
}

// WithNow sets the timestamp source.
func WithNow(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// WithLogger sets the logger used for sink errors.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// WithSinks adds sinks that observe every record and failure.
func WithSinks(sinks ...Sink) Option {
	return func(l *Log) {
		l.sinks = append(l.sinks, sinks...)
	}
}

// New creates an empty log for runID.
func New(runID string, opts ...Option) *Log {
	l := &Log{
		runID:  runID,
		seq:    &counter{},
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RunID returns the run this log belongs to.
func (l *Log) RunID() string {
	return l.runID
}

// DryRun reports whether the log records dry-run decisions.
func (l *Log) DryRun() bool {
	return l.dryRun
}

// Record stamps rec with the run ID, the next sequence number, the dry-run
// flag, a timestamp and its content ID, appends it and returns it.
// It never fails.
func (l *Log) Record(rec ir.TransactionRecord) ir.TransactionRecord {
	rec.RunID = l.runID
	rec.Seq = l.seq.Next()
	rec.DryRun = l.dryRun
	rec.Timestamp = l.now().UTC()

	id, err := ir.TransactionID(rec)
	if err != nil {
		l.logger.Warn("transaction id", "entity_type", rec.EntityType, "name", rec.Name, "error", err)
	}
	rec.ID = id

	l.records = append(l.records, rec)
	for _, s := range l.sinks {
		if err := s.Record(rec); err != nil {
			l.logger.Warn("ledger sink failed", "seq", rec.Seq, "error", err)
		}
	}
	return rec
}

// Fail records that name could not be reconciled.
func (l *Log) Fail(t ir.EntityType, name string, err error) {
	f := Failure{EntityType: t, Name: name}
	if err != nil {
		f.Message = err.Error()
	}
	l.failures = append(l.failures, f)
	for _, s := range l.sinks {
		if serr := s.Fail(f); serr != nil {
			l.logger.Warn("ledger sink failed", "entity_type", t, "name", name, "error", serr)
		}
	}
}

// Records returns a copy of the records in sequence order.
func (l *Log) Records() []ir.TransactionRecord {
	return slices.Clone(l.records)
}

// Failures returns a copy of the recorded failures.
func (l *Log) Failures() []Failure {
	return slices.Clone(l.failures)
}

// Summarize folds the log into a Summary.
func (l *Log) Summarize() Summary {
	s := Summary{
		RunID:    l.runID,
		DryRun:   l.dryRun,
		Counts:   map[ir.EntityType]map[ir.Action]int{},
		Failures: []Failure{},
	}
	for _, rec := range l.records {
		s.add(rec.EntityType, rec.Action, 1)
		if rec.Recovered {
			s.Recovered++
		}
	}
	s.Failures = append(s.Failures, l.failures...)
	return s
}

type counter struct {
	n int64
}

func (c *counter) Next() int64 {
	c.n++
	return c.n
}
