package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"

	"github.com/roach88/epsync/internal/catalog"
	"github.com/roach88/epsync/internal/engine"
	"github.com/roach88/epsync/internal/ir"
	"github.com/roach88/epsync/internal/ledger"
	"github.com/roach88/epsync/internal/store"
)

// tier is a group of source types that only reference earlier tiers.
type tier struct {
	name  string
	types []ir.EntityType
}

var tiers = []tier{
	{name: "domains", types: []ir.EntityType{ir.TypeApplicationDomain}},
	{name: "enums and schemas", types: []ir.EntityType{ir.TypeEnum, ir.TypeSchema}},
	{name: "events", types: []ir.EntityType{ir.TypeEvent}},
	{name: "applications and event apis", types: []ir.EntityType{ir.TypeApplication, ir.TypeEventAPI}},
}

// Manager migrates a source catalog into a target catalog.
type Manager struct {
	source catalog.Client
	target catalog.Client
	opts   Options

	runID    string
	runIDs   engine.IDGenerator
	issueIDs IssueIDGenerator
	logger   *slog.Logger
	now      func() time.Time
	sinks    []ledger.Sink
	store    *store.Store
}

// New creates a manager. source is only read; an absent run never reads it.
func New(source, target catalog.Client, opts Options, mopts ...Option) *Manager {
	m := &Manager{
		source:   source,
		target:   target,
		opts:     opts,
		runIDs:   engine.UUIDv7Generator{},
		issueIDs: ShortIDGenerator{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range mopts {
		opt(m)
	}
	return m
}

// migration is the state of one Run. It is owned by the run's goroutine.
type migration struct {
	m      *Manager
	run    *engine.Run
	ids    *IDMap
	issues *Issues
	tr     translator
	counts map[ir.EntityType]*Counts
	errs   *multierror.Error
	logger *slog.Logger

	enumDomainDone bool
	enumDomainErr  error
}

// Run executes the migration, or the absent run when Options.Absent is
// set. It always returns a summary once the run has started.
//
// With continue-on-error, per-entity failures are in the summary and the
// returned error is nil. The returned error is set when the run aborted:
// on cancellation, or on the first failure with FailFast.
func (m *Manager) Run(ctx context.Context) (*Summary, error) {
	kind := store.KindMigrate
	if m.opts.Absent {
		kind = store.KindAbsent
		if m.opts.AbsentRunID == "" && len(m.opts.Prefix) < minPrefixLen {
			return nil, &InvalidPrefixError{Prefix: m.opts.Prefix, Min: minPrefixLen}
		}
	}

	mg, err := m.begin(ctx, kind)
	if err != nil {
		return nil, err
	}

	var runErr error
	var deleted, remaining []string
	switch {
	case m.opts.Absent && m.opts.AbsentRunID != "":
		deleted, runErr = mg.absentByRunID(ctx, m.opts.AbsentRunID)
	case m.opts.Absent:
		deleted, remaining, runErr = mg.absentByPrefix(ctx, m.opts.Prefix)
	default:
		runErr = mg.present(ctx)
	}
	if runErr != nil && !mg.recorded(runErr) {
		mg.errs = multierror.Append(mg.errs, runErr)
	}

	sum := mg.summary()
	sum.Deleted = deleted
	sum.Remaining = remaining
	mg.persist(ctx, sum)

	mg.logger.Info("migration finished",
		"migrated", sum.Migrated(), "failed", sum.Failed(), "skipped", sum.Skipped(),
		"mutations", sum.Ledger.Mutations(), "mapped", mg.ids.Len(), "dry_run", sum.DryRun)
	return sum, runErr
}

func (m *Manager) begin(ctx context.Context, kind store.RunKind) (*migration, error) {
	runID := m.runID
	if runID == "" {
		runID = m.runIDs.Generate()
	}

	sinks := append([]ledger.Sink{}, m.sinks...)
	if m.store != nil {
		err := m.store.BeginRun(ctx, store.Run{
			ID:        runID,
			Kind:      kind,
			DryRun:    m.opts.DryRun,
			StartedAt: m.now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, m.store.Sink(ctx, runID))
	}

	run := engine.NewRun(m.target,
		engine.WithRunID(runID),
		engine.WithDryRun(m.opts.DryRun),
		engine.WithLogger(m.logger),
		engine.WithNow(m.now),
		engine.WithSinks(sinks...),
		engine.WithVersionStrategy(m.opts.Strategy),
		engine.WithRunIDKey(RunIDKey),
	)
	ids := NewIDMap()
	return &migration{
		m:      m,
		run:    run,
		ids:    ids,
		issues: newIssues(m.issueIDs),
		tr:     translator{opts: m.opts, ids: ids},
		counts: map[ir.EntityType]*Counts{},
		logger: run.Logger,
	}, nil
}

// present runs the tiers in order.
func (mg *migration) present(ctx context.Context) error {
	for _, tr := range tiers {
		mg.logger.Info("migrating tier", "tier", tr.name)
		for _, t := range tr.types {
			if err := mg.migrateType(ctx, t); err != nil {
				return err
			}
		}
	}
	return nil
}

// migrateType drains the source for type t and migrates each entity. It
// returns an error only when the run must abort.
func (mg *migration) migrateType(ctx context.Context, t ir.EntityType) error {
	items, err := catalog.All(ctx, mg.m.source.Entities(t), catalog.Filter{})
	if err != nil {
		var unsupported *catalog.UnsupportedError
		if errors.As(err, &unsupported) {
			mg.logger.Debug("source does not serve entity type", "entity_type", t)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("migration aborted listing %s: %w", t, ctxErr)
		}
		err = fmt.Errorf("list source %s: %w", t, err)
		mg.run.Log.Fail(t, "", err)
		mg.issues.Add(t, ir.Snapshot{}, err)
		mg.errs = multierror.Append(mg.errs, err)
		if mg.m.opts.FailFast {
			return err
		}
		return nil
	}
	mg.logger.Info("migrating entities", "entity_type", t, "count", len(items))

	if t == ir.TypeApplicationDomain && lo.SomeBy(items, hasTopicDomain) {
		if err := mg.presentEnumDomain(ctx); err != nil && mg.m.opts.FailFast {
			return err
		}
	}
	if t == ir.TypeEnum && lo.SomeBy(items, func(s ir.Snapshot) bool { return s.ParentID == "" }) {
		if err := mg.presentEnumDomain(ctx); err != nil && mg.m.opts.FailFast {
			return err
		}
	}

	for _, src := range items {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("migration aborted before %s %s: %w", t, src.Name, err)
		}
		err := mg.migrateOne(ctx, t, src)
		if err != nil && mg.m.opts.FailFast && !IsUnresolvedReference(err) {
			return err
		}
	}
	return nil
}

// hasTopicDomain reports whether a source domain declares a topic domain.
func hasTopicDomain(s ir.Snapshot) bool {
	td, _ := s.Settings["topicDomain"].(string)
	return td != ""
}

// presentEnumDomain reconciles the shared enum domain once per run and
// maps it under sharedEnumDomainKey. On failure every domain with a
// topic domain and every enum without a domain is skipped.
func (mg *migration) presentEnumDomain(ctx context.Context) error {
	if mg.enumDomainDone {
		return mg.enumDomainErr
	}
	mg.enumDomainDone = true
	mg.enumDomainErr = mg.reconcileEnumDomain(ctx)
	return mg.enumDomainErr
}

func (mg *migration) reconcileEnumDomain(ctx context.Context) error {
	spec := mg.tr.sharedEnumDomain()
	res, err := engine.NewTask(mg.run, spec).Execute(ctx)
	if err != nil {
		mg.issues.Add(ir.TypeApplicationDomain, ir.Snapshot{Name: spec.Name}, err)
		mg.errs = multierror.Append(mg.errs, err)
		return err
	}
	mg.put(sharedEnumDomainKey, res.Entity, res.Action)
	return nil
}

// migrateOne translates and reconciles one source entity. Unresolved
// references skip it; any other error fails it.
func (mg *migration) migrateOne(ctx context.Context, t ir.EntityType, src ir.Snapshot) error {
	counts := mg.countsFor(t)

	p, err := mg.tr.translate(t, src)
	var taskOpts []engine.TaskOption
	if err == nil && p.parentKey != "" {
		parentID, planned, rerr := mg.ids.Resolve(t, src.ID, p.parentKey)
		switch {
		case rerr != nil:
			err = rerr
		case planned:
			taskOpts = append(taskOpts, engine.WithPendingParent())
		default:
			taskOpts = append(taskOpts, engine.WithParentID(parentID))
		}
	} else if err == nil && t != ir.TypeApplicationDomain {
		err = &UnresolvedReferenceError{EntityType: t, SourceID: src.ID}
	}

	if err != nil {
		if IsUnresolvedReference(err) {
			counts.Skipped++
			mg.logger.Warn("skipping entity", "entity_type", t, "name", src.Name, "source_id", src.ID, "reason", err)
		} else {
			counts.Failed++
			mg.run.Log.Fail(t, src.Name, err)
			mg.errs = multierror.Append(mg.errs, err)
			mg.logger.Error("entity failed", "entity_type", t, "name", src.Name, "source_id", src.ID, "error", err)
		}
		mg.issues.Add(t, src, err)
		return err
	}

	res, err := engine.NewTask(mg.run, p.spec, taskOpts...).Execute(ctx)
	if err != nil {
		counts.Failed++
		mg.issues.Add(t, src, err)
		err = fmt.Errorf("source %s %s: %w", t, src.ID, err)
		mg.errs = multierror.Append(mg.errs, err)
		return err
	}

	mg.put(src.ID, res.Entity, res.Action)
	if n := len(res.Versions); n > 0 {
		v := res.Versions[n-1]
		mg.put(VersionKey(src.ID), v.Entity, v.Action)
	}
	counts.Migrated++
	return nil
}

// put maps key to entity, or marks it planned for a dry-run create. An
// entity that vanished leaves key unmapped so its dependents skip.
func (mg *migration) put(key string, entity *ir.Snapshot, action ir.Action) {
	switch {
	case entity != nil:
		mg.ids.Put(key, entity.ID)
	case action == ir.Create:
		mg.ids.Plan(key)
	}
}

// recorded reports whether err is already among the run's failures.
func (mg *migration) recorded(err error) bool {
	return mg.errs != nil && slices.Contains(mg.errs.Errors, err)
}

func (mg *migration) countsFor(t ir.EntityType) *Counts {
	c, ok := mg.counts[t]
	if !ok {
		c = &Counts{}
		mg.counts[t] = c
	}
	return c
}

func (mg *migration) summary() *Summary {
	counts := make(map[ir.EntityType]Counts, len(mg.counts))
	for t, c := range mg.counts {
		counts[t] = *c
	}
	return &Summary{
		RunID:  mg.run.ID,
		DryRun: mg.run.DryRun,
		Absent: mg.m.opts.Absent,
		Ledger: mg.run.Summary(),
		Counts: counts,
		Issues: mg.issues.All(),
		IDMap:  mg.ids.Entries(),
		Err:    mg.errs.ErrorOrNil(),
	}
}

// persist writes the ID Map, the issues and the final summary. The run's
// context may be cancelled by now; the writes still complete. Store
// errors are logged, never returned.
func (mg *migration) persist(ctx context.Context, sum *Summary) {
	s := mg.m.store
	if s == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := s.WriteIDMap(ctx, sum.RunID, sum.IDMap); err != nil {
		mg.logger.Warn("persist id map", "error", err)
	}
	if err := s.WriteIssues(ctx, sum.RunID, toStoreIssues(sum.Issues)); err != nil {
		mg.logger.Warn("persist run issues", "error", err)
	}
	if err := s.FinishRun(ctx, sum.RunID, sum.Ledger, mg.m.now().UTC()); err != nil {
		mg.logger.Warn("finish run", "error", err)
	}
}
