package engine

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-version"

	"github.com/roach88/epsync/internal/catalog"
	"github.com/roach88/epsync/internal/compare"
	"github.com/roach88/epsync/internal/ir"
)

// VersionStrategy decides what happens to a declared version that is not
// greater than the latest existing one.
type VersionStrategy string

const (
	// StrategyExact rejects it with INVALID_VERSION.
	StrategyExact VersionStrategy = "exact"
	// StrategyBumpPatch creates the next patch version when settings differ.
	StrategyBumpPatch VersionStrategy = "bump_patch"
	// StrategyBumpMinor creates the next minor version when settings differ.
	StrategyBumpMinor VersionStrategy = "bump_minor"
)

// ParseVersionStrategy converts a config string to a VersionStrategy.
// The empty string is StrategyExact.
func ParseVersionStrategy(s string) (VersionStrategy, error) {
	switch VersionStrategy(s) {
	case "", StrategyExact:
		return StrategyExact, nil
	case StrategyBumpPatch, StrategyBumpMinor:
		return VersionStrategy(s), nil
	default:
		return "", fmt.Errorf("unknown version strategy %q: must be exact, bump_patch or bump_minor", s)
	}
}

// VersionResult is the outcome of one declared version.
type VersionResult struct {
	Version string
	Action  ir.Action
	Entity  *ir.Snapshot
	Record  ir.TransactionRecord
}

type existingVersion struct {
	parsed *version.Version
	snap   ir.Snapshot
}

// versionTask reconciles the declared versions of one parent entity.
// Versions are only ever created: an existing version is immutable.
type versionTask struct {
	run        *Run
	typ        ir.EntityType
	name       string
	parentID   string // empty when the parent does not exist yet
	comparator compare.Comparator
	entities   catalog.EntityClient
}

func newVersionTask(run *Run, parentType ir.EntityType, name, parentID string) (*versionTask, bool) {
	vt, ok := parentType.VersionType()
	if !ok {
		return nil, false
	}
	return &versionTask{
		run:        run,
		typ:        vt,
		name:       name,
		parentID:   parentID,
		comparator: compare.MustFor(vt),
		entities:   run.Client.Entities(vt),
	}, true
}

func (t *versionTask) execute(ctx context.Context, specs []ir.VersionSpec) ([]VersionResult, error) {
	existing, err := t.list(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]VersionResult, 0, len(specs))
	for _, vs := range specs {
		res, created, err := t.one(ctx, vs, existing)
		if err != nil {
			return results, err
		}
		if created != nil {
			existing = append(existing, *created)
		}
		results = append(results, res)
	}
	return results, nil
}

func (t *versionTask) list(ctx context.Context) ([]existingVersion, error) {
	if t.parentID == "" {
		return nil, nil
	}
	snaps, err := catalog.All(ctx, t.entities, catalog.Filter{ParentID: t.parentID})
	if err != nil {
		return nil, fmt.Errorf("list %s of %s: %w", t.typ, t.name, err)
	}
	out := make([]existingVersion, 0, len(snaps))
	for _, s := range snaps {
		v, err := version.NewSemver(s.Version)
		if err != nil {
			t.run.Logger.Warn("ignoring unparsable remote version", "entity_type", t.typ, "name", t.name, "version", s.Version)
			continue
		}
		out = append(out, existingVersion{parsed: v, snap: s})
	}
	return out, nil
}

// one decides and applies a single declared version. It returns the
// created version, if any, so later specs see it.
func (t *versionTask) one(ctx context.Context, vs ir.VersionSpec, existing []existingVersion) (VersionResult, *existingVersion, error) {
	declared, err := version.NewSemver(vs.Version)
	if err != nil {
		return VersionResult{}, nil, NewInvalidVersionError(t.typ, t.name, vs.Version, "not a semantic version")
	}

	var latest, same *existingVersion
	for i := range existing {
		e := &existing[i]
		if e.parsed.Equal(declared) {
			same = e
		}
		if latest == nil || e.parsed.GreaterThan(latest.parsed) {
			latest = e
		}
	}

	if same != nil {
		if t.run.Strategy == StrategyExact {
			return t.matchExisting(vs, same)
		}
		changes, err := t.comparator.Diff(vs.Settings, same.snap.Settings)
		if err != nil {
			return VersionResult{}, nil, err
		}
		if len(changes) == 0 {
			return t.noop(same), nil, nil
		}
		// A drifted existing version is superseded by a bump of the latest.
	} else if latest == nil || declared.GreaterThan(latest.parsed) {
		return t.create(ctx, vs.Version, vs.Settings)
	}

	switch t.run.Strategy {
	case StrategyBumpPatch, StrategyBumpMinor:
		changes, err := t.comparator.Diff(vs.Settings, latest.snap.Settings)
		if err != nil {
			return VersionResult{}, nil, err
		}
		if len(changes) == 0 {
			return t.noop(latest), nil, nil
		}
		next := bump(latest.parsed, t.run.Strategy)
		t.run.Logger.Info("bumping version", "entity_type", t.typ, "name", t.name,
			"declared", vs.Version, "latest", latest.snap.Version, "next", next)
		return t.create(ctx, next, vs.Settings)
	default:
		return VersionResult{}, nil, NewInvalidVersionError(t.typ, t.name, vs.Version,
			fmt.Sprintf("not greater than latest version %s", latest.snap.Version))
	}
}

func (t *versionTask) matchExisting(vs ir.VersionSpec, e *existingVersion) (VersionResult, *existingVersion, error) {
	changes, err := t.comparator.Diff(vs.Settings, e.snap.Settings)
	if err != nil {
		return VersionResult{}, nil, err
	}
	if len(changes) > 0 {
		t.run.Logger.Debug("version drift", "entity_type", t.typ, "name", t.name, "diff", compare.Report(changes))
		return VersionResult{}, nil, NewInvalidVersionError(t.typ, t.name, vs.Version,
			"exists with different settings and versions are immutable")
	}
	return t.noop(e), nil, nil
}

func (t *versionTask) noop(e *existingVersion) VersionResult {
	snap := e.snap
	rec := t.run.Log.Record(ir.TransactionRecord{
		EntityType: t.typ,
		Name:       t.name,
		Version:    snap.Version,
		Action:     ir.NoOp,
		RemoteID:   snap.ID,
	})
	return VersionResult{Version: snap.Version, Action: ir.NoOp, Entity: &snap, Record: rec}
}

func (t *versionTask) create(ctx context.Context, v string, settings ir.Settings) (VersionResult, *existingVersion, error) {
	projected, err := t.comparator.Project(settings)
	if err != nil {
		return VersionResult{}, nil, fmt.Errorf("%s %s@%s: %w", t.typ, t.name, v, err)
	}
	parsed, err := version.NewSemver(v)
	if err != nil {
		return VersionResult{}, nil, NewInvalidVersionError(t.typ, t.name, v, "not a semantic version")
	}

	if t.run.DryRun || t.parentID == "" {
		rec := t.run.Log.Record(ir.TransactionRecord{EntityType: t.typ, Name: t.name, Version: v, Action: ir.Create})
		planned := ir.Snapshot{Version: v, ParentID: t.parentID, Settings: projected}
		return VersionResult{Version: v, Action: ir.Create, Record: rec}, &existingVersion{parsed: parsed, snap: planned}, nil
	}

	snap, err := t.entities.Create(context.WithoutCancel(ctx), catalog.Draft{
		ParentID: t.parentID,
		Version:  v,
		Settings: stampRunID(t.run, projected),
	})
	if err != nil {
		return VersionResult{}, nil, fmt.Errorf("create %s %s@%s: %w", t.typ, t.name, v, err)
	}
	rec := t.run.Log.Record(ir.TransactionRecord{
		EntityType: t.typ,
		Name:       t.name,
		Version:    v,
		Action:     ir.Create,
		RemoteID:   snap.ID,
	})
	return VersionResult{Version: v, Action: ir.Create, Entity: &snap, Record: rec}, &existingVersion{parsed: parsed, snap: snap}, nil
}

// bump returns the version after latest for the bump strategies.
func bump(latest *version.Version, s VersionStrategy) string {
	seg := latest.Segments()
	for len(seg) < 3 {
		seg = append(seg, 0)
	}
	if s == StrategyBumpMinor {
		return fmt.Sprintf("%d.%d.%d", seg[0], seg[1]+1, 0)
	}
	return fmt.Sprintf("%d.%d.%d", seg[0], seg[1], seg[2]+1)
}
