package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"

	"github.com/roach88/epsync/internal/catalog"
	"github.com/roach88/epsync/internal/config"
	"github.com/roach88/epsync/internal/engine"
	"github.com/roach88/epsync/internal/ir"
)

const minPrefixLen = config.MinPrefixLen

// contentTypes are the object types inside a domain, in delete order:
// referencing objects before the objects they reference.
var contentTypes = []ir.EntityType{
	ir.TypeApplication,
	ir.TypeEventAPI,
	ir.TypeEvent,
	ir.TypeSchema,
	ir.TypeEnum,
}

// absentByPrefix deletes every target domain whose name starts with
// prefix, contents first. Domains that fail are retried in later passes,
// since a delete can be blocked by a reference from another domain.
// Passes stop when every domain is gone, when a pass deletes nothing, or
// after MaxAbsentPasses.
func (mg *migration) absentByPrefix(ctx context.Context, prefix string) (deleted, remaining []string, err error) {
	domains, err := catalog.All(ctx, mg.m.target.Entities(ir.TypeApplicationDomain), catalog.Filter{})
	if err != nil {
		return nil, nil, fmt.Errorf("list target domains: %w", err)
	}
	pending := lo.Filter(domains, func(d ir.Snapshot, _ int) bool {
		return strings.HasPrefix(d.Name, prefix)
	})
	mg.logger.Info("absent run", "prefix", prefix, "domains", len(pending))

	quota := engine.NewPassQuota(MaxAbsentPasses)
	lastErr := map[string]error{}
	for len(pending) > 0 {
		if qerr := quota.Check("absent " + prefix); qerr != nil {
			mg.logger.Error("giving up on blocked domains", "remaining", len(pending), "error", qerr)
			mg.errs = multierror.Append(mg.errs, qerr)
			break
		}

		var blocked []ir.Snapshot
		for i, d := range pending {
			if cerr := ctx.Err(); cerr != nil {
				blocked = append(blocked, pending[i:]...)
				return deleted, names(blocked), fmt.Errorf("absent run aborted before domain %s: %w", d.Name, cerr)
			}
			if derr := mg.absentDomain(ctx, d); derr != nil {
				mg.logger.Debug("domain blocked", "pass", quota.Current(), "name", d.Name, "error", derr)
				lastErr[d.ID] = derr
				blocked = append(blocked, d)
				continue
			}
			deleted = append(deleted, d.Name)
		}

		progressed := len(blocked) < len(pending)
		pending = blocked
		if !progressed {
			break
		}
	}

	for _, d := range pending {
		derr := lastErr[d.ID]
		mg.run.Log.Fail(ir.TypeApplicationDomain, d.Name, derr)
		mg.issues.Add(ir.TypeApplicationDomain, d, derr)
		mg.errs = multierror.Append(mg.errs, derr)
	}
	return deleted, names(pending), nil
}

// absentDomain deletes the contents of d, then d.
func (mg *migration) absentDomain(ctx context.Context, d ir.Snapshot) error {
	for _, t := range contentTypes {
		objs, err := catalog.All(ctx, mg.m.target.Entities(t), catalog.Filter{ParentID: d.ID})
		if err != nil {
			return fmt.Errorf("list %s in domain %s: %w", t, d.Name, err)
		}
		for _, obj := range objs {
			if err := mg.absentObject(ctx, t, d.ID, obj); err != nil {
				return err
			}
		}
	}
	return mg.absentTask(ctx, ir.EntitySpec{Type: ir.TypeApplicationDomain, Name: d.Name, TargetState: ir.Absent}, "")
}

// absentObject deletes the versions of obj, then obj.
func (mg *migration) absentObject(ctx context.Context, t ir.EntityType, domainID string, obj ir.Snapshot) error {
	if err := mg.deleteVersions(ctx, t, obj, nil); err != nil {
		return err
	}
	return mg.absentTask(ctx, ir.EntitySpec{Type: t, Name: obj.Name, TargetState: ir.Absent}, domainID)
}

func (mg *migration) absentTask(ctx context.Context, spec ir.EntitySpec, parentID string) error {
	opts := []engine.TaskOption{engine.WithDeferredFailure()}
	if parentID != "" {
		opts = append(opts, engine.WithParentID(parentID))
	}
	_, err := engine.NewTask(mg.run, spec, opts...).Execute(ctx)
	return err
}

// deleteVersions deletes the versions of obj that match keep, or all of
// them when keep is nil. Versions have no name to resolve by, so they are
// deleted by ID and recorded directly.
func (mg *migration) deleteVersions(ctx context.Context, t ir.EntityType, obj ir.Snapshot, keep func(ir.Snapshot) bool) error {
	vt, ok := t.VersionType()
	if !ok {
		return nil
	}
	versions, err := catalog.All(ctx, mg.m.target.Entities(vt), catalog.Filter{ParentID: obj.ID})
	if err != nil {
		return fmt.Errorf("list versions of %s %s: %w", t, obj.Name, err)
	}
	for _, v := range versions {
		if keep != nil && !keep(v) {
			continue
		}
		rec := ir.TransactionRecord{EntityType: vt, Name: obj.Name, Version: v.Version, Action: ir.Delete, RemoteID: v.ID}
		if !mg.run.DryRun {
			err := mg.m.target.Entities(vt).Delete(context.WithoutCancel(ctx), v.ID)
			switch {
			case catalog.IsNotFound(err):
				rec.Action = ir.NoOp
				rec.Recovered = true
			case err != nil:
				return fmt.Errorf("delete %s %s@%s: %w", vt, obj.Name, v.Version, err)
			}
		}
		mg.run.Log.Record(rec)
	}
	return nil
}

// absentByRunID deletes what the run runID created: objects stamped with
// it, versions stamped with it on objects the run did not create, and
// stamped domains once nothing else is left in them.
func (mg *migration) absentByRunID(ctx context.Context, runID string) ([]string, error) {
	stamped := func(s ir.Snapshot) bool {
		id, _ := s.Settings[RunIDKey].(string)
		return id == runID
	}
	gone := map[string]bool{}

	for _, t := range contentTypes {
		objs, err := catalog.All(ctx, mg.m.target.Entities(t), catalog.Filter{})
		if err != nil {
			return nil, fmt.Errorf("list target %s: %w", t, err)
		}
		for _, obj := range objs {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("absent run aborted before %s %s: %w", t, obj.Name, err)
			}
			if stamped(obj) {
				err = mg.absentObject(ctx, t, obj.ParentID, obj)
				if err == nil {
					gone[obj.ID] = true
				}
			} else {
				err = mg.deleteVersions(ctx, t, obj, stamped)
			}
			if err != nil {
				mg.run.Log.Fail(t, obj.Name, err)
				mg.issues.Add(t, obj, err)
				mg.errs = multierror.Append(mg.errs, err)
				if mg.m.opts.FailFast {
					return nil, err
				}
			}
		}
	}

	domains, err := catalog.All(ctx, mg.m.target.Entities(ir.TypeApplicationDomain), catalog.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list target domains: %w", err)
	}
	var deleted []string
	for _, d := range lo.Filter(domains, func(d ir.Snapshot, _ int) bool { return stamped(d) }) {
		empty, err := mg.isEmpty(ctx, d, gone)
		if err != nil {
			return deleted, err
		}
		if !empty {
			mg.logger.Info("keeping domain with content from other runs", "name", d.Name)
			continue
		}
		if err := mg.absentTask(ctx, ir.EntitySpec{Type: ir.TypeApplicationDomain, Name: d.Name, TargetState: ir.Absent}, ""); err != nil {
			mg.run.Log.Fail(ir.TypeApplicationDomain, d.Name, err)
			mg.issues.Add(ir.TypeApplicationDomain, d, err)
			mg.errs = multierror.Append(mg.errs, err)
			if mg.m.opts.FailFast {
				return deleted, err
			}
			continue
		}
		deleted = append(deleted, d.Name)
	}
	return deleted, nil
}

// isEmpty reports whether d holds no objects besides those in gone.
func (mg *migration) isEmpty(ctx context.Context, d ir.Snapshot, gone map[string]bool) (bool, error) {
	for _, t := range contentTypes {
		objs, err := catalog.All(ctx, mg.m.target.Entities(t), catalog.Filter{ParentID: d.ID})
		if err != nil {
			return false, fmt.Errorf("list %s in domain %s: %w", t, d.Name, err)
		}
		if lo.SomeBy(objs, func(o ir.Snapshot) bool { return !gone[o.ID] }) {
			return false, nil
		}
	}
	return true, nil
}

func names(snaps []ir.Snapshot) []string {
	return lo.Map(snaps, func(s ir.Snapshot, _ int) string { return s.Name })
}
