package catalog

import (
	"context"
	"fmt"
	"iter"

	"github.com/roach88/epsync/internal/ir"
)

// Pages lazily fetches every page matching f, starting at page 1.
//
// Iteration stops after a page with a nil NextPage, at the first error
// (yielded once), or when the consumer stops. The sequence can be ranged
// over again; each range restarts from page 1.
func Pages(ctx context.Context, c EntityClient, f Filter) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		next := 1
		for {
			if err := ctx.Err(); err != nil {
				yield(Page{}, err)
				return
			}
			p, err := c.List(ctx, f, next)
			if err != nil {
				yield(Page{}, fmt.Errorf("list page %d: %w", next, err))
				return
			}
			if !yield(p, nil) {
				return
			}
			if p.NextPage == nil {
				return
			}
			if *p.NextPage <= next {
				yield(Page{}, fmt.Errorf("list page %d: nextPage %d does not advance", next, *p.NextPage))
				return
			}
			next = *p.NextPage
		}
	}
}

// All drains Pages into a single slice. The result is never nil.
func All(ctx context.Context, c EntityClient, f Filter) ([]ir.Snapshot, error) {
	out := []ir.Snapshot{}
	for p, err := range Pages(ctx, c, f) {
		if err != nil {
			return nil, err
		}
		out = append(out, p.Items...)
	}
	return out, nil
}

// FindByName returns every entity whose name equals f.Name exactly,
// within f.ParentID when set. Servers may match names loosely, so the
// filter is re-applied to each item.
func FindByName(ctx context.Context, c EntityClient, f Filter) ([]ir.Snapshot, error) {
	items, err := All(ctx, c, f)
	if err != nil {
		return nil, err
	}
	matches := []ir.Snapshot{}
	for _, s := range items {
		if s.Name != f.Name {
			continue
		}
		if f.ParentID != "" && s.ParentID != "" && s.ParentID != f.ParentID {
			continue
		}
		matches = append(matches, s)
	}
	return matches, nil
}
