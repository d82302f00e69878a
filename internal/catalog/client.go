package catalog

import (
	"context"

	"github.com/roach88/epsync/internal/ir"
)

// Filter narrows a List call. Empty fields are not applied.
type Filter struct {
	Name     string
	ParentID string
}

// Page is one page of a List response. NextPage is nil on the last page.
type Page struct {
	Items    []ir.Snapshot
	NextPage *int
}

// Draft is the payload of a create call.
type Draft struct {
	Name     string
	ParentID string
	Version  string // version types only
	Settings ir.Settings
}

// EntityClient performs CRUD for a single entity type.
//
// Pages are numbered from 1. Update and Delete return a *NotFoundError
// when id no longer exists.
type EntityClient interface {
	List(ctx context.Context, f Filter, page int) (Page, error)
	Get(ctx context.Context, id string) (ir.Snapshot, error)
	Create(ctx context.Context, d Draft) (ir.Snapshot, error)
	Update(ctx context.Context, id string, s ir.Settings) (ir.Snapshot, error)
	Delete(ctx context.Context, id string) error
}

// Client gives access to every entity type of one catalog.
type Client interface {
	Entities(t ir.EntityType) EntityClient
}
