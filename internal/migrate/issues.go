package migrate

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/roach88/epsync/internal/ir"
	"github.com/roach88/epsync/internal/store"
)

// IssueType groups run issues by the kind of source entity.
type IssueType string

const (
	EnumIssue              IssueType = "EnumIssue"
	SchemaIssue            IssueType = "SchemaIssue"
	EventIssue             IssueType = "EventIssue"
	ApplicationIssue       IssueType = "ApplicationIssue"
	ApplicationDomainIssue IssueType = "ApplicationDomainIssue"
	EventAPIIssue          IssueType = "EventApiIssue"
)

// IssueTypeFor returns the issue type of an entity type. Version types
// share the issue type of their object.
func IssueTypeFor(t ir.EntityType) IssueType {
	if t.IsVersion() {
		if p, ok := t.Parent(); ok {
			t = p
		}
	}
	switch t {
	case ir.TypeEnum:
		return EnumIssue
	case ir.TypeSchema:
		return SchemaIssue
	case ir.TypeEvent:
		return EventIssue
	case ir.TypeApplication:
		return ApplicationIssue
	case ir.TypeEventAPI:
		return EventAPIIssue
	default:
		return ApplicationDomainIssue
	}
}

// RunIssue is one source entity that did not migrate.
type RunIssue struct {
	ID         string        `json:"issue_id"`
	Type       IssueType     `json:"type"`
	EntityType ir.EntityType `json:"entity_type"`
	SourceID   string        `json:"source_id"`
	Name       string        `json:"name"`
	Skipped    bool          `json:"skipped"`
	Message    string        `json:"message"`
	Cause      error         `json:"-"`
}

// IssueIDGenerator generates short run issue IDs.
type IssueIDGenerator interface {
	Generate() string
}

// ShortIDGenerator generates 8-character hex issue IDs from random UUIDs.
type ShortIDGenerator struct{}

// Generate implements IssueIDGenerator.
func (ShortIDGenerator) Generate() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Issues collects the run issues of one migration in the order they were
// raised.
type Issues struct {
	ids  IssueIDGenerator
	list []RunIssue
}

func newIssues(ids IssueIDGenerator) *Issues {
	return &Issues{ids: ids, list: []RunIssue{}}
}

// Add records an issue for the source entity src of type t. Unresolved
// references are recorded as skipped.
func (l *Issues) Add(t ir.EntityType, src ir.Snapshot, cause error) RunIssue {
	issue := RunIssue{
		ID:         l.ids.Generate(),
		Type:       IssueTypeFor(t),
		EntityType: t,
		SourceID:   src.ID,
		Name:       src.Name,
		Skipped:    IsUnresolvedReference(cause),
		Cause:      cause,
	}
	if cause != nil {
		issue.Message = cause.Error()
	}
	l.list = append(l.list, issue)
	return issue
}

// All returns a copy of every issue.
func (l *Issues) All() []RunIssue {
	return append([]RunIssue{}, l.list...)
}

// ByType returns the issues of type t.
func (l *Issues) ByType(t IssueType) []RunIssue {
	return lo.Filter(l.list, func(i RunIssue, _ int) bool { return i.Type == t })
}

// BySource returns the issues raised for one source ID.
func (l *Issues) BySource(id string) []RunIssue {
	return lo.Filter(l.list, func(i RunIssue, _ int) bool { return i.SourceID == id })
}

// Len returns the number of issues.
func (l *Issues) Len() int {
	return len(l.list)
}

func toStoreIssues(issues []RunIssue) []store.Issue {
	return lo.Map(issues, func(i RunIssue, _ int) store.Issue {
		return store.Issue{
			ID:       i.ID,
			Type:     string(i.Type),
			SourceID: i.SourceID,
			Message:  i.Message,
			Details: map[string]string{
				"entity_type": string(i.EntityType),
				"name":        i.Name,
				"skipped":     strconv.FormatBool(i.Skipped),
			},
		}
	})
}
