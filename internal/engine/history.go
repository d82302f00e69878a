package engine

import "github.com/roach88/epsync/internal/ir"

// Resolution is how an entity ended within a run, as seen by its children.
type Resolution int

const (
	// Resolved entities exist remotely with a known ID.
	Resolved Resolution = iota
	// Planned entities will be created but have no ID yet (dry run).
	Planned
	// Removed entities are absent or being deleted.
	Removed
	// Failed entities errored.
	Failed
	// Skipped entities were not attempted.
	Skipped
)

func (r Resolution) String() string {
	switch r {
	case Resolved:
		return "resolved"
	case Planned:
		return "planned"
	case Removed:
		return "removed"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

type historyEntry struct {
	resolution Resolution
	id         string
}

// History tracks which entities a run has reconciled and how each ended.
// Children consult it to find their parent's ID; a second spec for the
// same entity is rejected.
type History struct {
	entries map[ir.Ref]historyEntry
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{entries: make(map[ir.Ref]historyEntry)}
}

// Seen reports whether ref was already reconciled in this run.
func (h *History) Seen(ref ir.Ref) bool {
	_, ok := h.entries[ref]
	return ok
}

// Record stores how ref ended. id is empty unless res is Resolved.
func (h *History) Record(ref ir.Ref, res Resolution, id string) {
	h.entries[ref] = historyEntry{resolution: res, id: id}
}

// Lookup returns how ref ended and its remote ID.
func (h *History) Lookup(ref ir.Ref) (Resolution, string, bool) {
	e, ok := h.entries[ref]
	return e.resolution, e.id, ok
}
