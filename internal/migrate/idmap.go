package migrate

import (
	"maps"

	"github.com/roach88/epsync/internal/ir"
)

// VersionKeyPrefix marks ID Map keys that hold version IDs.
const VersionKeyPrefix = "version:"

// VersionKey is the ID Map key of the version migrated from sourceID.
func VersionKey(sourceID string) string {
	return VersionKeyPrefix + sourceID
}

// IDMap maps source IDs to the target IDs they were migrated to. It is
// owned by the run's goroutine.
//
// A dry run creates nothing, so entities it would create are only
// planned: they resolve, but without an ID.
type IDMap struct {
	ids     map[string]string
	planned map[string]bool
}

// NewIDMap returns an empty map.
func NewIDMap() *IDMap {
	return &IDMap{ids: map[string]string{}, planned: map[string]bool{}}
}

// Put maps key to target. The first target for a key wins.
func (m *IDMap) Put(key, target string) {
	if _, ok := m.ids[key]; ok {
		return
	}
	m.ids[key] = target
	delete(m.planned, key)
}

// Plan marks key as resolving to an entity a dry run would create.
func (m *IDMap) Plan(key string) {
	if _, ok := m.ids[key]; ok {
		return
	}
	m.planned[key] = true
}

// Resolve looks up key on behalf of the source entity (t, sourceID).
// planned is set for entities a dry run would create; id is then empty.
// A key with neither is an *UnresolvedReferenceError.
func (m *IDMap) Resolve(t ir.EntityType, sourceID, key string) (id string, planned bool, err error) {
	if id, ok := m.ids[key]; ok && key != "" {
		return id, false, nil
	}
	if m.planned[key] && key != "" {
		return "", true, nil
	}
	return "", false, &UnresolvedReferenceError{EntityType: t, SourceID: sourceID, Ref: key}
}

// Entries returns a copy of the resolved entries.
func (m *IDMap) Entries() map[string]string {
	return maps.Clone(m.ids)
}

// Len returns the number of resolved entries.
func (m *IDMap) Len() int {
	return len(m.ids)
}
