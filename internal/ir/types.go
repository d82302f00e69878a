package ir

import (
	"fmt"
	"time"
)

// EntityType identifies a kind of catalog entity.
type EntityType string

const (
	TypeApplicationDomain  EntityType = "application_domain"
	TypeEnum               EntityType = "enum"
	TypeEnumVersion        EntityType = "enum_version"
	TypeSchema             EntityType = "schema"
	TypeSchemaVersion      EntityType = "schema_version"
	TypeEvent              EntityType = "event"
	TypeEventVersion       EntityType = "event_version"
	TypeApplication        EntityType = "application"
	TypeApplicationVersion EntityType = "application_version"
	TypeEventAPI           EntityType = "event_api"
	TypeEventAPIVersion    EntityType = "event_api_version"
)

// EntityTypes lists every entity type in dependency order.
var EntityTypes = []EntityType{
	TypeApplicationDomain,
	TypeEnum,
	TypeEnumVersion,
	TypeSchema,
	TypeSchemaVersion,
	TypeEvent,
	TypeEventVersion,
	TypeApplication,
	TypeApplicationVersion,
	TypeEventAPI,
	TypeEventAPIVersion,
}

var parentTypes = map[EntityType]EntityType{
	TypeEnum:               TypeApplicationDomain,
	TypeSchema:             TypeApplicationDomain,
	TypeEvent:              TypeApplicationDomain,
	TypeApplication:        TypeApplicationDomain,
	TypeEventAPI:           TypeApplicationDomain,
	TypeEnumVersion:        TypeEnum,
	TypeSchemaVersion:      TypeSchema,
	TypeEventVersion:       TypeEvent,
	TypeApplicationVersion: TypeApplication,
	TypeEventAPIVersion:    TypeEventAPI,
}

var versionTypes = map[EntityType]EntityType{
	TypeEnum:        TypeEnumVersion,
	TypeSchema:      TypeSchemaVersion,
	TypeEvent:       TypeEventVersion,
	TypeApplication: TypeApplicationVersion,
	TypeEventAPI:    TypeEventAPIVersion,
}

// ParseEntityType converts a string to an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	for _, t := range EntityTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// Parent returns the type that scopes t, and false for top-level types.
func (t EntityType) Parent() (EntityType, bool) {
	p, ok := parentTypes[t]
	return p, ok
}

// VersionType returns the versioned sub-resource type of t, if any.
func (t EntityType) VersionType() (EntityType, bool) {
	v, ok := versionTypes[t]
	return v, ok
}

// IsVersion reports whether t is a version sub-resource.
func (t EntityType) IsVersion() bool {
	for _, v := range versionTypes {
		if v == t {
			return true
		}
	}
	return false
}

// TargetState is the declared existence of an entity.
type TargetState string

const (
	Present TargetState = "PRESENT"
	Absent  TargetState = "ABSENT"
)

// ParseTargetState converts a string to a TargetState.
// The empty string defaults to PRESENT.
func ParseTargetState(s string) (TargetState, error) {
	switch s {
	case "", "PRESENT", "present":
		return Present, nil
	case "ABSENT", "absent":
		return Absent, nil
	default:
		return "", fmt.Errorf("invalid target state %q: must be PRESENT or ABSENT", s)
	}
}

// Settings holds entity attributes keyed by their API field name.
type Settings map[string]any

// Clone returns a shallow copy of s.
func (s Settings) Clone() Settings {
	if s == nil {
		return nil
	}
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Ref names another entity by type and name.
type Ref struct {
	Type EntityType `json:"type" yaml:"type"`
	Name string     `json:"name" yaml:"name"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s", r.Type, r.Name)
}

// VersionSpec declares one version of a versioned entity.
type VersionSpec struct {
	Version  string   `json:"version" yaml:"version"`
	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// EntitySpec is the declared desired configuration for one logical entity.
type EntitySpec struct {
	Type        EntityType    `json:"type"`
	Name        string        `json:"name"`
	Parent      *Ref          `json:"parent,omitempty"`
	TargetState TargetState   `json:"target_state"`
	Settings    Settings      `json:"settings,omitempty"`
	Versions    []VersionSpec `json:"versions,omitempty"`
}

// Key identifies the spec within a desired-state set.
func (s EntitySpec) Key() Ref {
	return Ref{Type: s.Type, Name: s.Name}
}

// Snapshot is the live remote representation of an entity.
type Snapshot struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	ParentID string   `json:"parent_id,omitempty"`
	Version  string   `json:"version,omitempty"`
	Settings Settings `json:"settings,omitempty"`
}

// Lookup is the result of resolving an entity by name: Found or Absent.
type Lookup struct {
	snapshot Snapshot
	found    bool
}

// Found wraps an existing snapshot.
func Found(s Snapshot) Lookup {
	return Lookup{snapshot: s, found: true}
}

// NotPresent is the Absent lookup result.
var NotPresent = Lookup{}

// Get returns the snapshot and whether it exists.
func (l Lookup) Get() (Snapshot, bool) {
	return l.snapshot, l.found
}

// Exists reports whether the entity was found.
func (l Lookup) Exists() bool {
	return l.found
}

// TransactionRecord is an immutable ledger entry for one reconciliation step.
type TransactionRecord struct {
	ID         string     `json:"id"` // Content-addressed hash
	RunID      string     `json:"run_id"`
	Seq        int64      `json:"seq"` // Logical clock within the run
	EntityType EntityType `json:"entity_type"`
	Name       string     `json:"name"`
	Version    string     `json:"version,omitempty"`
	Action     Action     `json:"action"`
	RemoteID   string     `json:"remote_id,omitempty"`
	DryRun     bool       `json:"dry_run,omitempty"`
	Recovered  bool       `json:"recovered,omitempty"` // vanished during apply
	Timestamp  time.Time  `json:"timestamp"`
}
