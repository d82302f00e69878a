// Package migrate copies a v1 event catalog into a v2 catalog.
//
// A Manager drains the source one entity type at a time and runs in four
// tiers, so that everything an entity references is migrated before it:
//
//	tier 0  application domains
//	tier 1  enums and schemas
//	tier 2  events
//	tier 3  applications and event APIs
//
// Enums without a source domain land in one shared enum domain. Every
// source entity is translated into a target spec and reconciled with
// an engine.Task, so re-running a migration converges instead of
// duplicating. Resolved target IDs go into an IDMap keyed by source ID;
// version IDs are keyed by VersionKey. A reference that is missing from
// the map skips the entity instead of failing it, and the skip cascades to
// everything that references the skipped entity.
//
// An absent run undoes a migration: it deletes every target domain whose
// name carries the configured prefix, or every object stamped with a
// given run ID.
package migrate
