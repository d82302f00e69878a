// Package engine implements the idempotent reconciliation task.
//
// A Task drives one entity through a fixed lifecycle:
//
//	UNSTARTED -> RESOLVING -> COMPARING -> APPLYING -> DONE
//
// with FAILED reachable from any non-terminal state.
//
//   - RESOLVING drains the catalog's page sequence for the entity's name in
//     its parent scope. Two or more matches fail with AMBIGUOUS_ENTITY
//     before anything is mutated.
//   - COMPARING asks the type's comparator for the converging action.
//   - APPLYING performs it. A NotFound from update or delete means the
//     entity vanished after resolve; the step is recorded as a recovered
//     NOOP. Dry runs make no mutating call.
//
// Every step, NOOP included, is appended to the run's ledger. Declared
// versions are then reconciled under the parent's ID: versions are only
// created, never updated or deleted, and a declared version at or below
// the latest is handled by the run's VersionStrategy.
//
// Run carries everything a task needs (client, ledger, clock, logger,
// dry-run flag) so there is no package state. Reconciler applies an
// ordered spec list, resolving parents by (type, name) and skipping the
// children of failed or removed parents.
//
// Execution is single-goroutine and sequential. Cancellation is checked
// between entities; an in-flight mutation runs on a context detached from
// cancellation so it is never abandoned half way.
package engine
