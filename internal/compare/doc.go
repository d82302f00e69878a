// Package compare decides which action converges a remote entity to its
// declared state.
//
// There is one Comparator per entity type, each a list of recognized keys.
// Decide is pure: given the same desired spec and lookup it always returns
// the same action, and applying that action makes the next Decide return
// NOOP.
package compare
