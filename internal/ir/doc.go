// Package ir provides the data model shared by every epsync package.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Action is a closed set: NOOP, CREATE, UPDATE, DELETE
//   - Settings are compared only after Normalize
//   - Lookup results are Found or Absent, never a nil snapshot pointer
//   - All JSON tags use snake_case
package ir
