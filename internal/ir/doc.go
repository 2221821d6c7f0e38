// Package ir provides the data model shared by every slowforest package.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types in field values - use int64 for numbers
//   - Lifecycle stages are sealed sum types (ValidationRequest, SubmitAttempt,
//     Source); callers switch on the concrete type
//   - Logical time (Time) only, never wall-clock timestamps
//   - All JSON tags use snake_case
package ir
