// Package store provides a SQLite journal of form controller events.
//
// The journal is an append-only audit trail of accepted transitions, used
// for traces and golden tests. It does not persist form state: a
// controller cannot be restored from it.
//
// Tables:
//   - forms: one row per controller, with its initial values
//   - events: one row per committed event
//
// # Critical Patterns
//
// Logical Time:
//   - Rows are ordered by the controller's logical time, then insertion id
//   - Wall-clock timestamps are never stored
//
// Deterministic Query Results:
//   - All queries MUST include: ORDER BY time ASC, id ASC
//
// Canonical Encoding:
//   - Values and field lists are stored as RFC 8785 canonical JSON
//   - Validation events carry the request key hash (see ir.RequestKeyHash)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
