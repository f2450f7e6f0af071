// Package store provides SQLite-backed history of kernel generations.
//
// Every successful lowering can be recorded with the module's content hash,
// the generated workers and the diagnostics it produced, so that later runs
// can tell whether a kernel's output changed.
//
// # Ordering
//
// Rows are ordered by a logical sequence number, never by timestamps:
// queries use ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// List-valued columns hold canonical JSON produced by ir.MarshalCanonical.
package store
