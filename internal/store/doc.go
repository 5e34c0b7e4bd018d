// Package store provides SQLite-backed durable storage for the asset
// governance layer.
//
// One database holds every governance table:
//   - assets: registry of asset definitions (upsert, versioned, never deleted)
//   - asset_executions: append-only run history
//   - asset_lineage: deduplicated upstream -> downstream edges
//   - health_checks / health_summary: check audit trail and rolled-up state
//   - asset_alerts: active and resolved alerts
//   - asset_schemas / asset_metrics: tabular shape and numeric observations
//   - scheduled_jobs / job_executions: maintenance scheduler state
//
// # Ordering
//
// Timestamps are stored as fixed-width UTC RFC 3339 text, so ORDER BY on a
// time column is chronological. "Most recent first" queries break ties on
// the synthetic id so that results are deterministic.
//
// # Consistency
//
// Append-only writes (executions, alerts, checks) never read-modify-write
// shared rows. Asset upserts increment version in a single statement, but
// the registry's debounce read happens before it, so two near-simultaneous
// registrations may both write. Lineage edges are protected by a UNIQUE
// constraint.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Schema changes are versioned migrations under migrations/, applied by
// golang-migrate when the store is opened.
package store
