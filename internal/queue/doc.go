// Package queue persists print jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, heartbeat tracking, stuck-job recovery, and the atomic claim
// operation the workflow lanes use to pick up work. Jobs capture source
// fingerprints, retry accounting, and attention flags so stages can
// coordinate without additional state.
//
// The database is treated as transient storage for in-flight jobs rather
// than a long-term archive. Schema changes bump the version in schema.go;
// users clear the database to adopt the new schema.
package queue
