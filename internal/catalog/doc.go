// Package catalog persists pipeline state in SQLite and exposes the
// primitives the resolution pipeline is built on.
//
// The candidate side holds scan candidates and identity match candidates with
// compare-and-swap status transitions: every transition is a single
// conditional UPDATE, and a precondition miss surfaces as a stale-state error
// rather than a silent overwrite. That primitive is the only concurrency
// guard the canonicalization lock needs.
//
// The canonical side holds deduplicated entities (works by external source
// id; studios, people, and roles by normalized name; characters by work and
// normalized name) behind atomic Ensure operations, plus the append-only
// provenance ledger and the relationship join tables.
//
// Scan candidates are never deleted and provenance links have no update or
// delete path; the database is the long-term system of record, not transient
// job state. Schema changes bump schemaVersion in schema.go.
package catalog
