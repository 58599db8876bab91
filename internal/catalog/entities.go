package catalog

import "time"

// EntityType tags canonical entity kinds in the provenance ledger.
type EntityType string

const (
	EntityWork      EntityType = "work"
	EntityStudio    EntityType = "studio"
	EntityPerson    EntityType = "person"
	EntityRole      EntityType = "role"
	EntityCharacter EntityType = "character"
)

// Work is the deduplicated canonical record for one external identity.
// Deduplicated only by (source_type, source_id); titles are never a dedup
// key because they collide across distinct works and translations.
type Work struct {
	ID         int64
	SourceType string
	SourceID   string
	Title      string
	Extra      map[string]string
	CreatedAt  time.Time
}

// Studio is a canonical organization, deduplicated by normalized name.
type Studio struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Person is a canonical person, deduplicated by normalized name.
type Person struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Role is a canonical staff role, deduplicated by normalized name.
type Role struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Character is a canonical sub-entity scoped to a work, deduplicated by
// (work_id, normalized name).
type Character struct {
	ID        int64
	WorkID    int64
	Name      string
	CreatedAt time.Time
}

// ProvenanceLink is an immutable, append-only record of which source vouches
// for a canonical entity. Created during canonicalization, never updated or
// deleted.
type ProvenanceLink struct {
	ID         int64
	EntityType EntityType
	EntityID   int64
	SourceType string
	SourceID   string
	CreatedAt  time.Time
}

// Counts aggregates canonical-side row counts for status output and tests.
type Counts struct {
	Works      int
	Studios    int
	People     int
	Roles      int
	Characters int
	Provenance int
}
