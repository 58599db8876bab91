package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"curator/internal/services"
)

const workColumns = "id, source_type, source_id, title, extra_json, created_at"

// FindWorkBySource looks up the canonical work for an external identity.
// Returns nil when no work exists for the key.
func (s *Store) FindWorkBySource(ctx context.Context, sourceType, sourceID string) (*Work, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+workColumns+` FROM works WHERE source_type = ? AND source_id = ?`,
		sourceType,
		sourceID,
	)
	work, err := scanWork(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find work by source: %w", err)
	}
	return work, nil
}

// WorkByID fetches a canonical work by identifier. Returns nil when unknown.
func (s *Store) WorkByID(ctx context.Context, id int64) (*Work, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workColumns+` FROM works WHERE id = ?`, id)
	work, err := scanWork(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get work: %w", err)
	}
	return work, nil
}

// ListWorks returns all canonical works ordered by id.
func (s *Store) ListWorks(ctx context.Context) ([]*Work, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+workColumns+` FROM works ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list works: %w", err)
	}
	defer rows.Close()

	var works []*Work
	for rows.Next() {
		work, err := scanWork(rows)
		if err != nil {
			return nil, err
		}
		works = append(works, work)
	}
	return works, rows.Err()
}

// EnsureWork atomically finds or creates the canonical work for an external
// identity. The conflict target is the (source_type, source_id) unique key;
// concurrent creators converge on one row and the returned flag reports which
// caller actually created it. Title and extra attributes are written only on
// create — the first canonicalization wins, later hypotheses just vouch.
func (s *Store) EnsureWork(ctx context.Context, sourceType, sourceID, title string, extra map[string]string) (*Work, bool, error) {
	sourceType = strings.TrimSpace(sourceType)
	sourceID = strings.TrimSpace(sourceID)
	title = strings.TrimSpace(title)
	if sourceType == "" || sourceID == "" {
		return nil, false, services.Wrap(services.ErrValidation, "catalog", "ensure work", "source type and source id must not be empty", nil)
	}
	if title == "" {
		return nil, false, services.Wrap(services.ErrValidation, "catalog", "ensure work", "title must not be empty", nil)
	}

	var extraJSON any
	if len(extra) > 0 {
		encoded, err := json.Marshal(extra)
		if err != nil {
			return nil, false, fmt.Errorf("marshal extra attributes: %w", err)
		}
		extraJSON = string(encoded)
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO works (source_type, source_id, title, extra_json, created_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (source_type, source_id) DO NOTHING`,
		sourceType,
		sourceID,
		title,
		extraJSON,
		nowTimestamp(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("ensure work: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	work, err := s.FindWorkBySource(ctx, sourceType, sourceID)
	if err != nil {
		return nil, false, err
	}
	if work == nil {
		return nil, false, fmt.Errorf("ensure work: row missing after upsert for %s/%s", sourceType, sourceID)
	}
	return work, affected > 0, nil
}

// EnsureStudio atomically finds or creates a studio by normalized name.
func (s *Store) EnsureStudio(ctx context.Context, name string) (*Studio, bool, error) {
	id, stored, created, err := s.ensureNamed(ctx, "studios", name)
	if err != nil {
		return nil, false, err
	}
	return &Studio{ID: id, Name: stored}, created, nil
}

// EnsurePerson atomically finds or creates a person by normalized name.
func (s *Store) EnsurePerson(ctx context.Context, name string) (*Person, bool, error) {
	id, stored, created, err := s.ensureNamed(ctx, "people", name)
	if err != nil {
		return nil, false, err
	}
	return &Person{ID: id, Name: stored}, created, nil
}

// EnsureRole atomically finds or creates a role by normalized name.
func (s *Store) EnsureRole(ctx context.Context, name string) (*Role, bool, error) {
	id, stored, created, err := s.ensureNamed(ctx, "roles", name)
	if err != nil {
		return nil, false, err
	}
	return &Role{ID: id, Name: stored}, created, nil
}

// EnsureCharacter atomically finds or creates a character scoped to a work,
// keyed by (work_id, normalized name).
func (s *Store) EnsureCharacter(ctx context.Context, workID int64, name string) (*Character, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, services.Wrap(services.ErrValidation, "catalog", "ensure character", "name must not be empty", nil)
	}
	normalized := NormalizeName(name)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO characters (work_id, name, normalized_name, created_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT (work_id, normalized_name) DO NOTHING`,
		workID,
		name,
		normalized,
		nowTimestamp(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("ensure character: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	var (
		id     int64
		stored string
	)
	err = s.db.QueryRowContext(
		ctx,
		`SELECT id, name FROM characters WHERE work_id = ? AND normalized_name = ?`,
		workID,
		normalized,
	).Scan(&id, &stored)
	if err != nil {
		return nil, false, fmt.Errorf("read back character %q: %w", name, err)
	}
	return &Character{ID: id, WorkID: workID, Name: stored}, affected > 0, nil
}

// ensureNamed is the shared find-or-create for entities deduplicated by
// normalized name. The INSERT hits the normalized_name unique key; zero rows
// affected means another writer (or an earlier run) already owns the name.
func (s *Store) ensureNamed(ctx context.Context, table, name string) (int64, string, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, "", false, services.Wrap(services.ErrValidation, "catalog", "ensure "+table, "name must not be empty", nil)
	}
	normalized := NormalizeName(name)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO `+table+` (name, normalized_name, created_at)
         VALUES (?, ?, ?)
         ON CONFLICT (normalized_name) DO NOTHING`,
		name,
		normalized,
		nowTimestamp(),
	)
	if err != nil {
		return 0, "", false, fmt.Errorf("ensure %s: %w", table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, "", false, fmt.Errorf("rows affected: %w", err)
	}

	var (
		id     int64
		stored string
	)
	err = s.db.QueryRowContext(ctx, `SELECT id, name FROM `+table+` WHERE normalized_name = ?`, normalized).Scan(&id, &stored)
	if err != nil {
		return 0, "", false, fmt.Errorf("read back %s %q: %w", table, name, err)
	}
	return id, stored, affected > 0, nil
}

// AppendProvenance records that a source vouches for a canonical entity.
// Links are append-only: reuse of an existing entity still appends a link, so
// every hypothesis that touched an entity stays answerable.
func (s *Store) AppendProvenance(ctx context.Context, entityType EntityType, entityID int64, sourceType, sourceID string) error {
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO provenance_links (entity_type, entity_id, source_type, source_id, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		entityType,
		entityID,
		sourceType,
		sourceID,
		nowTimestamp(),
	)
	if err != nil {
		return fmt.Errorf("append provenance: %w", err)
	}
	return nil
}

// ProvenanceFor returns the provenance links recorded for one entity, oldest
// first.
func (s *Store) ProvenanceFor(ctx context.Context, entityType EntityType, entityID int64) ([]*ProvenanceLink, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, entity_type, entity_id, source_type, source_id, created_at
         FROM provenance_links WHERE entity_type = ? AND entity_id = ? ORDER BY id`,
		entityType,
		entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("query provenance: %w", err)
	}
	defer rows.Close()

	var links []*ProvenanceLink
	for rows.Next() {
		var (
			link       ProvenanceLink
			entityStr  string
			createdRaw sql.NullString
		)
		if err := rows.Scan(&link.ID, &entityStr, &link.EntityID, &link.SourceType, &link.SourceID, &createdRaw); err != nil {
			return nil, err
		}
		link.EntityType = EntityType(entityStr)
		if created, err := parseTimeString(createdRaw.String); err == nil {
			link.CreatedAt = created
		}
		links = append(links, &link)
	}
	return links, rows.Err()
}

// LinkWorkStudio records a work-studio relationship; repeats are ignored.
func (s *Store) LinkWorkStudio(ctx context.Context, workID, studioID int64) error {
	_, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO work_studios (work_id, studio_id) VALUES (?, ?)`,
		workID,
		studioID,
	)
	if err != nil {
		return fmt.Errorf("link work studio: %w", err)
	}
	return nil
}

// LinkWorkStaff records a work-person-role staff credit; repeats are ignored.
func (s *Store) LinkWorkStaff(ctx context.Context, workID, personID, roleID int64) error {
	_, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO work_staff (work_id, person_id, role_id) VALUES (?, ?, ?)`,
		workID,
		personID,
		roleID,
	)
	if err != nil {
		return fmt.Errorf("link work staff: %w", err)
	}
	return nil
}

// LinkCharacterVoice records a character-person voice credit; repeats are
// ignored.
func (s *Store) LinkCharacterVoice(ctx context.Context, characterID, personID int64) error {
	_, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO character_voices (character_id, person_id) VALUES (?, ?)`,
		characterID,
		personID,
	)
	if err != nil {
		return fmt.Errorf("link character voice: %w", err)
	}
	return nil
}

// MergedCountForWork counts the scan candidates merged into a canonical work.
func (s *Store) MergedCountForWork(ctx context.Context, workID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM scan_candidates sc
         JOIN match_candidates mc ON sc.match_id = mc.id
         WHERE mc.work_id = ? AND sc.status = ?`,
		workID,
		CandidateMerged,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("merged count for work: %w", err)
	}
	return count, nil
}

// CanonicalCounts aggregates canonical-side row counts.
func (s *Store) CanonicalCounts(ctx context.Context) (Counts, error) {
	var counts Counts
	queries := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(1) FROM works`, &counts.Works},
		{`SELECT COUNT(1) FROM studios`, &counts.Studios},
		{`SELECT COUNT(1) FROM people`, &counts.People},
		{`SELECT COUNT(1) FROM roles`, &counts.Roles},
		{`SELECT COUNT(1) FROM characters`, &counts.Characters},
		{`SELECT COUNT(1) FROM provenance_links`, &counts.Provenance},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return Counts{}, fmt.Errorf("canonical counts: %w", err)
		}
	}
	return counts, nil
}

func scanWork(scanner interface{ Scan(dest ...any) error }) (*Work, error) {
	var (
		id         int64
		sourceType string
		sourceID   string
		title      string
		extraRaw   sql.NullString
		createdRaw sql.NullString
	)

	if err := scanner.Scan(&id, &sourceType, &sourceID, &title, &extraRaw, &createdRaw); err != nil {
		return nil, err
	}

	work := &Work{
		ID:         id,
		SourceType: sourceType,
		SourceID:   sourceID,
		Title:      title,
	}
	if extraRaw.Valid && extraRaw.String != "" {
		if err := json.Unmarshal([]byte(extraRaw.String), &work.Extra); err != nil {
			return nil, fmt.Errorf("decode extra attributes: %w", err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		work.CreatedAt = created
	}
	return work, nil
}
