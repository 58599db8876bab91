package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"curator/internal/services"
)

const candidateColumns = "id, path, heuristic_title, status, match_id, created_at, updated_at"

// InsertCandidate records a new scanner-detected grouping with status pending.
func (s *Store) InsertCandidate(ctx context.Context, path, heuristicTitle string) (*ScanCandidate, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "insert candidate", "path must not be empty", nil)
	}
	heuristicTitle = strings.TrimSpace(heuristicTitle)
	if heuristicTitle == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "insert candidate", "heuristic title must not be empty", nil)
	}

	timestamp := nowTimestamp()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO scan_candidates (path, heuristic_title, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)`,
		path,
		heuristicTitle,
		CandidatePending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert candidate: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.CandidateByID(ctx, id)
}

// CandidateByID fetches a scan candidate by identifier. Returns nil when the
// id is unknown.
func (s *Store) CandidateByID(ctx context.Context, id int64) (*ScanCandidate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM scan_candidates WHERE id = ?`, id)
	candidate, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	return candidate, nil
}

// CandidateByPath returns the candidate registered for a filesystem path, or
// nil when the path is unknown.
func (s *Store) CandidateByPath(ctx context.Context, path string) (*ScanCandidate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM scan_candidates WHERE path = ?`, path)
	candidate, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find candidate by path: %w", err)
	}
	return candidate, nil
}

// CandidatesByStatus returns candidates matching any of the provided statuses
// ordered by id.
func (s *Store) CandidatesByStatus(ctx context.Context, statuses ...CandidateStatus) ([]*ScanCandidate, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+candidateColumns+` FROM scan_candidates WHERE status IN (`+placeholders+`) ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query candidates by status: %w", err)
	}
	defer rows.Close()

	return collectCandidates(rows)
}

// CandidatesForMatch returns the member candidates of a match ordered by id.
// The deterministic order matters: concurrent canonicalization attempts lock
// members in this order, so the loser fails its first conditional write
// before mutating anything.
func (s *Store) CandidatesForMatch(ctx context.Context, matchID int64) ([]*ScanCandidate, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+candidateColumns+` FROM scan_candidates WHERE match_id = ? ORDER BY id`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query match members: %w", err)
	}
	defer rows.Close()

	return collectCandidates(rows)
}

// TransitionCandidate performs the atomic compare-and-swap on a candidate's
// status: the write succeeds only when the current status equals from. A
// precondition miss surfaces as a stale-state error carrying the candidate id
// and both statuses, never a silent overwrite.
func (s *Store) TransitionCandidate(ctx context.Context, id int64, from, to CandidateStatus) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE scan_candidates SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		nowTimestamp(),
		id,
		from,
	)
	if err != nil {
		return fmt.Errorf("transition candidate: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.staleCandidate(ctx, id, from, to)
	}
	return nil
}

// AttachCandidate binds a pending candidate to a match and marks it
// clustered, in one conditional write. Non-pending candidates fail with a
// stale-state error so the clustering service can skip them.
func (s *Store) AttachCandidate(ctx context.Context, id, matchID int64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE scan_candidates SET status = ?, match_id = ?, updated_at = ? WHERE id = ? AND status = ?`,
		CandidateClustered,
		matchID,
		nowTimestamp(),
		id,
		CandidatePending,
	)
	if err != nil {
		return fmt.Errorf("attach candidate: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.staleCandidate(ctx, id, CandidatePending, CandidateClustered)
	}
	return nil
}

// CandidateStats returns a count of candidates grouped by status.
func (s *Store) CandidateStats(ctx context.Context) (map[CandidateStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM scan_candidates GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("candidate stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[CandidateStatus]int)
	for rows.Next() {
		var status CandidateStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (s *Store) staleCandidate(ctx context.Context, id int64, from, to CandidateStatus) error {
	current, err := s.CandidateByID(ctx, id)
	if err != nil {
		return services.Wrap(services.ErrStale, "catalog", "transition candidate",
			fmt.Sprintf("candidate %d: expected status %q", id, from), err)
	}
	if current == nil {
		return services.Wrap(services.ErrNotFound, "catalog", "transition candidate",
			fmt.Sprintf("candidate %d", id), nil)
	}
	return services.Wrap(services.ErrStale, "catalog", "transition candidate",
		fmt.Sprintf("candidate %d: status is %q, expected %q (wanted %q)", id, current.Status, from, to), nil)
}

func collectCandidates(rows *sql.Rows) ([]*ScanCandidate, error) {
	var candidates []*ScanCandidate
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	return candidates, rows.Err()
}

func scanCandidate(scanner interface{ Scan(dest ...any) error }) (*ScanCandidate, error) {
	var (
		id         int64
		path       string
		title      string
		statusStr  string
		matchID    sql.NullInt64
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)

	if err := scanner.Scan(&id, &path, &title, &statusStr, &matchID, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	candidate := &ScanCandidate{
		ID:             id,
		Path:           path,
		HeuristicTitle: title,
		Status:         CandidateStatus(statusStr),
	}
	if matchID.Valid {
		value := matchID.Int64
		candidate.MatchID = &value
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		candidate.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		candidate.UpdatedAt = updated
	}
	return candidate, nil
}
