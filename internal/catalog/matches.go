package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"curator/internal/services"
)

const matchColumns = "id, source_type, source_id, suggested_title, custom_title, confidence, status, work_id, error_message, created_at, updated_at"

// InsertMatch records a new identity hypothesis with status suggested. The
// confidence score is stored as supplied; range checks belong to the
// clustering service.
func (s *Store) InsertMatch(ctx context.Context, sourceType, sourceID, suggestedTitle string, confidence float64) (*IdentityMatch, error) {
	sourceType = strings.TrimSpace(sourceType)
	sourceID = strings.TrimSpace(sourceID)
	suggestedTitle = strings.TrimSpace(suggestedTitle)
	if sourceType == "" || sourceID == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "insert match", "source type and source id must not be empty", nil)
	}
	if suggestedTitle == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "insert match", "suggested title must not be empty", nil)
	}

	timestamp := nowTimestamp()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO match_candidates (source_type, source_id, suggested_title, confidence, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sourceType,
		sourceID,
		suggestedTitle,
		confidence,
		MatchSuggested,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert match: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.MatchByID(ctx, id)
}

// MatchByID fetches an identity match by identifier. Returns nil when the id
// is unknown.
func (s *Store) MatchByID(ctx context.Context, id int64) (*IdentityMatch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM match_candidates WHERE id = ?`, id)
	match, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get match: %w", err)
	}
	return match, nil
}

// MatchesByStatus returns matches filtered by status set (or all matches when
// no status is provided), ordered by creation time.
func (s *Store) MatchesByStatus(ctx context.Context, statuses ...MatchStatus) ([]*IdentityMatch, error) {
	baseQuery := `SELECT ` + matchColumns + ` FROM match_candidates`
	orderClause := ` ORDER BY created_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("query matches by status: %w", err)
	}
	defer rows.Close()

	var matches []*IdentityMatch
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}

// TransitionMatch performs the atomic compare-and-swap on a match's status.
func (s *Store) TransitionMatch(ctx context.Context, id int64, from, to MatchStatus) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE match_candidates SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		nowTimestamp(),
		id,
		from,
	)
	if err != nil {
		return fmt.Errorf("transition match: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.staleMatch(ctx, id, from, to)
	}
	return nil
}

// AcceptMatch moves a suggested match to accepted, recording the optional
// title override in the same conditional write.
func (s *Store) AcceptMatch(ctx context.Context, id int64, customTitle string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE match_candidates SET status = ?, custom_title = ?, updated_at = ? WHERE id = ? AND status = ?`,
		MatchAccepted,
		nullableString(strings.TrimSpace(customTitle)),
		nowTimestamp(),
		id,
		MatchSuggested,
	)
	if err != nil {
		return fmt.Errorf("accept match: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.staleMatch(ctx, id, MatchSuggested, MatchAccepted)
	}
	return nil
}

// FinalizeMatch moves an accepted match to canonicalized and records the
// canonical work it resolved to, in one conditional write.
func (s *Store) FinalizeMatch(ctx context.Context, id, workID int64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE match_candidates SET status = ?, work_id = ?, error_message = NULL, updated_at = ? WHERE id = ? AND status = ?`,
		MatchCanonicalized,
		workID,
		nowTimestamp(),
		id,
		MatchAccepted,
	)
	if err != nil {
		return fmt.Errorf("finalize match: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.staleMatch(ctx, id, MatchAccepted, MatchCanonicalized)
	}
	return nil
}

// SetMatchError records a failure message on a match for status polling. The
// status itself is left untouched.
func (s *Store) SetMatchError(ctx context.Context, id int64, message string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE match_candidates SET error_message = ?, updated_at = ? WHERE id = ?`,
		nullableString(strings.TrimSpace(message)),
		nowTimestamp(),
		id,
	)
	if err != nil {
		return fmt.Errorf("set match error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "catalog", "set match error", fmt.Sprintf("match %d", id), nil)
	}
	return nil
}

// CountMembers returns the number of candidates bound to a match.
func (s *Store) CountMembers(ctx context.Context, matchID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM scan_candidates WHERE match_id = ?`, matchID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return count, nil
}

// MatchStats returns a count of matches grouped by status.
func (s *Store) MatchStats(ctx context.Context) (map[MatchStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM match_candidates GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("match stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[MatchStatus]int)
	for rows.Next() {
		var status MatchStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (s *Store) staleMatch(ctx context.Context, id int64, from, to MatchStatus) error {
	current, err := s.MatchByID(ctx, id)
	if err != nil {
		return services.Wrap(services.ErrStale, "catalog", "transition match",
			fmt.Sprintf("match %d: expected status %q", id, from), err)
	}
	if current == nil {
		return services.Wrap(services.ErrNotFound, "catalog", "transition match",
			fmt.Sprintf("match %d", id), nil)
	}
	return services.Wrap(services.ErrStale, "catalog", "transition match",
		fmt.Sprintf("match %d: status is %q, expected %q (wanted %q)", id, current.Status, from, to), nil)
}

func scanMatch(scanner interface{ Scan(dest ...any) error }) (*IdentityMatch, error) {
	var (
		id           int64
		sourceType   string
		sourceID     string
		suggested    string
		custom       sql.NullString
		confidence   float64
		statusStr    string
		workID       sql.NullInt64
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(&id, &sourceType, &sourceID, &suggested, &custom, &confidence, &statusStr, &workID, &errorMessage, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	match := &IdentityMatch{
		ID:             id,
		SourceType:     sourceType,
		SourceID:       sourceID,
		SuggestedTitle: suggested,
		CustomTitle:    custom.String,
		Confidence:     confidence,
		Status:         MatchStatus(statusStr),
		ErrorMessage:   errorMessage.String,
	}
	if workID.Valid {
		value := workID.Int64
		match.WorkID = &value
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		match.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		match.UpdatedAt = updated
	}
	return match, nil
}
