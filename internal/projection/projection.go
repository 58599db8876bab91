// Package projection derives the unified library feed from pipeline state.
package projection

import (
	"context"
	"log/slog"

	"curator/internal/catalog"
	"curator/internal/logging"
)

// EntryType classifies a feed row. It is a derived fact computed here;
// clients never infer it.
type EntryType string

const (
	EntryCanonical EntryType = "canonical"
	EntrySuggested EntryType = "suggested"
	EntryOrphan    EntryType = "orphan"
)

// Entry is one row of the library feed.
type Entry struct {
	EntryType     EntryType `json:"entry_type"`
	DisplayTitle  string    `json:"display_title"`
	CoverImageURL string    `json:"cover_image_url,omitempty"`
	ClusterID     *int64    `json:"cluster_id,omitempty"`
	CanonicalID   *int64    `json:"canonical_id,omitempty"`
	InstanceCount int       `json:"instance_count"`
	Confidence    *float64  `json:"confidence,omitempty"`
}

// Feed builds the library read model.
type Feed struct {
	store  *catalog.Store
	logger *slog.Logger
}

// New creates a feed projection.
func New(store *catalog.Store, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Feed{store: store, logger: logger.With(logging.String(logging.FieldComponent, "projection"))}
}

// Entries returns the feed: canonical rows from works (with merged member
// counts), suggested rows from suggested and accepted matches, and orphan
// rows from pending candidates and the members of rejected matches.
func (f *Feed) Entries(ctx context.Context) ([]Entry, error) {
	var entries []Entry

	works, err := f.store.ListWorks(ctx)
	if err != nil {
		return nil, err
	}
	for _, work := range works {
		merged, err := f.store.MergedCountForWork(ctx, work.ID)
		if err != nil {
			return nil, err
		}
		canonicalID := work.ID
		entries = append(entries, Entry{
			EntryType:     EntryCanonical,
			DisplayTitle:  work.Title,
			CoverImageURL: work.Extra["cover_image_url"],
			CanonicalID:   &canonicalID,
			InstanceCount: merged,
		})
	}

	pendingReview, err := f.store.MatchesByStatus(ctx, catalog.MatchSuggested, catalog.MatchAccepted)
	if err != nil {
		return nil, err
	}
	for _, match := range pendingReview {
		members, err := f.store.CountMembers(ctx, match.ID)
		if err != nil {
			return nil, err
		}
		clusterID := match.ID
		confidence := match.Confidence
		entries = append(entries, Entry{
			EntryType:     EntrySuggested,
			DisplayTitle:  match.DisplayTitle(),
			ClusterID:     &clusterID,
			InstanceCount: members,
			Confidence:    &confidence,
		})
	}

	orphans, err := f.orphans(ctx)
	if err != nil {
		return nil, err
	}
	entries = append(entries, orphans...)

	f.logger.Debug("feed built", logging.Int("entries", len(entries)))
	return entries, nil
}

// orphans are candidates with no live hypothesis: never clustered, or
// clustered under a hypothesis the reviewer rejected.
func (f *Feed) orphans(ctx context.Context) ([]Entry, error) {
	var entries []Entry

	pending, err := f.store.CandidatesByStatus(ctx, catalog.CandidatePending)
	if err != nil {
		return nil, err
	}
	for _, candidate := range pending {
		entries = append(entries, Entry{
			EntryType:     EntryOrphan,
			DisplayTitle:  candidate.HeuristicTitle,
			InstanceCount: 1,
		})
	}

	rejected, err := f.store.MatchesByStatus(ctx, catalog.MatchRejected)
	if err != nil {
		return nil, err
	}
	for _, match := range rejected {
		members, err := f.store.CandidatesForMatch(ctx, match.ID)
		if err != nil {
			return nil, err
		}
		for _, member := range members {
			clusterID := match.ID
			entries = append(entries, Entry{
				EntryType:     EntryOrphan,
				DisplayTitle:  member.HeuristicTitle,
				ClusterID:     &clusterID,
				InstanceCount: 1,
			})
		}
	}
	return entries, nil
}
