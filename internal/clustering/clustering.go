// Package clustering groups scan candidates under identity hypotheses.
package clustering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"curator/internal/catalog"
	"curator/internal/logging"
	"curator/internal/services"
)

// Hypothesis proposes that a set of scan candidates corresponds to one
// external identity. Confidence is an opaque score in [0, 100] produced
// upstream; it passes through unmodified.
type Hypothesis struct {
	SourceType     string
	SourceID       string
	SuggestedTitle string
	Confidence     float64
}

// Cluster is the reviewer-facing aggregation of a match and its members.
type Cluster struct {
	Match   *catalog.IdentityMatch
	Members []*catalog.ScanCandidate
}

// DisplayTitle returns the cluster's reviewer-facing title.
func (c *Cluster) DisplayTitle() string {
	return c.Match.DisplayTitle()
}

// Service creates and inspects clusters.
type Service struct {
	store  *catalog.Store
	logger *slog.Logger
}

// New creates the clustering service.
func New(store *catalog.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{store: store, logger: logger.With(logging.String(logging.FieldComponent, "clustering"))}
}

// CreateCluster records a hypothesis as a suggested match and binds the given
// candidates to it. Candidates that are no longer pending are skipped with a
// warning rather than absorbed; if every candidate is skipped the match is
// rejected immediately and an invalid-state error returned.
func (s *Service) CreateCluster(ctx context.Context, hypothesis Hypothesis, candidateIDs []int64) (*Cluster, error) {
	if hypothesis.Confidence < 0 || hypothesis.Confidence > 100 {
		return nil, services.Wrap(services.ErrValidation, "clustering", "create cluster",
			fmt.Sprintf("confidence %.2f out of range [0, 100]", hypothesis.Confidence), nil)
	}
	if len(candidateIDs) == 0 {
		return nil, services.Wrap(services.ErrValidation, "clustering", "create cluster", "at least one candidate required", nil)
	}
	if strings.TrimSpace(hypothesis.SourceType) == "" || strings.TrimSpace(hypothesis.SourceID) == "" {
		return nil, services.Wrap(services.ErrValidation, "clustering", "create cluster", "source type and source id required", nil)
	}

	match, err := s.store.InsertMatch(ctx, hypothesis.SourceType, hypothesis.SourceID, hypothesis.SuggestedTitle, hypothesis.Confidence)
	if err != nil {
		return nil, err
	}

	attached := 0
	for _, candidateID := range candidateIDs {
		err := s.store.AttachCandidate(ctx, candidateID, match.ID)
		if err == nil {
			attached++
			continue
		}
		if errors.Is(err, services.ErrStale) || errors.Is(err, services.ErrNotFound) {
			s.logger.Warn("skipping candidate unavailable for clustering",
				logging.Int64(logging.FieldCandidateID, candidateID),
				logging.Int64(logging.FieldMatchID, match.ID),
				logging.Error(err))
			continue
		}
		return nil, err
	}

	if attached == 0 {
		if err := s.store.TransitionMatch(ctx, match.ID, catalog.MatchSuggested, catalog.MatchRejected); err != nil {
			return nil, err
		}
		return nil, services.Wrap(services.ErrInvalidState, "clustering", "create cluster",
			fmt.Sprintf("match %d: no candidates available for clustering", match.ID), nil)
	}

	s.logger.Info("cluster created",
		logging.Int64(logging.FieldMatchID, match.ID),
		logging.String("source_id", match.SourceID),
		logging.Int("members", attached),
		logging.Float64("confidence", match.Confidence))
	return s.GetCluster(ctx, match.ID)
}

// GetCluster returns a match and its members.
func (s *Service) GetCluster(ctx context.Context, matchID int64) (*Cluster, error) {
	match, err := s.store.MatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, services.Wrap(services.ErrNotFound, "clustering", "get cluster",
			fmt.Sprintf("match %d", matchID), nil)
	}
	members, err := s.store.CandidatesForMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	return &Cluster{Match: match, Members: members}, nil
}

// ListClusters returns clusters filtered by match status (all when no status
// is given).
func (s *Service) ListClusters(ctx context.Context, statuses ...catalog.MatchStatus) ([]*Cluster, error) {
	matches, err := s.store.MatchesByStatus(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	clusters := make([]*Cluster, 0, len(matches))
	for _, match := range matches {
		members, err := s.store.CandidatesForMatch(ctx, match.ID)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, &Cluster{Match: match, Members: members})
	}
	return clusters, nil
}
