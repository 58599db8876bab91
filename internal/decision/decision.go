// Package decision applies human accept/reject verdicts to suggested matches.
package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"curator/internal/catalog"
	"curator/internal/logging"
	"curator/internal/services"
)

// Service records reviewer verdicts. Neither verdict triggers
// canonicalization; that is a separate, explicit step.
type Service struct {
	store  *catalog.Store
	logger *slog.Logger
}

// New creates the decision service.
func New(store *catalog.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{store: store, logger: logger.With(logging.String(logging.FieldComponent, "decision"))}
}

// Accept confirms a suggested match, recording an optional title override,
// and moves each member candidate clustered→accepted. Accepting a match in
// any other state is an invalid-state error; there is no idempotent no-op.
func (s *Service) Accept(ctx context.Context, matchID int64, customTitle string) error {
	match, err := s.requireMatch(ctx, matchID, "accept")
	if err != nil {
		return err
	}
	if match.Status != catalog.MatchSuggested {
		return services.Wrap(services.ErrInvalidState, "decision", "accept",
			fmt.Sprintf("match %d: status is %q, expected %q", matchID, match.Status, catalog.MatchSuggested), nil)
	}

	if err := s.store.AcceptMatch(ctx, matchID, customTitle); err != nil {
		return s.mapStale(err, "decision", "accept")
	}

	members, err := s.store.CandidatesForMatch(ctx, matchID)
	if err != nil {
		return err
	}
	for _, member := range members {
		if err := s.store.TransitionCandidate(ctx, member.ID, catalog.CandidateClustered, catalog.CandidateAccepted); err != nil {
			return err
		}
	}

	s.logger.Info("match accepted",
		logging.Int64(logging.FieldMatchID, matchID),
		logging.Int("members", len(members)),
		logging.Bool("custom_title", customTitle != ""))
	return nil
}

// Reject discards a suggested match. Member candidates keep their clustered
// status and match binding; they surface as orphans in the projection.
func (s *Service) Reject(ctx context.Context, matchID int64) error {
	match, err := s.requireMatch(ctx, matchID, "reject")
	if err != nil {
		return err
	}
	if match.Status != catalog.MatchSuggested {
		return services.Wrap(services.ErrInvalidState, "decision", "reject",
			fmt.Sprintf("match %d: status is %q, expected %q", matchID, match.Status, catalog.MatchSuggested), nil)
	}

	if err := s.store.TransitionMatch(ctx, matchID, catalog.MatchSuggested, catalog.MatchRejected); err != nil {
		return s.mapStale(err, "decision", "reject")
	}

	s.logger.Info("match rejected", logging.Int64(logging.FieldMatchID, matchID))
	return nil
}

func (s *Service) requireMatch(ctx context.Context, matchID int64, operation string) (*catalog.IdentityMatch, error) {
	match, err := s.store.MatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, services.Wrap(services.ErrNotFound, "decision", operation,
			fmt.Sprintf("match %d", matchID), nil)
	}
	return match, nil
}

// mapStale converts a CAS miss that slipped past the precondition read into
// an invalid-state error; the verdict raced with another writer.
func (s *Service) mapStale(err error, component, operation string) error {
	if errors.Is(err, services.ErrStale) {
		return services.Wrap(services.ErrInvalidState, component, operation, "match changed state during decision", err)
	}
	return err
}
