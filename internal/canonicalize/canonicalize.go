// Package canonicalize runs the locked state machine that turns an accepted
// match into canonical catalog entries.
package canonicalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"curator/internal/catalog"
	"curator/internal/logging"
	"curator/internal/provider"
	"curator/internal/resolver"
	"curator/internal/services"
)

// Orchestrator drives one canonicalization attempt end to end.
type Orchestrator struct {
	store    *catalog.Store
	provider provider.Client
	resolver *resolver.Resolver
	logger   *slog.Logger
}

// New creates an orchestrator.
func New(store *catalog.Store, client provider.Client, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldComponent, "canonicalize"))
	return &Orchestrator{
		store:    store,
		provider: client,
		resolver: resolver.New(store, logger),
		logger:   logger,
	}
}

// Canonicalize locks an accepted match's members, resolves the provider
// payload into canonical entities, and finalizes the match.
//
// Members are locked accepted→locked one conditional write at a time, in
// ascending candidate id order; the loser of a concurrent attempt fails its
// first lock having locked nothing. Failures after locking leave members
// locked and surface as partial-canonicalization errors for the operator;
// nothing unlocks automatically.
func (o *Orchestrator) Canonicalize(ctx context.Context, matchID int64) (*resolver.Resolution, error) {
	attemptID := uuid.NewString()
	logger := o.logger.With(
		logging.String(logging.FieldAttemptID, attemptID),
		logging.Int64(logging.FieldMatchID, matchID))

	match, err := o.store.MatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, services.Wrap(services.ErrNotFound, "canonicalize", "canonicalize",
			fmt.Sprintf("match %d", matchID), nil)
	}
	if match.Status != catalog.MatchAccepted {
		return nil, services.Wrap(services.ErrInvalidState, "canonicalize", "canonicalize",
			fmt.Sprintf("match %d: status is %q, expected %q", matchID, match.Status, catalog.MatchAccepted), nil)
	}

	members, err := o.store.CandidatesForMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	logger.Info("canonicalization started",
		logging.String("source_id", match.SourceID),
		logging.Int("members", len(members)))

	for _, member := range members {
		if err := o.store.TransitionCandidate(ctx, member.ID, catalog.CandidateAccepted, catalog.CandidateLocked); err != nil {
			if errors.Is(err, services.ErrStale) {
				return nil, services.Wrap(services.ErrConcurrent, "canonicalize", "lock members",
					fmt.Sprintf("match %d: candidate %d already claimed by another attempt", matchID, member.ID), err)
			}
			return nil, err
		}
	}

	payload, err := o.provider.Lookup(ctx, match.SourceID)
	if err != nil {
		return nil, o.fail(ctx, logger, match, "provider lookup", err)
	}

	resolution, err := o.resolver.Resolve(ctx, match, payload)
	if err != nil {
		return nil, o.fail(ctx, logger, match, "entity resolution", err)
	}

	if err := o.store.FinalizeMatch(ctx, matchID, resolution.WorkID); err != nil {
		return nil, o.integrity(ctx, logger, match, "finalize match", err)
	}
	for _, member := range members {
		if err := o.store.TransitionCandidate(ctx, member.ID, catalog.CandidateLocked, catalog.CandidateMerged); err != nil {
			return nil, o.integrity(ctx, logger, match, fmt.Sprintf("merge candidate %d", member.ID), err)
		}
	}

	logger.Info("canonicalization complete",
		logging.Int64(logging.FieldWorkID, resolution.WorkID),
		logging.Bool("work_created", resolution.WorkCreated),
		logging.Int("entities_created", resolution.EntitiesCreated),
		logging.Int("entities_reused", resolution.EntitiesReused),
		logging.Int("provenance_links", resolution.ProvenanceLinks))
	return resolution, nil
}

// fail records a step failure on the match and wraps it as a partial
// canonicalization. Members remain locked for the operator to inspect.
func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, match *catalog.IdentityMatch, step string, cause error) error {
	message := fmt.Sprintf("%s failed: %v", step, cause)
	if err := o.store.SetMatchError(ctx, match.ID, message); err != nil {
		logger.Error("record match error", logging.String(logging.FieldStep, step), logging.Error(err))
	}
	logger.Error("canonicalization failed",
		logging.String(logging.FieldStep, step),
		logging.String(logging.FieldErrorHint, "members remain locked; unlock to retry"),
		logging.Error(cause))
	return services.Wrap(services.ErrPartial, "canonicalize", step,
		fmt.Sprintf("match %d: members remain locked", match.ID), cause)
}

// integrity handles a conditional-write miss during finalization. The store
// no longer matches what this attempt observed; this is never auto-retried.
func (o *Orchestrator) integrity(ctx context.Context, logger *slog.Logger, match *catalog.IdentityMatch, step string, cause error) error {
	message := fmt.Sprintf("%s failed during finalization: %v", step, cause)
	if err := o.store.SetMatchError(ctx, match.ID, message); err != nil {
		logger.Error("record match error", logging.String(logging.FieldStep, step), logging.Error(err))
	}
	logger.Error("finalization integrity failure",
		logging.String(logging.FieldStep, step),
		logging.String(logging.FieldErrorHint, "manual intervention required"),
		logging.Error(cause))
	return services.Wrap(services.ErrPartial, "canonicalize", step,
		fmt.Sprintf("match %d: state diverged during finalization, manual intervention required", match.ID), cause)
}
