// Package resolver turns a provider payload into canonical entities,
// relationship links, and provenance records.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"curator/internal/catalog"
	"curator/internal/logging"
	"curator/internal/provider"
)

// The fallback role recorded when a staff credit arrives without one.
const defaultRole = "staff"

// Resolution reports what one canonicalization attempt touched.
type Resolution struct {
	WorkID            int64
	WorkCreated       bool
	EntitiesCreated   int
	EntitiesReused    int
	ProvenanceLinks   int
	SkippedCategories []string
}

// Resolver resolves payloads against the canonical side of the catalog.
type Resolver struct {
	store  *catalog.Store
	logger *slog.Logger
}

// New creates a resolver.
func New(store *catalog.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{store: store, logger: logger.With(logging.String(logging.FieldComponent, "resolver"))}
}

// Resolve finds or creates the canonical work for the match's external
// identity, resolves every related entity the payload supplies, records the
// supplied relationship links, and appends one provenance link per entity
// touched. Reuse still appends provenance: the ledger answers "which sources
// vouch for this entity", not "which source created it".
//
// Title precedence for a created work: reviewer override, then payload title,
// then the clustering suggestion.
func (r *Resolver) Resolve(ctx context.Context, match *catalog.IdentityMatch, payload *provider.WorkPayload) (*Resolution, error) {
	title := strings.TrimSpace(match.CustomTitle)
	if title == "" {
		title = strings.TrimSpace(payload.Title)
	}
	if title == "" {
		title = match.SuggestedTitle
	}

	resolution := &Resolution{}
	work, created, err := r.store.EnsureWork(ctx, match.SourceType, match.SourceID, title, payload.Extra)
	if err != nil {
		return nil, fmt.Errorf("resolve work: %w", err)
	}
	resolution.WorkID = work.ID
	resolution.WorkCreated = created
	r.count(resolution, created)
	if err := r.vouch(ctx, resolution, catalog.EntityWork, work.ID, match); err != nil {
		return nil, err
	}

	if len(payload.Studios) == 0 {
		r.skip(resolution, match, "studios")
	}
	for _, name := range payload.Studios {
		studio, created, err := r.store.EnsureStudio(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolve studio %q: %w", name, err)
		}
		r.count(resolution, created)
		if err := r.vouch(ctx, resolution, catalog.EntityStudio, studio.ID, match); err != nil {
			return nil, err
		}
		if err := r.store.LinkWorkStudio(ctx, work.ID, studio.ID); err != nil {
			return nil, err
		}
	}

	if len(payload.Staff) == 0 {
		r.skip(resolution, match, "staff")
	}
	for _, credit := range payload.Staff {
		person, created, err := r.store.EnsurePerson(ctx, credit.Name)
		if err != nil {
			return nil, fmt.Errorf("resolve person %q: %w", credit.Name, err)
		}
		r.count(resolution, created)
		if err := r.vouch(ctx, resolution, catalog.EntityPerson, person.ID, match); err != nil {
			return nil, err
		}

		roleName := strings.TrimSpace(credit.Role)
		if roleName == "" {
			roleName = defaultRole
		}
		role, created, err := r.store.EnsureRole(ctx, roleName)
		if err != nil {
			return nil, fmt.Errorf("resolve role %q: %w", roleName, err)
		}
		r.count(resolution, created)
		if err := r.vouch(ctx, resolution, catalog.EntityRole, role.ID, match); err != nil {
			return nil, err
		}

		if err := r.store.LinkWorkStaff(ctx, work.ID, person.ID, role.ID); err != nil {
			return nil, err
		}
	}

	if len(payload.Characters) == 0 {
		r.skip(resolution, match, "characters")
	}
	for _, credit := range payload.Characters {
		character, created, err := r.store.EnsureCharacter(ctx, work.ID, credit.Name)
		if err != nil {
			return nil, fmt.Errorf("resolve character %q: %w", credit.Name, err)
		}
		r.count(resolution, created)
		if err := r.vouch(ctx, resolution, catalog.EntityCharacter, character.ID, match); err != nil {
			return nil, err
		}

		if strings.TrimSpace(credit.VoiceActor) == "" {
			continue
		}
		actor, created, err := r.store.EnsurePerson(ctx, credit.VoiceActor)
		if err != nil {
			return nil, fmt.Errorf("resolve voice actor %q: %w", credit.VoiceActor, err)
		}
		r.count(resolution, created)
		if err := r.vouch(ctx, resolution, catalog.EntityPerson, actor.ID, match); err != nil {
			return nil, err
		}
		if err := r.store.LinkCharacterVoice(ctx, character.ID, actor.ID); err != nil {
			return nil, err
		}
	}

	r.logger.Info("payload resolved",
		logging.Int64(logging.FieldMatchID, match.ID),
		logging.Int64(logging.FieldWorkID, work.ID),
		logging.Bool("work_created", resolution.WorkCreated),
		logging.Int("entities_created", resolution.EntitiesCreated),
		logging.Int("entities_reused", resolution.EntitiesReused),
		logging.Int("provenance_links", resolution.ProvenanceLinks))
	return resolution, nil
}

func (r *Resolver) count(resolution *Resolution, created bool) {
	if created {
		resolution.EntitiesCreated++
	} else {
		resolution.EntitiesReused++
	}
}

func (r *Resolver) vouch(ctx context.Context, resolution *Resolution, entityType catalog.EntityType, entityID int64, match *catalog.IdentityMatch) error {
	if err := r.store.AppendProvenance(ctx, entityType, entityID, match.SourceType, match.SourceID); err != nil {
		return err
	}
	resolution.ProvenanceLinks++
	return nil
}

func (r *Resolver) skip(resolution *Resolution, match *catalog.IdentityMatch, category string) {
	resolution.SkippedCategories = append(resolution.SkippedCategories, category)
	r.logger.Info("payload supplies no entries for category",
		logging.Int64(logging.FieldMatchID, match.ID),
		logging.String("category", category))
}
