package canonicalize_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"curator/internal/canonicalize"
	"curator/internal/catalog"
	"curator/internal/clustering"
	"curator/internal/decision"
	"curator/internal/provider"
	"curator/internal/services"
	"curator/internal/testsupport"
)

type fakeProvider struct {
	payloads map[string]*provider.WorkPayload
	err      error
}

func (f *fakeProvider) SourceType() string { return "catalog" }

func (f *fakeProvider) Search(ctx context.Context, query string) ([]provider.SearchResult, error) {
	return nil, nil
}

func (f *fakeProvider) Lookup(ctx context.Context, sourceID string) (*provider.WorkPayload, error) {
	if f.err != nil {
		return nil, f.err
	}
	payload, ok := f.payloads[sourceID]
	if !ok {
		return nil, fmt.Errorf("source entry %q not found", sourceID)
	}
	return payload, nil
}

func acceptedCluster(t *testing.T, store *catalog.Store, sourceID string, paths ...string) *clustering.Cluster {
	t.Helper()
	ctx := context.Background()

	ids := make([]int64, 0, len(paths))
	for _, path := range paths {
		candidate, err := store.InsertCandidate(ctx, path, "Work A")
		if err != nil {
			t.Fatalf("insert candidate %s: %v", path, err)
		}
		ids = append(ids, candidate.ID)
	}
	cluster, err := clustering.New(store, nil).CreateCluster(ctx, clustering.Hypothesis{
		SourceType:     "catalog",
		SourceID:       sourceID,
		SuggestedTitle: "Work A",
		Confidence:     92,
	}, ids)
	if err != nil {
		t.Fatalf("create cluster: %v", err)
	}
	if err := decision.New(store, nil).Accept(ctx, cluster.Match.ID, ""); err != nil {
		t.Fatalf("accept: %v", err)
	}
	return cluster
}

func workAProvider() *fakeProvider {
	return &fakeProvider{payloads: map[string]*provider.WorkPayload{
		"E1": {
			ID:      "E1",
			Title:   "Work A",
			Studios: []string{"Studio Zed"},
			Staff:   []provider.Credit{{Name: "Jane Doe", Role: "Director"}},
			Characters: []provider.CharacterCredit{
				{Name: "Hero", VoiceActor: "Sam Voice"},
			},
		},
		"E2": {
			ID:      "E2",
			Title:   "Work B",
			Studios: []string{"studio zed"},
		},
	}}
}

func TestCanonicalizeHappyPath(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	cluster := acceptedCluster(t, store, "E1", "/library/Work A")

	resolution, err := canonicalize.New(store, workAProvider(), nil).Canonicalize(ctx, cluster.Match.ID)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if !resolution.WorkCreated {
		t.Fatal("expected work creation")
	}

	match, err := store.MatchByID(ctx, cluster.Match.ID)
	if err != nil {
		t.Fatalf("reload match: %v", err)
	}
	if match.Status != catalog.MatchCanonicalized {
		t.Fatalf("expected canonicalized, got %q", match.Status)
	}
	if match.WorkID == nil || *match.WorkID != resolution.WorkID {
		t.Fatalf("expected work binding %d, got %+v", resolution.WorkID, match.WorkID)
	}

	members, err := store.CandidatesForMatch(ctx, cluster.Match.ID)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	for _, member := range members {
		if member.Status != catalog.CandidateMerged {
			t.Fatalf("expected merged member, got %q", member.Status)
		}
	}

	work, err := store.WorkByID(ctx, resolution.WorkID)
	if err != nil {
		t.Fatalf("work: %v", err)
	}
	links, err := store.ProvenanceFor(ctx, catalog.EntityWork, work.ID)
	if err != nil {
		t.Fatalf("provenance: %v", err)
	}
	if len(links) != 1 || links[0].SourceID != "E1" {
		t.Fatalf("expected one provenance link from E1, got %#v", links)
	}
}

func TestCanonicalizeUnknownMatch(t *testing.T) {
	store := testsupport.MustOpenStore(t)

	_, err := canonicalize.New(store, workAProvider(), nil).Canonicalize(context.Background(), 9999)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestCanonicalizeRequiresAcceptedMatch(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()

	candidate, err := store.InsertCandidate(ctx, "/library/a", "Work A")
	if err != nil {
		t.Fatalf("insert candidate: %v", err)
	}
	cluster, err := clustering.New(store, nil).CreateCluster(ctx, clustering.Hypothesis{
		SourceType: "catalog", SourceID: "E1", SuggestedTitle: "Work A", Confidence: 92,
	}, []int64{candidate.ID})
	if err != nil {
		t.Fatalf("create cluster: %v", err)
	}

	orchestrator := canonicalize.New(store, workAProvider(), nil)

	if _, err := orchestrator.Canonicalize(ctx, cluster.Match.ID); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("suggested match: expected invalid-state error, got %v", err)
	}

	if err := decision.New(store, nil).Reject(ctx, cluster.Match.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := orchestrator.Canonicalize(ctx, cluster.Match.ID); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("rejected match: expected invalid-state error, got %v", err)
	}
}

func TestCanonicalizeTwiceFailsWithoutSideEffects(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	cluster := acceptedCluster(t, store, "E1", "/library/Work A")
	orchestrator := canonicalize.New(store, workAProvider(), nil)

	if _, err := orchestrator.Canonicalize(ctx, cluster.Match.ID); err != nil {
		t.Fatalf("first canonicalize: %v", err)
	}
	before, err := store.CanonicalCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}

	if _, err := orchestrator.Canonicalize(ctx, cluster.Match.ID); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected invalid-state error on re-invoke, got %v", err)
	}

	after, err := store.CanonicalCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if before != after {
		t.Fatalf("re-invoke must create nothing: before=%+v after=%+v", before, after)
	}
}

func TestCanonicalizeConcurrentAttempts(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	cluster := acceptedCluster(t, store, "E1", "/library/Work A")
	orchestrator := canonicalize.New(store, workAProvider(), nil)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, results[slot] = orchestrator.Canonicalize(ctx, cluster.Match.ID)
		}(i)
	}
	wg.Wait()

	var succeeded, concurrent int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, services.ErrConcurrent) || errors.Is(err, services.ErrInvalidState):
			concurrent++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || concurrent != 1 {
		t.Fatalf("expected exactly one winner, got %d successes / %d losses", succeeded, concurrent)
	}

	counts, err := store.CanonicalCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Works != 1 {
		t.Fatalf("expected a single work despite the race, got %d", counts.Works)
	}
}

func TestCanonicalizePreLockedMember(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	cluster := acceptedCluster(t, store, "E1", "/library/Work A")

	member := cluster.Members[0]
	if err := store.TransitionCandidate(ctx, member.ID, catalog.CandidateAccepted, catalog.CandidateLocked); err != nil {
		t.Fatalf("pre-lock member: %v", err)
	}

	_, err := canonicalize.New(store, workAProvider(), nil).Canonicalize(ctx, cluster.Match.ID)
	if !errors.Is(err, services.ErrConcurrent) {
		t.Fatalf("expected concurrent error, got %v", err)
	}
	if !services.Retryable(err) {
		t.Fatal("concurrent canonicalization must be retryable")
	}
}

func TestCanonicalizeProviderFailureLeavesMembersLocked(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	cluster := acceptedCluster(t, store, "E1", "/library/Work A")

	failing := &fakeProvider{err: errors.New("connection refused")}
	_, err := canonicalize.New(store, failing, nil).Canonicalize(ctx, cluster.Match.ID)
	if !errors.Is(err, services.ErrPartial) {
		t.Fatalf("expected partial error, got %v", err)
	}

	match, err := store.MatchByID(ctx, cluster.Match.ID)
	if err != nil {
		t.Fatalf("reload match: %v", err)
	}
	if match.Status != catalog.MatchAccepted {
		t.Fatalf("match must stay accepted on step failure, got %q", match.Status)
	}
	if match.ErrorMessage == "" {
		t.Fatal("expected failure recorded on match")
	}

	members, err := store.CandidatesForMatch(ctx, cluster.Match.ID)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	for _, member := range members {
		if member.Status != catalog.CandidateLocked {
			t.Fatalf("members must stay locked after step failure, got %q", member.Status)
		}
	}

	counts, err := store.CanonicalCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts != (catalog.Counts{}) {
		t.Fatalf("failed lookup must create nothing, got %+v", counts)
	}
}

func TestCanonicalizeDeduplicatesAcrossRuns(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	orchestrator := canonicalize.New(store, workAProvider(), nil)

	first := acceptedCluster(t, store, "E1", "/library/Work A")
	if _, err := orchestrator.Canonicalize(ctx, first.Match.ID); err != nil {
		t.Fatalf("first canonicalize: %v", err)
	}

	second := acceptedCluster(t, store, "E2", "/library/Work B")
	if _, err := orchestrator.Canonicalize(ctx, second.Match.ID); err != nil {
		t.Fatalf("second canonicalize: %v", err)
	}

	counts, err := store.CanonicalCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Works != 2 {
		t.Fatalf("expected 2 works, got %d", counts.Works)
	}
	if counts.Studios != 1 {
		t.Fatalf("expected the shared studio deduplicated, got %d", counts.Studios)
	}

	studio, _, err := store.EnsureStudio(ctx, "Studio Zed")
	if err != nil {
		t.Fatalf("ensure studio: %v", err)
	}
	links, err := store.ProvenanceFor(ctx, catalog.EntityStudio, studio.ID)
	if err != nil {
		t.Fatalf("provenance: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected both sources to vouch for the studio, got %d links", len(links))
	}
}
