package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"curator/internal/canonicalize"
	"curator/internal/catalog"
	"curator/internal/clustering"
	"curator/internal/decision"
	"curator/internal/provider"
	"curator/internal/services"
	"curator/internal/testsupport"
	"curator/internal/workflow"
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

func newManager(t *testing.T, store *catalog.Store, client provider.Client) *workflow.Manager {
	t.Helper()
	manager := workflow.NewManager(store, canonicalize.New(store, client, nil), 2, 4, 50*time.Millisecond, nil)
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	t.Cleanup(manager.Stop)
	return manager
}

func acceptedCluster(t *testing.T, store *catalog.Store, sourceID, path string) *clustering.Cluster {
	t.Helper()
	ctx := context.Background()

	candidate, err := store.InsertCandidate(ctx, path, "Work A")
	if err != nil {
		t.Fatalf("insert candidate: %v", err)
	}
	cluster, err := clustering.New(store, nil).CreateCluster(ctx, clustering.Hypothesis{
		SourceType:     "catalog",
		SourceID:       sourceID,
		SuggestedTitle: "Work A",
		Confidence:     92,
	}, []int64{candidate.ID})
	if err != nil {
		t.Fatalf("create cluster: %v", err)
	}
	if err := decision.New(store, nil).Accept(ctx, cluster.Match.ID, ""); err != nil {
		t.Fatalf("accept: %v", err)
	}
	return cluster
}

func waitForStatus(t *testing.T, store *catalog.Store, matchID int64, want catalog.MatchStatus) *catalog.IdentityMatch {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		match, err := store.MatchByID(context.Background(), matchID)
		if err != nil {
			t.Fatalf("reload match: %v", err)
		}
		if match.Status == want {
			return match
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("match %d never reached status %q", matchID, want)
	return nil
}

func waitForError(t *testing.T, store *catalog.Store, matchID int64) *catalog.IdentityMatch {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		match, err := store.MatchByID(context.Background(), matchID)
		if err != nil {
			t.Fatalf("reload match: %v", err)
		}
		if match.ErrorMessage != "" {
			return match
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("match %d never recorded an error", matchID)
	return nil
}

func TestEnqueueRunsCanonicalization(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	client := &fakeProvider{payloads: map[string]*provider.WorkPayload{
		"E1": {ID: "E1", Title: "Work A"},
	}}
	manager := newManager(t, store, client)
	cluster := acceptedCluster(t, store, "E1", "/library/Work A")

	if err := manager.Enqueue(context.Background(), cluster.Match.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	match := waitForStatus(t, store, cluster.Match.ID, catalog.MatchCanonicalized)
	if match.WorkID == nil {
		t.Fatal("expected work binding after canonicalization")
	}
}

func TestEnqueuePreconditions(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	manager := newManager(t, store, &fakeProvider{})
	ctx := context.Background()

	if err := manager.Enqueue(ctx, 9999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}

	match, err := store.InsertMatch(ctx, "catalog", "E1", "Work A", 92)
	if err != nil {
		t.Fatalf("insert match: %v", err)
	}
	if err := manager.Enqueue(ctx, match.ID); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected invalid-state error for suggested match, got %v", err)
	}
}

func TestEnqueueWhenStopped(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	manager := workflow.NewManager(store, canonicalize.New(store, &fakeProvider{}, nil), 1, 1, 0, nil)

	if err := manager.Enqueue(context.Background(), 1); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected invalid-state error, got %v", err)
	}
}

func TestPartialFailureRecordedForPolling(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	client := &fakeProvider{err: errors.New("connection refused")}
	manager := newManager(t, store, client)
	cluster := acceptedCluster(t, store, "E1", "/library/Work A")

	if err := manager.Enqueue(context.Background(), cluster.Match.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	match := waitForError(t, store, cluster.Match.ID)
	if match.Status != catalog.MatchAccepted {
		t.Fatalf("expected match still accepted, got %q", match.Status)
	}
}

func TestRetryAfterLostLockRace(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	client := &fakeProvider{payloads: map[string]*provider.WorkPayload{
		"E1": {ID: "E1", Title: "Work A"},
	}}
	manager := newManager(t, store, client)
	ctx := context.Background()
	cluster := acceptedCluster(t, store, "E1", "/library/Work A")

	// Hold the member's lock as a competing attempt would, so the first run
	// loses the race, then release it before the retry fires.
	member := cluster.Members[0]
	if err := store.TransitionCandidate(ctx, member.ID, catalog.CandidateAccepted, catalog.CandidateLocked); err != nil {
		t.Fatalf("lock member: %v", err)
	}
	if err := manager.Enqueue(ctx, cluster.Match.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if err := store.TransitionCandidate(ctx, member.ID, catalog.CandidateLocked, catalog.CandidateAccepted); err != nil {
		t.Fatalf("release member: %v", err)
	}

	waitForStatus(t, store, cluster.Match.ID, catalog.MatchCanonicalized)
}

func TestUnlockRecoversStuckMatch(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	client := &fakeProvider{err: errors.New("connection refused")}
	manager := newManager(t, store, client)
	ctx := context.Background()
	cluster := acceptedCluster(t, store, "E1", "/library/Work A")

	if err := manager.Enqueue(ctx, cluster.Match.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitForError(t, store, cluster.Match.ID)

	if err := manager.Unlock(ctx, cluster.Match.ID); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	match, err := store.MatchByID(ctx, cluster.Match.ID)
	if err != nil {
		t.Fatalf("reload match: %v", err)
	}
	if match.ErrorMessage != "" {
		t.Fatalf("expected error cleared, got %q", match.ErrorMessage)
	}

	members, err := store.CandidatesForMatch(ctx, cluster.Match.ID)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	for _, member := range members {
		if member.Status != catalog.CandidateAccepted {
			t.Fatalf("expected member returned to accepted, got %q", member.Status)
		}
	}

	// The match is retryable: give the provider the payload and run again.
	client.err = nil
	client.payloads = map[string]*provider.WorkPayload{"E1": {ID: "E1", Title: "Work A"}}
	if err := manager.Enqueue(ctx, cluster.Match.ID); err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	waitForStatus(t, store, cluster.Match.ID, catalog.MatchCanonicalized)
}

func TestUnlockRequiresAcceptedMatch(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	manager := newManager(t, store, &fakeProvider{})
	ctx := context.Background()

	if err := manager.Unlock(ctx, 9999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}

	match, err := store.InsertMatch(ctx, "catalog", "E1", "Work A", 92)
	if err != nil {
		t.Fatalf("insert match: %v", err)
	}
	if err := manager.Unlock(ctx, match.ID); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected invalid-state error, got %v", err)
	}
}

func TestStartTwiceFails(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	manager := newManager(t, store, &fakeProvider{})

	if err := manager.Start(context.Background()); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected invalid-state error, got %v", err)
	}
}
