package clustering_test

import (
	"context"
	"errors"
	"testing"

	"curator/internal/catalog"
	"curator/internal/clustering"
	"curator/internal/services"
	"curator/internal/testsupport"
)

func seedCandidates(t *testing.T, store *catalog.Store, paths ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(paths))
	for _, path := range paths {
		candidate, err := store.InsertCandidate(context.Background(), path, "Work A")
		if err != nil {
			t.Fatalf("insert candidate %s: %v", path, err)
		}
		ids = append(ids, candidate.ID)
	}
	return ids
}

func TestCreateClusterBindsMembers(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	service := clustering.New(store, nil)
	ids := seedCandidates(t, store, "/library/a", "/library/b")

	cluster, err := service.CreateCluster(context.Background(), clustering.Hypothesis{
		SourceType:     "catalog",
		SourceID:       "E1",
		SuggestedTitle: "Work A",
		Confidence:     92,
	}, ids)
	if err != nil {
		t.Fatalf("create cluster: %v", err)
	}

	if cluster.Match.Status != catalog.MatchSuggested {
		t.Fatalf("expected suggested match, got %q", cluster.Match.Status)
	}
	if len(cluster.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(cluster.Members))
	}
	for _, member := range cluster.Members {
		if member.Status != catalog.CandidateClustered {
			t.Fatalf("expected clustered member, got %q", member.Status)
		}
		if member.MatchID == nil || *member.MatchID != cluster.Match.ID {
			t.Fatalf("member %d not bound to match", member.ID)
		}
	}
}

func TestCreateClusterConfidenceOutOfRange(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	service := clustering.New(store, nil)
	ids := seedCandidates(t, store, "/library/a")

	for _, confidence := range []float64{-1, 100.5} {
		_, err := service.CreateCluster(context.Background(), clustering.Hypothesis{
			SourceType:     "catalog",
			SourceID:       "E1",
			SuggestedTitle: "Work A",
			Confidence:     confidence,
		}, ids)
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("confidence %v: expected validation error, got %v", confidence, err)
		}
	}
}

func TestCreateClusterSkipsNonPending(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	service := clustering.New(store, nil)
	ctx := context.Background()
	ids := seedCandidates(t, store, "/library/a", "/library/b")

	// First cluster claims candidate a.
	if _, err := service.CreateCluster(ctx, clustering.Hypothesis{
		SourceType: "catalog", SourceID: "E1", SuggestedTitle: "Work A", Confidence: 92,
	}, ids[:1]); err != nil {
		t.Fatalf("first cluster: %v", err)
	}

	cluster, err := service.CreateCluster(ctx, clustering.Hypothesis{
		SourceType: "catalog", SourceID: "E2", SuggestedTitle: "Work A", Confidence: 70,
	}, ids)
	if err != nil {
		t.Fatalf("second cluster: %v", err)
	}
	if len(cluster.Members) != 1 || cluster.Members[0].ID != ids[1] {
		t.Fatalf("expected only the pending candidate absorbed, got %d members", len(cluster.Members))
	}
}

func TestCreateClusterAllSkippedRejectsMatch(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	service := clustering.New(store, nil)
	ctx := context.Background()
	ids := seedCandidates(t, store, "/library/a")

	if _, err := service.CreateCluster(ctx, clustering.Hypothesis{
		SourceType: "catalog", SourceID: "E1", SuggestedTitle: "Work A", Confidence: 92,
	}, ids); err != nil {
		t.Fatalf("first cluster: %v", err)
	}

	_, err := service.CreateCluster(ctx, clustering.Hypothesis{
		SourceType: "catalog", SourceID: "E2", SuggestedTitle: "Work A", Confidence: 70,
	}, ids)
	if !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected invalid-state error, got %v", err)
	}

	rejected, err := store.MatchesByStatus(ctx, catalog.MatchRejected)
	if err != nil {
		t.Fatalf("list rejected: %v", err)
	}
	if len(rejected) != 1 {
		t.Fatalf("expected empty cluster's match rejected, got %d", len(rejected))
	}
}

func TestGetClusterNotFound(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	service := clustering.New(store, nil)

	if _, err := service.GetCluster(context.Background(), 9999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestListClustersFiltersByStatus(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	service := clustering.New(store, nil)
	ctx := context.Background()
	ids := seedCandidates(t, store, "/library/a", "/library/b")

	first, err := service.CreateCluster(ctx, clustering.Hypothesis{
		SourceType: "catalog", SourceID: "E1", SuggestedTitle: "Work A", Confidence: 92,
	}, ids[:1])
	if err != nil {
		t.Fatalf("first cluster: %v", err)
	}
	if _, err := service.CreateCluster(ctx, clustering.Hypothesis{
		SourceType: "catalog", SourceID: "E2", SuggestedTitle: "Work B", Confidence: 55,
	}, ids[1:]); err != nil {
		t.Fatalf("second cluster: %v", err)
	}
	if err := store.AcceptMatch(ctx, first.Match.ID, ""); err != nil {
		t.Fatalf("accept first: %v", err)
	}

	suggested, err := service.ListClusters(ctx, catalog.MatchSuggested)
	if err != nil {
		t.Fatalf("list suggested: %v", err)
	}
	if len(suggested) != 1 || suggested[0].Match.SourceID != "E2" {
		t.Fatalf("unexpected suggested clusters: %d", len(suggested))
	}

	all, err := service.ListClusters(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(all))
	}
}
