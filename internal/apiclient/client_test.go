package apiclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"curator/internal/api"
	"curator/internal/apiclient"
	"curator/internal/catalog"
)

func TestNewRequiresAddress(t *testing.T) {
	if _, err := apiclient.New("  "); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestStatusRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" || r.Method != http.MethodGet {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, Works: 3})
	}))
	t.Cleanup(server.Close)

	client, err := apiclient.New(server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Running || status.Works != 3 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestClustersSendsStatusFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query()["status"]; len(got) != 1 || got[0] != "suggested" {
			t.Fatalf("unexpected status filter %v", got)
		}
		_ = json.NewEncoder(w).Encode(api.ClusterListResponse{
			Clusters: []api.ClusterView{{ID: 1, DisplayTitle: "Work A"}},
		})
	}))
	t.Cleanup(server.Close)

	client, err := apiclient.New(server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	clusters, err := client.Clusters(context.Background(), catalog.MatchSuggested)
	if err != nil {
		t.Fatalf("clusters: %v", err)
	}
	if len(clusters) != 1 || clusters[0].DisplayTitle != "Work A" {
		t.Fatalf("unexpected clusters: %+v", clusters)
	}
}

func TestCreateClusterSendsHypothesis(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/clusters" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req api.CreateClusterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.SourceID != "E1" || len(req.CandidateIDs) != 2 {
			t.Fatalf("unexpected request: %+v", req)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(api.ClusterView{ID: 3, Status: "suggested"})
	}))
	t.Cleanup(server.Close)

	client, err := apiclient.New(server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	view, err := client.CreateCluster(context.Background(), api.CreateClusterRequest{
		SourceID:     "E1",
		Confidence:   92,
		CandidateIDs: []int64{1, 2},
	})
	if err != nil {
		t.Fatalf("create cluster: %v", err)
	}
	if view.ID != 3 {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestSearchSendsQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" || r.URL.Query().Get("query") != "Work A" {
			t.Fatalf("unexpected request %s %s", r.URL.Path, r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(api.SearchResponse{
			SourceType: "catalog",
			Results:    []api.SearchResult{{ID: "E1", Title: "Work A"}},
		})
	}))
	t.Cleanup(server.Close)

	client, err := apiclient.New(server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	resp, err := client.Search(context.Background(), "Work A")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "E1" {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}

	if _, err := client.Search(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestAcceptSendsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/clusters/7/accept" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req api.AcceptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.CustomTitle != "Override" {
			t.Fatalf("unexpected title %q", req.CustomTitle)
		}
		_ = json.NewEncoder(w).Encode(api.ClusterView{ID: 7, Status: "accepted"})
	}))
	t.Cleanup(server.Close)

	client, err := apiclient.New(server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	view, err := client.Accept(context.Background(), 7, "Override")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if view.Status != "accepted" {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestErrorBodySurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "match 7: status is \"accepted\""})
	}))
	t.Cleanup(server.Close)

	client, err := apiclient.New(server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Accept(context.Background(), 7, ""); err == nil {
		t.Fatal("expected error from 409 response")
	}
}

func TestCanonicalizeChecksAck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(api.CanonicalizeResponse{Accepted: true})
	}))
	t.Cleanup(server.Close)

	client, err := apiclient.New(server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Canonicalize(context.Background(), 7); err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
}
