// Package api defines the JSON payloads shared by the daemon HTTP server and
// its client.
package api

import (
	"curator/internal/catalog"
	"curator/internal/projection"
	"curator/internal/scanner"
)

// MemberView is one scan candidate inside a cluster response.
type MemberView struct {
	ID     int64  `json:"id"`
	Path   string `json:"path"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// ClusterView is the wire form of a match and its members.
type ClusterView struct {
	ID           int64        `json:"id"`
	SourceType   string       `json:"source_type"`
	SourceID     string       `json:"source_id"`
	DisplayTitle string       `json:"display_title"`
	Confidence   float64      `json:"confidence"`
	Status       string       `json:"status"`
	WorkID       *int64       `json:"work_id,omitempty"`
	Error        string       `json:"error,omitempty"`
	Members      []MemberView `json:"members"`
}

// ClusterListResponse wraps GET /api/clusters.
type ClusterListResponse struct {
	Clusters []ClusterView `json:"clusters"`
}

// CreateClusterRequest is the POST /api/clusters body: an identity hypothesis
// plus the pending candidates it covers.
type CreateClusterRequest struct {
	SourceType     string  `json:"source_type"`
	SourceID       string  `json:"source_id"`
	SuggestedTitle string  `json:"suggested_title"`
	Confidence     float64 `json:"confidence"`
	CandidateIDs   []int64 `json:"candidate_ids"`
}

// SearchResult is one identity the external source proposed for a query.
type SearchResult struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SearchResponse wraps GET /api/search.
type SearchResponse struct {
	SourceType string         `json:"source_type"`
	Results    []SearchResult `json:"results"`
}

// DaemonStatus is the GET /api/status payload.
type DaemonStatus struct {
	Running      bool                           `json:"running"`
	PID          int                            `json:"pid"`
	DatabasePath string                         `json:"database_path"`
	LockFilePath string                         `json:"lock_file_path"`
	Candidates   map[catalog.CandidateStatus]int `json:"candidates"`
	Matches      map[catalog.MatchStatus]int     `json:"matches"`
	Works        int                            `json:"works"`
	Provenance   int                            `json:"provenance"`
}

// AcceptRequest is the POST /api/clusters/{id}/accept body.
type AcceptRequest struct {
	CustomTitle string `json:"custom_title,omitempty"`
}

// CanonicalizeResponse acknowledges an enqueued canonicalization.
type CanonicalizeResponse struct {
	Accepted bool `json:"accepted"`
}

// ScanRequest optionally overrides the configured library root.
type ScanRequest struct {
	Root string `json:"root,omitempty"`
}

// LibraryResponse wraps GET /api/library.
type LibraryResponse struct {
	Entries []projection.Entry `json:"entries"`
}

// ScanResponse wraps POST /api/scan.
type ScanResponse struct {
	Summary scanner.Summary `json:"summary"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
