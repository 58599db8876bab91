package catalog

import (
	"strings"
	"time"
)

// CandidateStatus represents the lifecycle of a scan candidate.
type CandidateStatus string

const (
	CandidatePending   CandidateStatus = "pending"
	CandidateClustered CandidateStatus = "clustered"
	CandidateAccepted  CandidateStatus = "accepted"
	CandidateRejected  CandidateStatus = "rejected"
	CandidateLocked    CandidateStatus = "locked"
	CandidateMerged    CandidateStatus = "merged"
)

var allCandidateStatuses = []CandidateStatus{
	CandidatePending,
	CandidateClustered,
	CandidateAccepted,
	CandidateRejected,
	CandidateLocked,
	CandidateMerged,
}

var candidateStatusSet = func() map[CandidateStatus]struct{} {
	set := make(map[CandidateStatus]struct{}, len(allCandidateStatuses))
	for _, status := range allCandidateStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseCandidateStatus converts a string into a known CandidateStatus.
func ParseCandidateStatus(value string) (CandidateStatus, bool) {
	normalized := CandidateStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := candidateStatusSet[normalized]
	return normalized, ok
}

// MatchStatus represents the lifecycle of an identity match candidate.
type MatchStatus string

const (
	MatchSuggested     MatchStatus = "suggested"
	MatchAccepted      MatchStatus = "accepted"
	MatchRejected      MatchStatus = "rejected"
	MatchCanonicalized MatchStatus = "canonicalized"
)

var allMatchStatuses = []MatchStatus{
	MatchSuggested,
	MatchAccepted,
	MatchRejected,
	MatchCanonicalized,
}

var matchStatusSet = func() map[MatchStatus]struct{} {
	set := make(map[MatchStatus]struct{}, len(allMatchStatuses))
	for _, status := range allMatchStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseMatchStatus converts a string into a known MatchStatus.
func ParseMatchStatus(value string) (MatchStatus, bool) {
	normalized := MatchStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := matchStatusSet[normalized]
	return normalized, ok
}

// ScanCandidate is a raw, scanner-detected grouping of filesystem items.
// Candidates are never deleted; merged is terminal and immutable thereafter.
type ScanCandidate struct {
	ID             int64
	Path           string
	HeuristicTitle string
	Status         CandidateStatus
	MatchID        *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IdentityMatch is a hypothesis that a cluster of scan candidates corresponds
// to one external identity record. The confidence score is opaque and passes
// through the pipeline unmodified.
type IdentityMatch struct {
	ID             int64
	SourceType     string
	SourceID       string
	SuggestedTitle string
	CustomTitle    string
	Confidence     float64
	Status         MatchStatus
	WorkID         *int64
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DisplayTitle returns the reviewer-facing title, honouring any override
// supplied at accept time.
func (m *IdentityMatch) DisplayTitle() string {
	if title := strings.TrimSpace(m.CustomTitle); title != "" {
		return title
	}
	return m.SuggestedTitle
}
