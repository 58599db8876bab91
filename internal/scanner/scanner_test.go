package scanner_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"curator/internal/catalog"
	"curator/internal/scanner"
	"curator/internal/testsupport"
)

func seedLibrary(t *testing.T, entries ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, entry := range entries {
		if filepath.Ext(entry) == "" {
			if err := os.MkdirAll(filepath.Join(root, entry), 0o755); err != nil {
				t.Fatalf("mkdir %s: %v", entry, err)
			}
		} else {
			testsupport.WriteLibraryFile(t, root, entry, 4<<10)
		}
	}
	return root
}

func TestScanRegistersPendingCandidates(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	root := seedLibrary(t, "Work A", "work.b.s01_disc1.mkv", ".hidden")

	summary, err := scanner.New(store, nil).Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if summary.Discovered != 2 {
		t.Fatalf("expected 2 discovered, got %+v", summary)
	}
	if summary.Skipped != 1 {
		t.Fatalf("expected hidden entry skipped, got %+v", summary)
	}

	candidate, err := store.CandidateByPath(context.Background(), filepath.Join(root, "Work A"))
	if err != nil {
		t.Fatalf("find candidate: %v", err)
	}
	if candidate == nil || candidate.Status != catalog.CandidatePending {
		t.Fatalf("expected pending candidate, got %+v", candidate)
	}

	file, err := store.CandidateByPath(context.Background(), filepath.Join(root, "work.b.s01_disc1.mkv"))
	if err != nil {
		t.Fatalf("find file candidate: %v", err)
	}
	if file == nil || file.HeuristicTitle != "work b s01 disc1" {
		t.Fatalf("expected inferred title, got %+v", file)
	}
}

func TestRescanPreservesState(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	root := seedLibrary(t, "Work A")
	ctx := context.Background()

	s := scanner.New(store, nil)
	if _, err := s.Scan(ctx, root); err != nil {
		t.Fatalf("first scan: %v", err)
	}

	candidate, err := store.CandidateByPath(ctx, filepath.Join(root, "Work A"))
	if err != nil {
		t.Fatalf("find candidate: %v", err)
	}
	match, err := store.InsertMatch(ctx, "catalog", "E1", "Work A", 92)
	if err != nil {
		t.Fatalf("insert match: %v", err)
	}
	if err := store.AttachCandidate(ctx, candidate.ID, match.ID); err != nil {
		t.Fatalf("attach candidate: %v", err)
	}

	summary, err := s.Scan(ctx, root)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if summary.Discovered != 0 || summary.Known != 1 {
		t.Fatalf("rescan must not rediscover, got %+v", summary)
	}

	reloaded, err := store.CandidateByID(ctx, candidate.ID)
	if err != nil {
		t.Fatalf("reload candidate: %v", err)
	}
	if reloaded.Status != catalog.CandidateClustered {
		t.Fatalf("rescan must not reset status, got %q", reloaded.Status)
	}
}

func TestScanMissingRoot(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	if _, err := scanner.New(store, nil).Scan(context.Background(), "/does/not/exist"); err == nil {
		t.Fatal("expected error for missing root")
	}
}
