// Package scanner walks the library root and registers unknown top-level
// entries as pending scan candidates.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"curator/internal/catalog"
	"curator/internal/logging"
	"curator/internal/services"
)

// Summary reports the outcome of one library scan.
type Summary struct {
	Discovered int `json:"discovered"`
	Known      int `json:"known"`
	Skipped    int `json:"skipped"`
}

// Scanner discovers candidate groupings in the library directory.
type Scanner struct {
	store  *catalog.Store
	logger *slog.Logger
}

// New creates a scanner backed by the catalog store.
func New(store *catalog.Store, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scanner{store: store, logger: logger.With(logging.String(logging.FieldComponent, "scanner"))}
}

// Scan registers every unknown top-level entry under root as a pending
// candidate. Entries already registered keep their current state; a rescan
// never resets pipeline progress. Hidden entries are skipped.
func (s *Scanner) Scan(ctx context.Context, root string) (Summary, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return Summary{}, services.Wrap(services.ErrValidation, "scanner", "scan", "library root must not be empty", nil)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return Summary{}, services.Wrap(services.ErrExternal, "scanner", "scan", fmt.Sprintf("read library root %q", root), err)
	}

	var summary Summary
	for _, entry := range entries {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			summary.Skipped++
			continue
		}

		path := filepath.Join(root, name)
		existing, err := s.store.CandidateByPath(ctx, path)
		if err != nil {
			return summary, err
		}
		if existing != nil {
			summary.Known++
			continue
		}

		title := inferTitle(name, entry.IsDir())
		if title == "" {
			summary.Skipped++
			s.logger.Warn("skipping entry with no usable title", logging.String("path", path))
			continue
		}

		candidate, err := s.store.InsertCandidate(ctx, path, title)
		if err != nil {
			return summary, err
		}
		summary.Discovered++
		s.logger.Info("discovered candidate",
			logging.Int64(logging.FieldCandidateID, candidate.ID),
			logging.String("path", path),
			logging.String("title", title))
	}

	s.logger.Info("scan complete",
		logging.String("root", root),
		logging.Int("discovered", summary.Discovered),
		logging.Int("known", summary.Known),
		logging.Int("skipped", summary.Skipped))
	return summary, nil
}

// inferTitle derives a heuristic display title from a directory or file name.
// Files lose their extension; separator punctuation becomes spaces.
func inferTitle(name string, isDir bool) string {
	title := name
	if !isDir {
		title = strings.TrimSuffix(title, filepath.Ext(title))
	}
	title = strings.ReplaceAll(title, ".", " ")
	title = strings.ReplaceAll(title, "_", " ")
	return strings.Join(strings.Fields(title), " ")
}
