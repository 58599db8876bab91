package catalog

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var foldCaser = cases.Fold()

// NormalizeName produces the dedup key for named canonical entities
// (studios, people, roles, characters). Keys are insensitive to case,
// surrounding and repeated whitespace, character width, and Unicode
// composition, so "Studio  ZED" and "studio zed" resolve to one entity.
func NormalizeName(name string) string {
	folded := foldCaser.String(width.Fold.String(norm.NFKC.String(name)))
	return strings.Join(strings.Fields(folded), " ")
}
