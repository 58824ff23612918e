package extract

import (
	"regexp"
	"slices"
	"strconv"

	"github.com/jackzampolin/folio/internal/document"
)

var partPattern = regexp.MustCompile(`(?i)\bpart\s*(\d+)\b`)

// Correct repairs per-page section votes into a monotonic section sequence
// and assigns section_n. It mutates pages in place and is idempotent.
//
// The pass walks the pages three times:
//  1. Boundary veto with dedupe and backfill: a page whose sections differ
//     from its (already repaired) predecessor and that carries "part N" with
//     N >= 2 is treated as a continuation and loses its sections. Lists are
//     deduplicated and an empty section list inherits the predecessor's.
//  2. Sandwich repair: a page whose neighbours agree on a different set takes
//     their set.
//  3. Index assignment: section_n starts at 0 and increments on a non-first
//     page that starts a part 1 or whose set differs from its predecessor's.
func Correct(pages []document.Page) {
	for i := range pages {
		ex := &pages[i].Extraction
		ex.Sections = dedupe(ex.Sections)
		ex.Parts = dedupe(ex.Parts)
		if i == 0 {
			continue
		}
		prev := pages[i-1].Extraction.Sections
		if !sameSet(ex.Sections, prev) && hasPartAtLeast(ex.Parts, 2) {
			ex.Sections = nil
		}
		if len(ex.Sections) == 0 {
			ex.Sections = slices.Clone(prev)
		}
	}

	for i := 1; i < len(pages)-1; i++ {
		prev := pages[i-1].Extraction.Sections
		next := pages[i+1].Extraction.Sections
		cur := &pages[i].Extraction
		if sameSet(prev, next) && !sameSet(cur.Sections, prev) {
			cur.Sections = slices.Clone(prev)
		}
	}

	n := 0
	for i := range pages {
		ex := &pages[i].Extraction
		if i > 0 && (hasPart(ex.Parts, 1) || !sameSet(ex.Sections, pages[i-1].Extraction.Sections)) {
			n++
		}
		ex.SectionN = n
	}
}

// partNumbers returns every N found in "part N" labels.
func partNumbers(parts []string) []int {
	var out []int
	for _, p := range parts {
		for _, m := range partPattern.FindAllStringSubmatch(p, -1) {
			if n, err := strconv.Atoi(m[1]); err == nil {
				out = append(out, n)
			}
		}
	}
	return out
}

func hasPart(parts []string, n int) bool {
	return slices.Contains(partNumbers(parts), n)
}

func hasPartAtLeast(parts []string, n int) bool {
	for _, v := range partNumbers(parts) {
		if v >= n {
			return true
		}
	}
	return false
}

// sameSet compares two lists as sets.
func sameSet(a, b []string) bool {
	return slices.Equal(sortedUnique(a), sortedUnique(b))
}

func sortedUnique(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

// dedupe drops repeated entries, keeping first occurrences in order.
func dedupe(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
