package extract

import (
	"encoding/json"
	"fmt"

	"github.com/jackzampolin/folio/internal/providers"
)

// Fields voted on independently.
const (
	fieldPageNumber = "page_number"
	fieldSections   = "sections"
	fieldParts      = "parts"
)

var votedFields = []string{fieldPageNumber, fieldSections, fieldParts}

// Tally is the outcome of voting over the sampled choices of one call.
type Tally struct {
	PageNumber any
	Sections   any
	Parts      any
	// Valid counts choices that parsed; Invalid counts the rest.
	Valid   int
	Invalid int
}

// Vote parses every choice and takes a plurality vote per field. Values are
// compared by their canonical JSON encoding (sorted keys, compact). Ties go to
// the value seen first.
func Vote(contents []string) Tally {
	var t Tally
	samples := make([]map[string]any, 0, len(contents))
	for _, c := range contents {
		s, err := parseChoice(c)
		if err != nil {
			t.Invalid++
			continue
		}
		samples = append(samples, s)
	}
	t.Valid = len(samples)
	if t.Valid == 0 {
		return t
	}

	winners := make(map[string]any, len(votedFields))
	for _, field := range votedFields {
		values := make([]any, 0, len(samples))
		for _, s := range samples {
			values = append(values, s[field])
		}
		winners[field] = plurality(values)
	}
	t.PageNumber = winners[fieldPageNumber]
	t.Sections = winners[fieldSections]
	t.Parts = winners[fieldParts]
	return t
}

// parseChoice strips code fences, decodes the JSON object and requires the
// three voted fields to be present.
func parseChoice(content string) (map[string]any, error) {
	raw, err := providers.ParseStructuredJSON(content)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("choice is not a JSON object: %w", err)
	}
	for _, field := range votedFields {
		if _, ok := obj[field]; !ok {
			return nil, fmt.Errorf("choice is missing %q", field)
		}
	}
	return obj, nil
}

// canonical encodes v as compact JSON. encoding/json sorts map keys, so
// structurally equal values produce identical strings.
func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}

// plurality returns the most frequent value, preferring the earliest seen on
// ties. The winner is returned in its decoded form.
func plurality(values []any) any {
	counts := make(map[string]int, len(values))
	first := make(map[string]int, len(values))
	for i, v := range values {
		k := canonical(v)
		if _, ok := first[k]; !ok {
			first[k] = i
		}
		counts[k]++
	}

	best, bestCount, bestFirst := "", -1, len(values)
	for k, c := range counts {
		if c > bestCount || (c == bestCount && first[k] < bestFirst) {
			best, bestCount, bestFirst = k, c, first[k]
		}
	}
	if bestCount < 0 {
		return nil
	}
	return values[first[best]]
}
