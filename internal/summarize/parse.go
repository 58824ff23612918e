package summarize

import (
	"encoding/json"
	"fmt"

	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/prompts/summary"
	"github.com/jackzampolin/folio/internal/providers"
)

type output struct {
	SectionSummary string          `json:"section_summary"`
	Parts          []document.Part `json:"parts"`
}

// Parse strips code fences from a summary response, validates it against the
// summary schema and decodes it.
func Parse(content string) (string, []document.Part, error) {
	raw, err := providers.ParseStructuredJSON(content)
	if err != nil {
		return "", nil, err
	}
	if err := summary.Schema.Validate(raw); err != nil {
		return "", nil, err
	}
	var out output
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	if out.Parts == nil {
		out.Parts = []document.Part{}
	}
	return out.SectionSummary, out.Parts, nil
}
