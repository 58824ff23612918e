package summary

import (
	"encoding/json"
	"testing"

	"github.com/jackzampolin/folio/internal/prompts"
)

func TestRegisterPrompts(t *testing.T) {
	r := prompts.NewResolver(nil)
	RegisterPrompts(r)

	for _, key := range []string{SystemPromptKey, UserPromptKey} {
		if _, err := r.Render(key, nil); err != nil {
			t.Errorf("Render(%s) error = %v", key, err)
		}
	}
}

func TestSchema(t *testing.T) {
	valid := json.RawMessage(`{"section_summary":"s","parts":[{"part_name":"PART 1","part_summary":"p"}]}`)
	if err := Schema.Validate(valid); err != nil {
		t.Errorf("Validate(valid) error = %v", err)
	}

	noParts := json.RawMessage(`{"section_summary":"s"}`)
	if err := Schema.Validate(noParts); err == nil {
		t.Error("expected error when parts is missing")
	}

	badPart := json.RawMessage(`{"section_summary":"s","parts":[{"part_name":"PART 1"}]}`)
	if err := Schema.Validate(badPart); err == nil {
		t.Error("expected error when part_summary is missing")
	}
}
