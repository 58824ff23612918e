package summary

import (
	"encoding/json"

	"github.com/jackzampolin/folio/internal/providers"
)

// OutputSchema is the JSON schema a section summary must satisfy.
var OutputSchema = json.RawMessage(`{
	"name": "section_summary",
	"strict": true,
	"schema": {
		"type": "object",
		"properties": {
			"section_summary": {
				"type": "string",
				"description": "Summary of the whole section"
			},
			"parts": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"part_name": {"type": "string"},
						"part_summary": {"type": "string"}
					},
					"required": ["part_name", "part_summary"]
				}
			}
		},
		"required": ["section_summary", "parts"]
	}
}`)

// Schema is the compiled OutputSchema.
var Schema = providers.MustCompileSchema(OutputSchema)
