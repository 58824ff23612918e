// Package prompts provides prompt management with embedded defaults and
// file-level overrides.
//
// Embedded .tmpl files are the source of truth for defaults. A YAML file
// (prompts_file in config) may override any key. Resolution order:
//  1. Override from the prompts file, if present
//  2. Embedded default
package prompts

// EmbeddedPrompt represents a prompt loaded from an embedded .tmpl file.
type EmbeddedPrompt struct {
	Key         string   // Hierarchical key: extraction.system
	Text        string   // The prompt text (Go template)
	Description string   // Human-readable description
	Variables   []string // Extracted template variables
	Hash        string   // SHA256 hash of the text for change detection
}

// ResolvedPrompt is the result of resolving a prompt key.
type ResolvedPrompt struct {
	Key         string   `json:"key" yaml:"key"`
	Text        string   `json:"text" yaml:"text"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Variables   []string `json:"variables,omitempty" yaml:"variables,omitempty"`
	Hash        string   `json:"hash" yaml:"hash"`
	IsOverride  bool     `json:"is_override" yaml:"is_override"`
	Source      string   `json:"source" yaml:"source"` // "embedded" or the override file path
}
