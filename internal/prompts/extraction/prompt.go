// Package extraction holds the prompts for per-page section and part
// extraction.
package extraction

import (
	_ "embed"

	"github.com/jackzampolin/folio/internal/prompts"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed user.tmpl
var userPromptTmpl string

// Prompt keys
const (
	SystemPromptKey = "extraction.system"
	UserPromptKey   = "extraction.user"
)

// UserData is the template data for the user prompt.
type UserData struct {
	PageNumber int
}

// SystemPrompt returns the embedded system prompt.
func SystemPrompt() string {
	return systemPrompt
}

// RegisterPrompts registers the extraction prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemPromptKey,
		Text:        systemPrompt,
		Description: "Section extraction system prompt - identifies the section code and part headings of a page",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         UserPromptKey,
		Text:        userPromptTmpl,
		Description: "Section extraction user prompt template",
	})
}
