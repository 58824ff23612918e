package providers

import (
	"context"
	"fmt"
	"time"
)

// LLMClient is the interface for chat completion backends.
type LLMClient interface {
	// Chat sends a chat completion request. Transport failures are returned
	// as errors together with a non-nil, unsuccessful result.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)

	// Name returns the client identifier (e.g., "openrouter").
	Name() string
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content part types.
const (
	PartText  = "text"
	PartFile  = "file"
	PartImage = "image_url"
)

// ContentPart is one element of a multipart message.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	FileData string `json:"file_data,omitempty"` // data URL
	Filename string `json:"filename,omitempty"`
}

// Message represents a chat message. Parts, when set, take precedence over
// Content.
type Message struct {
	Role    string        `json:"role"` // "system", "user", "assistant"
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`
}

// TextMessage builds a plain text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: text}
}

// PDFDataURL wraps base64 PDF bytes in a data URL.
func PDFDataURL(b64 string) string {
	return "data:application/pdf;base64," + b64
}

// PageMessage builds the user turn that carries one page of a PDF document.
func PageMessage(pageNum int, b64 string) Message {
	return Message{
		Role: RoleUser,
		Parts: []ContentPart{
			{Type: PartText, Text: fmt.Sprintf("PDF document page for the Context, page #%d", pageNum)},
			{Type: PartFile, FileData: PDFDataURL(b64), Filename: fmt.Sprintf("page_%04d.pdf", pageNum)},
		},
	}
}

// ChatRequest is a request to an LLM.
type ChatRequest struct {
	// Required
	Messages []Message `json:"messages"`

	// Model selection (uses client default if empty)
	Model string `json:"model,omitempty"`

	// Sampling parameters
	N           int      `json:"n,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Timeout     time.Duration

	// Request tracking
	RequestID string `json:"-"`
}

// Clone returns a deep copy so a ticket can amend its transcript without
// racing a request still held by a client.
func (r *ChatRequest) Clone() *ChatRequest {
	out := *r
	out.Messages = make([]Message, len(r.Messages))
	for i, m := range r.Messages {
		m.Parts = append([]ContentPart(nil), m.Parts...)
		out.Messages[i] = m
	}
	out.Stop = append([]string(nil), r.Stop...)
	return &out
}

// Append adds messages to the transcript.
func (r *ChatRequest) Append(msgs ...Message) {
	r.Messages = append(r.Messages, msgs...)
}

// Choice is one sampled completion.
type Choice struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
}

// Usage is the token accounting reported by the backend.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
}

// ChatResult is the complete response from an LLM call.
type ChatResult struct {
	Choices []Choice `json:"choices"`
	// Usage is nil when the backend did not report it.
	Usage *Usage `json:"usage,omitempty"`

	// Timing
	ExecutionTime time.Duration `json:"execution_time"`

	// Provider info
	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`

	// Request tracking
	RequestID string `json:"request_id"`
	Attempts  int    `json:"attempts"`

	// Success/error
	Success      bool   `json:"success"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Content returns the first choice's text, or "" when there are no choices.
func (r *ChatResult) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Content
}

// failedResult fills the error fields of a result.
func failedResult(result *ChatResult, errType string, err error, start time.Time) *ChatResult {
	result.Success = false
	result.ErrorType = errType
	result.ErrorMessage = err.Error()
	result.ExecutionTime = time.Since(start)
	return result
}
