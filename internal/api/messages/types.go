// Package messages provides wire types for the Messages-shaped upstream
// API: the request body schema and a closed union of streaming event kinds,
// including extended-thinking blocks.
package messages

import "encoding/json"

// Request represents a Messages API request body.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature *float32  `json:"temperature,omitempty"`
	TopP        *float32  `json:"top_p,omitempty"`
	Stream      bool      `json:"stream"`
	Tools       []Tool    `json:"tools,omitempty"`
	Thinking    *Thinking `json:"thinking,omitempty"`
}

// Message represents a message in the conversation.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Content is a sequence of content blocks. A lone text block marshals back
// to a plain string so simple conversations stay in the compact form.
type Content []ContentBlock

// MarshalJSON collapses single text blocks to a string.
func (c Content) MarshalJSON() ([]byte, error) {
	if len(c) == 1 && c[0].Type == "text" {
		return json.Marshal(c[0].Text)
	}
	return json.Marshal([]ContentBlock(c))
}

// UnmarshalJSON accepts both the compact string form and the block array.
func (c *Content) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*c = Content{{Type: "text", Text: str}}
		return nil
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	*c = blocks
	return nil
}

// ContentBlock represents a single content block in a message.
type ContentBlock struct {
	Type string `json:"type"` // "text", "image", "tool_use", "tool_result"
	Text string `json:"text,omitempty"`

	// For tool_use blocks.
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`

	// For tool_result blocks.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`

	// For image blocks.
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource represents an inline image.
type ImageSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// Tool represents a tool the model can use.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema"`
}

// Thinking enables extended thinking with a token budget.
type Thinking struct {
	Type         string `json:"type"` // "enabled"
	BudgetTokens int    `json:"budget_tokens"`
}
