// Package responses provides wire types for the Responses-shaped upstream
// API: the request body schema and a closed union of streaming event kinds.
package responses

// Request represents a Responses API request body.
type Request struct {
	Model          string         `json:"model"`
	Instructions   string         `json:"instructions,omitempty"`
	Input          []InputItem    `json:"input,omitempty"`
	Tools          []Tool         `json:"tools"`
	ToolChoice     any            `json:"tool_choice,omitempty"`
	Reasoning      *Reasoning     `json:"reasoning,omitempty"`
	Text           *TextOptions   `json:"text,omitempty"`
	Truncation     string         `json:"truncation,omitempty"`
	PromptCacheKey string         `json:"prompt_cache_key,omitempty"`
	Store          bool           `json:"store"`
	Stream         bool           `json:"stream"`
	StreamOptions  *StreamOptions `json:"stream_options,omitempty"`
}

// InputItem is one entry of the input sequence. A message item carries Role
// and Content; function_call and function_call_output items carry the
// remaining fields.
type InputItem struct {
	Role    string        `json:"role,omitempty"`
	Content []ContentItem `json:"content,omitempty"`

	Type      string `json:"type,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Output    string `json:"output,omitempty"`
	Status    string `json:"status,omitempty"`
}

// ContentItem is one content part of a message input item.
type ContentItem struct {
	Type     string `json:"type"` // "input_text", "output_text", "input_image"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Tool is the flattened function schema the Responses API expects.
type Tool struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters"`
	Strict      bool   `json:"strict"`
}

// Reasoning configures reasoning effort and summary exposure.
type Reasoning struct {
	Effort  string `json:"effort"`
	Summary string `json:"summary,omitempty"`
}

// TextOptions carries output text settings.
type TextOptions struct {
	Verbosity string `json:"verbosity"`
}

// StreamOptions configures stream framing. Obfuscation padding is always
// disabled for low-latency decoding.
type StreamOptions struct {
	IncludeObfuscation bool `json:"include_obfuscation"`
}
