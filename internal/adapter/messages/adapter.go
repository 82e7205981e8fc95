// Package messages implements the backend adapter for Messages-shaped
// upstream APIs with extended thinking: Chat Completions in, Messages
// request out, and a streaming translator from Messages events back to
// client chunks.
package messages

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	messagesapi "github.com/modelgate/modelgate/internal/api/messages"

	"github.com/modelgate/modelgate/internal/api/openai"
	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/domain"
	"github.com/modelgate/modelgate/internal/registry"
)

const (
	defaultBaseURL = "https://api.anthropic.com"

	// defaultMaxTokens is the fallback when neither the request nor the
	// model configuration sets a limit. High, to leave room for thinking.
	defaultMaxTokens = 64000

	interleavedThinkingBeta = "interleaved-thinking-2025-05-14"
)

// Adapter converts between the client protocol and the Messages API.
type Adapter struct {
	model *registry.ModelConfig
	cfg   config.MessagesConfig
}

// New creates an adapter for one model configuration.
func New(model *registry.ModelConfig, cfg config.MessagesConfig) *Adapter {
	return &Adapter{model: model, cfg: cfg}
}

func (a *Adapter) Name() string {
	return "messages"
}

// AdaptRequest builds the Messages API call. System and developer text is
// pulled out into the system field: this backend rejects system role entries
// inside the message array.
func (a *Adapter) AdaptRequest(req *openai.ChatCompletionRequest) (*domain.UpstreamCall, error) {
	if a.cfg.APIKey == "" {
		return nil, domain.ErrConfiguration("messages backend: api_key is not set")
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = a.model.MaxOutputTokens
	}
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	body := &messagesapi.Request{
		Model:       a.model.NativeModel,
		Messages:    convertMessages(req.Messages),
		MaxTokens:   maxTokens,
		System:      extractSystem(req.Messages),
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      true,
	}

	if len(req.Tools) > 0 {
		body.Tools = convertTools(req.Tools)
	}

	interleaved := false
	if budget := a.model.ThinkingBudget; budget > 0 {
		// The budget is part of max_tokens, not additive; keep headroom for
		// the visible answer even when the client asked for fewer tokens
		// than the configured budget.
		if body.MaxTokens <= budget {
			body.MaxTokens = budget + 1024
		}
		body.Thinking = &messagesapi.Thinking{Type: "enabled", BudgetTokens: budget}
		interleaved = supportsInterleavedThinking(a.model.NativeModel)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal messages request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("x-api-key", a.cfg.APIKey)
	header.Set("anthropic-version", a.cfg.Version)
	if interleaved {
		header.Set("anthropic-beta", interleavedThinkingBeta)
	}

	baseURL := a.model.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &domain.UpstreamCall{
		Method:  http.MethodPost,
		URL:     strings.TrimSuffix(baseURL, "/") + "/v1/messages",
		Header:  header,
		Body:    payload,
		Timeout: 60 * time.Second,
	}, nil
}

// supportsInterleavedThinking reports whether the model family accepts
// reasoning between sequential tool calls.
func supportsInterleavedThinking(model string) bool {
	for _, family := range []string{"claude-opus-4", "claude-sonnet-4", "claude-haiku-4"} {
		if strings.HasPrefix(model, family) {
			return true
		}
	}
	return false
}

// extractSystem concatenates all system and developer message text. The
// Messages API takes the system prompt as a separate field.
func extractSystem(msgs []openai.ChatCompletionMessage) string {
	var parts []string
	for _, msg := range msgs {
		if msg.Role == "system" || msg.Role == "developer" {
			if text := msg.Content.Text(); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// convertMessages maps the remaining client messages to Messages API form.
// Tool results become user-role tool_result blocks; assistant tool calls
// become tool_use blocks appended to that assistant's content.
func convertMessages(msgs []openai.ChatCompletionMessage) []messagesapi.Message {
	var out []messagesapi.Message

	for _, msg := range msgs {
		switch msg.Role {
		case "system", "developer":
			continue

		case "tool":
			out = append(out, messagesapi.Message{
				Role: "user",
				Content: messagesapi.Content{
					{
						Type:      "tool_result",
						ToolUseID: msg.ToolCallID,
						Content:   msg.Content.Text(),
					},
				},
			})
			continue

		case "user", "assistant":
			content := convertContent(msg.Content)
			if len(content) > 0 {
				out = append(out, messagesapi.Message{Role: msg.Role, Content: content})
			}
		}

		if len(msg.ToolCalls) == 0 {
			continue
		}

		var toolUse messagesapi.Content
		for _, call := range msg.ToolCalls {
			block := messagesapi.ContentBlock{
				Type: "tool_use",
				ID:   call.ID,
				Name: call.Function.Name,
			}
			// input must always be an object, even for zero-argument calls.
			if call.Function.Arguments != "" {
				block.Input = json.RawMessage(call.Function.Arguments)
			} else {
				block.Input = json.RawMessage("{}")
			}
			toolUse = append(toolUse, block)
		}

		if len(out) > 0 && out[len(out)-1].Role == "assistant" {
			last := &out[len(out)-1]
			last.Content = append(last.Content, toolUse...)
		} else {
			out = append(out, messagesapi.Message{Role: "assistant", Content: toolUse})
		}
	}

	return out
}

// convertContent maps client content parts to Messages content blocks,
// converting data-URL images to inline base64 sources.
func convertContent(content openai.MessageContent) messagesapi.Content {
	var blocks messagesapi.Content
	for _, part := range content {
		switch part.Type {
		case "text", "":
			if part.Text != "" {
				blocks = append(blocks, messagesapi.ContentBlock{Type: "text", Text: part.Text})
			}
		case "image_url":
			if part.ImageURL == nil {
				continue
			}
			if source, ok := parseDataURL(part.ImageURL.URL); ok {
				blocks = append(blocks, messagesapi.ContentBlock{Type: "image", Source: source})
			}
		}
	}
	return blocks
}

// parseDataURL splits a data:media/type;base64,payload URL into an inline
// image source. Anything else is dropped.
func parseDataURL(url string) (*messagesapi.ImageSource, bool) {
	if !strings.HasPrefix(url, "data:") {
		return nil, false
	}
	header, data, ok := strings.Cut(url, ",")
	if !ok {
		return nil, false
	}
	mediaType := strings.TrimPrefix(header, "data:")
	mediaType, _, _ = strings.Cut(mediaType, ";")
	if mediaType == "" || data == "" {
		return nil, false
	}
	return &messagesapi.ImageSource{Type: "base64", MediaType: mediaType, Data: data}, true
}

// convertTools reshapes function schemas to the Messages form.
func convertTools(tools []openai.Tool) []messagesapi.Tool {
	out := make([]messagesapi.Tool, 0, len(tools))
	for _, tool := range tools {
		if tool.Type != "function" {
			continue
		}
		out = append(out, messagesapi.Tool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: tool.Function.Parameters,
		})
	}
	return out
}
