// Package responses implements the backend adapter for Responses-shaped
// upstream APIs: Chat Completions in, Responses request out, and a streaming
// translator from Responses events back to client chunks.
package responses

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	responsesapi "github.com/modelgate/modelgate/internal/api/responses"

	"github.com/modelgate/modelgate/internal/api/openai"
	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/domain"
	"github.com/modelgate/modelgate/internal/registry"
)

// Adapter converts between the client protocol and the Responses API.
type Adapter struct {
	model *registry.ModelConfig
	cfg   config.ResponsesConfig
}

// New creates an adapter for one model configuration.
func New(model *registry.ModelConfig, cfg config.ResponsesConfig) *Adapter {
	return &Adapter{model: model, cfg: cfg}
}

func (a *Adapter) Name() string {
	return "responses"
}

var summaryLevels = map[string]bool{"auto": true, "detailed": true, "concise": true}
var verbosityLevels = map[string]bool{"low": true, "medium": true, "high": true}

// AdaptRequest builds the Responses API call. The request is always marked
// streaming, server-side storage of the turn is always disabled, and stream
// obfuscation padding is always disabled.
func (a *Adapter) AdaptRequest(req *openai.ChatCompletionRequest) (*domain.UpstreamCall, error) {
	if a.cfg.APIKey == "" {
		return nil, domain.ErrConfiguration("responses backend: api_key is not set")
	}

	baseURL := a.model.BaseURL
	if baseURL == "" {
		baseURL = a.cfg.BaseURL
	}
	if baseURL == "" {
		return nil, domain.ErrConfiguration(
			"model %q: no base_url configured for the responses backend", a.model.Name)
	}

	instructions, input := buildInput(req.Messages)

	nativeModel := a.model.DeploymentName
	if nativeModel == "" {
		nativeModel = a.cfg.Deployment
	}
	if nativeModel == "" {
		nativeModel = a.model.NativeModel
	}

	body := &responsesapi.Request{
		Model:          nativeModel,
		Instructions:   instructions,
		Input:          input,
		Tools:          convertTools(req.Tools),
		ToolChoice:     req.ToolChoice,
		PromptCacheKey: req.User,
		Store:          false,
		Stream:         true,
		StreamOptions:  &responsesapi.StreamOptions{IncludeObfuscation: false},
	}

	// Every Responses-style model must carry an explicit effort; there is
	// no silent default.
	if a.model.ReasoningEffort == "" {
		return nil, domain.ErrConfiguration(
			"model %q is missing reasoning_effort configuration", a.model.Name)
	}
	body.Reasoning = &responsesapi.Reasoning{Effort: a.model.ReasoningEffort}

	summary := a.model.SummaryLevel
	if summary == "" {
		summary = a.cfg.SummaryLevel
	}
	if !summaryLevels[summary] {
		return nil, domain.ErrConfiguration(
			"summary_level must be auto, detailed or concise, got %q", summary)
	}
	body.Reasoning.Summary = summary

	verbosity := a.model.VerbosityLevel
	if verbosity == "" {
		verbosity = a.cfg.VerbosityLevel
	}
	if !verbosityLevels[verbosity] {
		return nil, domain.ErrConfiguration(
			"verbosity_level must be low, medium or high, got %q", verbosity)
	}
	// "medium" is the backend's implicit default, only forward deviations.
	if verbosity != "medium" {
		body.Text = &responsesapi.TextOptions{Verbosity: verbosity}
	}

	truncation := a.model.TruncationStrategy
	if truncation == "" {
		truncation = a.cfg.Truncation
	}
	switch truncation {
	case "auto":
		body.Truncation = truncation
	case "disabled":
	default:
		return nil, domain.ErrConfiguration(
			"truncation must be auto or disabled, got %q", truncation)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal responses request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("api-key", a.cfg.APIKey)

	return &domain.UpstreamCall{
		Method:  http.MethodPost,
		URL:     fmt.Sprintf("%s/openai/responses?api-version=%s", strings.TrimSuffix(baseURL, "/"), a.cfg.APIVersion),
		Header:  header,
		Body:    payload,
		Timeout: 60 * time.Second,
	}, nil
}

// buildInput partitions the inbound messages into a single instructions
// string (all system/developer text, in order, blank-line separated) and the
// input item sequence built from everything else.
func buildInput(msgs []openai.ChatCompletionMessage) (string, []responsesapi.InputItem) {
	var instructionParts []string
	var input []responsesapi.InputItem

	for _, msg := range msgs {
		switch msg.Role {
		case "system", "developer":
			instructionParts = append(instructionParts, msg.Content.Text())

		case "tool":
			input = append(input, responsesapi.InputItem{
				Type:   "function_call_output",
				Output: msg.Content.Text(),
				Status: "completed",
				CallID: msg.ToolCallID,
			})

		default:
			if content := convertContent(msg.Content, msg.Role); len(content) > 0 {
				input = append(input, responsesapi.InputItem{
					Role:    msg.Role,
					Content: content,
				})
			}

			for _, call := range msg.ToolCalls {
				input = append(input, responsesapi.InputItem{
					Type:      "function_call",
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
					CallID:    call.ID,
				})
			}
		}
	}

	return strings.Join(instructionParts, "\n\n"), input
}

// convertContent maps client content parts to Responses content items. User
// text becomes input_text, assistant text output_text; images are forwarded
// as input_image references.
func convertContent(content openai.MessageContent, role string) []responsesapi.ContentItem {
	textType := "input_text"
	if role == "assistant" {
		textType = "output_text"
	}

	var items []responsesapi.ContentItem
	for _, part := range content {
		switch part.Type {
		case "text", "":
			if part.Text != "" {
				items = append(items, responsesapi.ContentItem{Type: textType, Text: part.Text})
			}
		case "image_url":
			if part.ImageURL != nil && part.ImageURL.URL != "" {
				items = append(items, responsesapi.ContentItem{Type: "input_image", ImageURL: part.ImageURL.URL})
			}
		}
	}
	return items
}

// convertTools reshapes function schemas to the flat Responses form. An
// absent tool list yields an empty array, never null.
func convertTools(tools []openai.Tool) []responsesapi.Tool {
	out := make([]responsesapi.Tool, 0, len(tools))
	for _, tool := range tools {
		if tool.Type != "function" {
			continue
		}
		out = append(out, responsesapi.Tool{
			Type:        "function",
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  tool.Function.Parameters,
			Strict:      false,
		})
	}
	return out
}
