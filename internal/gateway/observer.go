package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/modelgate/modelgate/internal/api/openai"
	"github.com/modelgate/modelgate/internal/registry"
	"github.com/modelgate/modelgate/internal/server"
)

// completionObserver reconstructs the completion text from the frames
// written to the client. It runs inline on the write path and must stay
// cheap; frames that do not decode as chunks are counted raw and skipped.
type completionObserver struct {
	content  strings.Builder
	thinking strings.Builder
	frames   bytes.Buffer
	finish   string
}

func newCompletionObserver() *completionObserver {
	return &completionObserver{}
}

func (o *completionObserver) observe(data []byte) {
	o.frames.Write(data)
	o.frames.WriteByte('\n')

	var chunk openai.ChatCompletionChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return
	}
	for _, choice := range chunk.Choices {
		o.content.WriteString(choice.Delta.Content)
		o.thinking.WriteString(choice.Delta.Thinking)
		if choice.FinishReason != nil {
			o.finish = *choice.FinishReason
		}
	}
}

// raw returns every observed frame payload, newline separated.
func (o *completionObserver) raw() []byte {
	return o.frames.Bytes()
}

// logCompletion emits the reconstructed completion with an estimated token
// count. Estimation failures degrade to a count of -1 rather than failing.
func (h *Handler) logCompletion(ctx context.Context, model *registry.ModelConfig, o *completionObserver) {
	text := o.content.String()

	count, err := h.estimator.Count(model.NativeModel, text)
	if err != nil {
		count = -1
	}

	h.logger.Info("completion finished",
		slog.String("request_id", server.GetRequestID(ctx)),
		slog.String("model", model.Name),
		slog.String("finish_reason", o.finish),
		slog.Int("completion_chars", len(text)),
		slog.Int("thinking_chars", o.thinking.Len()),
		slog.Int("completion_tokens_estimate", count),
	)
}
