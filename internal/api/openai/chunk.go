package openai

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewCompletionID generates a chat completion id. Every chunk of one
// request shares the same id.
func NewCompletionID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// ChunkFactory stamps chunks with the per-request completion id and the
// model name as the client requested it.
type ChunkFactory struct {
	ID    string
	Model string
}

// NewChunkFactory creates a factory with a fresh completion id.
func NewChunkFactory(model string) *ChunkFactory {
	return &ChunkFactory{ID: NewCompletionID(), Model: model}
}

// Delta builds a chunk carrying a delta and no finish reason.
func (f *ChunkFactory) Delta(delta ChunkDelta) *ChatCompletionChunk {
	return f.build(delta, nil)
}

// Finish builds the final chunk carrying a finish reason and an empty delta.
func (f *ChunkFactory) Finish(reason string) *ChatCompletionChunk {
	return f.build(ChunkDelta{}, &reason)
}

func (f *ChunkFactory) build(delta ChunkDelta, finish *string) *ChatCompletionChunk {
	return &ChatCompletionChunk{
		ID:      f.ID,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   f.Model,
		Choices: []ChunkChoice{
			{
				Index:        0,
				Delta:        delta,
				FinishReason: finish,
			},
		},
	}
}
