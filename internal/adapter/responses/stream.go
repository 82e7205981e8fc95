package responses

import (
	"context"
	"encoding/json"
	"io"

	responsesapi "github.com/modelgate/modelgate/internal/api/responses"

	"github.com/modelgate/modelgate/internal/api/openai"
	"github.com/modelgate/modelgate/internal/domain"
	"github.com/modelgate/modelgate/internal/sse"
)

// translator is the per-request state machine turning Responses events into
// client chunks. It is owned exclusively by the request that created it.
type translator struct {
	chunks *openai.ChunkFactory

	// toolIndex maps the backend's output item id to the client tool-call
	// index assigned when the slot was opened. Slots are never renumbered.
	toolIndex map[string]int
	nextTool  int
}

func newTranslator(model string) *translator {
	return &translator{
		chunks:    openai.NewChunkFactory(model),
		toolIndex: make(map[string]int),
	}
}

// translate emits at most one client chunk per event. done reports that the
// terminal event was seen and no further events should be consumed.
func (t *translator) translate(ev responsesapi.StreamEvent) (chunk *openai.ChatCompletionChunk, done bool) {
	switch ev.Kind {
	case responsesapi.EventCreated:
		return t.chunks.Delta(openai.ChunkDelta{Role: "assistant"}), false

	case responsesapi.EventOutputTextDelta:
		if ev.Delta == "" {
			return nil, false
		}
		return t.chunks.Delta(openai.ChunkDelta{Content: ev.Delta}), false

	case responsesapi.EventReasoningSummaryDelta:
		if ev.Delta == "" {
			return nil, false
		}
		return t.chunks.Delta(openai.ChunkDelta{Thinking: ev.Delta}), false

	case responsesapi.EventOutputItemAdded:
		if ev.Item == nil || ev.Item.Type != "function_call" {
			return nil, false
		}
		index := t.nextTool
		t.nextTool++
		t.toolIndex[ev.Item.ID] = index
		return t.chunks.Delta(openai.ChunkDelta{
			ToolCalls: []openai.ToolCallChunk{
				{
					Index:    index,
					ID:       ev.Item.CallID,
					Type:     "function",
					Function: &openai.FunctionCallChunk{Name: ev.Item.Name},
				},
			},
		}), false

	case responsesapi.EventFunctionArgumentsDelta:
		index, ok := t.toolIndex[ev.ItemID]
		if !ok {
			// Argument delta for a block that was never opened: dropping one
			// malformed fragment beats aborting an otherwise-good stream.
			return nil, false
		}
		return t.chunks.Delta(openai.ChunkDelta{
			ToolCalls: []openai.ToolCallChunk{
				{
					Index:    index,
					Function: &openai.FunctionCallChunk{Arguments: ev.Delta},
				},
			},
		}), false

	case responsesapi.EventCompleted:
		reason := "stop"
		if t.nextTool > 0 {
			reason = "tool_calls"
		}
		return t.chunks.Finish(reason), true

	case responsesapi.EventIncomplete:
		return t.chunks.Finish("length"), true

	case responsesapi.EventFailed:
		// The upstream reported a terminal failure after streaming began;
		// nothing recoverable remains, end the stream.
		return nil, true
	}

	return nil, false
}

// AdaptStream consumes the Responses event stream and writes client chunks.
func (a *Adapter) AdaptStream(ctx context.Context, upstream io.Reader, out domain.StreamWriter) error {
	t := newTranslator(a.model.Name)
	sc := sse.NewScanner(upstream)

	for sc.Next() {
		data := sc.Event().Data
		if sse.IsDone(data) {
			break
		}

		ev, err := responsesapi.ParseEvent(data)
		if err != nil {
			continue
		}

		chunk, done := t.translate(ev)
		if chunk != nil {
			payload, err := json.Marshal(chunk)
			if err != nil {
				return err
			}
			if err := out.WriteEvent(payload); err != nil {
				return domain.ErrClientClosed
			}
		}
		if done {
			break
		}
	}

	if err := sc.Err(); err != nil {
		return domain.StreamFailure(ctx, err)
	}
	if err := ctx.Err(); err != nil {
		return domain.ErrClientClosed
	}

	if err := out.WriteDone(); err != nil {
		return domain.ErrClientClosed
	}
	return nil
}
