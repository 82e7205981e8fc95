package messages

import (
	"context"
	"encoding/json"
	"io"

	messagesapi "github.com/modelgate/modelgate/internal/api/messages"

	"github.com/modelgate/modelgate/internal/api/openai"
	"github.com/modelgate/modelgate/internal/domain"
	"github.com/modelgate/modelgate/internal/sse"
)

// translator is the per-request state machine turning Messages events into
// client chunks. It is owned exclusively by the request that created it.
type translator struct {
	chunks *openai.ChunkFactory

	// blocks maps the backend's content block position to its declared type
	// and, for tool_use blocks, the client tool-call index assigned when the
	// block opened. Indices are assigned in open order and never renumbered.
	blocks   map[int]blockState
	nextTool int

	roleSent bool
	finish   string
}

type blockState struct {
	kind      messagesapi.BlockType
	toolIndex int
}

func newTranslator(model string) *translator {
	return &translator{
		chunks: openai.NewChunkFactory(model),
		blocks: make(map[int]blockState),
	}
}

// translate emits at most one client chunk per event. done reports that the
// terminal event was seen and no further events should be consumed.
func (t *translator) translate(ev messagesapi.StreamEvent) (chunk *openai.ChatCompletionChunk, done bool) {
	switch ev.Kind {
	case messagesapi.EventMessageStart:
		if t.roleSent {
			return nil, false
		}
		t.roleSent = true
		return t.chunks.Delta(openai.ChunkDelta{Role: "assistant"}), false

	case messagesapi.EventContentBlockStart:
		state := blockState{kind: ev.BlockType}
		if ev.BlockType == messagesapi.BlockToolUse {
			state.toolIndex = t.nextTool
			t.nextTool++
			t.blocks[ev.Index] = state
			return t.chunks.Delta(openai.ChunkDelta{
				ToolCalls: []openai.ToolCallChunk{
					{
						Index:    state.toolIndex,
						ID:       ev.BlockID,
						Type:     "function",
						Function: &openai.FunctionCallChunk{Name: ev.BlockName},
					},
				},
			}), false
		}
		t.blocks[ev.Index] = state
		return nil, false

	case messagesapi.EventContentBlockDelta:
		state, ok := t.blocks[ev.Index]
		if !ok {
			// Delta for a block that was never opened: dropping one malformed
			// fragment beats aborting an otherwise-good stream.
			return nil, false
		}
		switch state.kind {
		case messagesapi.BlockText:
			if ev.Text == "" {
				return nil, false
			}
			return t.chunks.Delta(openai.ChunkDelta{Content: ev.Text}), false
		case messagesapi.BlockThinking:
			if ev.Thinking == "" {
				return nil, false
			}
			return t.chunks.Delta(openai.ChunkDelta{Thinking: ev.Thinking}), false
		case messagesapi.BlockToolUse:
			if ev.DeltaType != "input_json_delta" {
				return nil, false
			}
			return t.chunks.Delta(openai.ChunkDelta{
				ToolCalls: []openai.ToolCallChunk{
					{
						Index:    state.toolIndex,
						Function: &openai.FunctionCallChunk{Arguments: ev.PartialJSON},
					},
				},
			}), false
		}
		return nil, false

	case messagesapi.EventContentBlockStop:
		delete(t.blocks, ev.Index)
		return nil, false

	case messagesapi.EventMessageDelta:
		t.finish = translateStopReason(ev.StopReason)
		return nil, false

	case messagesapi.EventMessageStop:
		reason := t.finish
		if reason == "" {
			reason = "stop"
		}
		return t.chunks.Finish(reason), true
	}

	return nil, false
}

func translateStopReason(reason string) string {
	switch reason {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	case "end_turn", "stop_sequence":
		return "stop"
	}
	return ""
}

// AdaptStream consumes the Messages event stream and writes client chunks.
func (a *Adapter) AdaptStream(ctx context.Context, upstream io.Reader, out domain.StreamWriter) error {
	t := newTranslator(a.model.Name)
	sc := sse.NewScanner(upstream)

	for sc.Next() {
		data := sc.Event().Data
		if sse.IsDone(data) {
			break
		}

		ev, err := messagesapi.ParseEvent(data)
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
