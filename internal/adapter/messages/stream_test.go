package messages

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/modelgate/modelgate/internal/api/openai"
	"github.com/modelgate/modelgate/internal/domain"
)

type captureWriter struct {
	frames []string
	done   bool
}

func (w *captureWriter) WriteEvent(data []byte) error {
	w.frames = append(w.frames, string(data))
	return nil
}

func (w *captureWriter) WriteDone() error {
	w.done = true
	return nil
}

func (w *captureWriter) chunks(t *testing.T) []openai.ChatCompletionChunk {
	t.Helper()
	out := make([]openai.ChatCompletionChunk, 0, len(w.frames))
	for _, frame := range w.frames {
		var chunk openai.ChatCompletionChunk
		if err := json.Unmarshal([]byte(frame), &chunk); err != nil {
			t.Fatalf("frame %q is not a chunk: %v", frame, err)
		}
		out = append(out, chunk)
	}
	return out
}

func sseStream(events ...string) string {
	var b strings.Builder
	for _, ev := range events {
		b.WriteString("data: ")
		b.WriteString(ev)
		b.WriteString("\n\n")
	}
	return b.String()
}

func runStream(t *testing.T, input string) *captureWriter {
	t.Helper()
	a := New(testModel(), testConfig())
	w := &captureWriter{}
	if err := a.AdaptStream(context.Background(), strings.NewReader(input), w); err != nil {
		t.Fatalf("AdaptStream: %v", err)
	}
	return w
}

func TestStreamThinkingThenText(t *testing.T) {
	w := runStream(t, sseStream(
		`{"type":"message_start","message":{"id":"msg_1"}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"thinking"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"hmm"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"text"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"Hello"}}`,
		`{"type":"content_block_stop","index":1}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`,
		`{"type":"message_stop"}`,
	))

	chunks := w.chunks(t)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}

	if chunks[0].Choices[0].Delta.Role != "assistant" {
		t.Error("first chunk must carry the assistant role")
	}
	if chunks[1].Choices[0].Delta.Thinking != "hmm" || chunks[1].Choices[0].Delta.Content != "" {
		t.Error("thinking deltas must land on the thinking channel only")
	}
	if chunks[2].Choices[0].Delta.Content != "Hello" || chunks[2].Choices[0].Delta.Thinking != "" {
		t.Error("text deltas must land on the content channel only")
	}

	last := chunks[3].Choices[0]
	if last.FinishReason == nil || *last.FinishReason != "stop" {
		t.Errorf("expected finish reason stop, got %v", last.FinishReason)
	}
	if !w.done {
		t.Error("sentinel must follow the final chunk")
	}
}

func TestStreamToolUseBlocks(t *testing.T) {
	w := runStream(t, sseStream(
		`{"type":"message_start","message":{"id":"msg_1"}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_a","name":"lookup"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"q\":"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"1}"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_b","name":"fetch"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{}"}}`,
		`{"type":"content_block_stop","index":1}`,
		`{"type":"message_delta","delta":{"stop_reason":"tool_use"}}`,
		`{"type":"message_stop"}`,
	))

	chunks := w.chunks(t)

	open := chunks[1].Choices[0].Delta.ToolCalls[0]
	if open.Index != 0 || open.ID != "toolu_a" || open.Function.Name != "lookup" {
		t.Errorf("unexpected first slot %+v", open)
	}

	if got := chunks[2].Choices[0].Delta.ToolCalls[0]; got.Index != 0 || got.Function.Arguments != `{"q":` {
		t.Errorf("unexpected args delta %+v", got)
	}

	second := chunks[4].Choices[0].Delta.ToolCalls[0]
	if second.Index != 1 || second.ID != "toolu_b" {
		t.Errorf("second tool must get index 1, got %+v", second)
	}

	last := chunks[len(chunks)-1].Choices[0]
	if last.FinishReason == nil || *last.FinishReason != "tool_calls" {
		t.Errorf("expected finish reason tool_calls, got %v", last.FinishReason)
	}
}

func TestStreamMaxTokensMapsToLength(t *testing.T) {
	w := runStream(t, sseStream(
		`{"type":"message_start","message":{"id":"msg_1"}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"partial"}}`,
		`{"type":"message_delta","delta":{"stop_reason":"max_tokens"}}`,
		`{"type":"message_stop"}`,
	))

	chunks := w.chunks(t)
	last := chunks[len(chunks)-1].Choices[0]
	if last.FinishReason == nil || *last.FinishReason != "length" {
		t.Errorf("expected finish reason length, got %v", last.FinishReason)
	}
}

func TestStreamIgnoresUnopenedBlockDelta(t *testing.T) {
	w := runStream(t, sseStream(
		`{"type":"message_start","message":{"id":"msg_1"}}`,
		`{"type":"content_block_delta","index":7,"delta":{"type":"text_delta","text":"ghost"}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"ok"}}`,
		`{"type":"message_stop"}`,
	))

	chunks := w.chunks(t)
	// Role, text, finish. The orphan delta produces nothing.
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[1].Choices[0].Delta.Content != "ok" {
		t.Errorf("unexpected content %q", chunks[1].Choices[0].Delta.Content)
	}
}

func TestStreamIgnoresUnknownEvents(t *testing.T) {
	w := runStream(t, sseStream(
		`{"type":"message_start","message":{"id":"msg_1"}}`,
		`{"type":"ping"}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"ok"}}`,
		`{"type":"message_stop"}`,
	))

	if len(w.chunks(t)) != 3 {
		t.Fatal("unknown events must not emit chunks")
	}
}

func TestStreamMissingStopReasonDefaultsToStop(t *testing.T) {
	w := runStream(t, sseStream(
		`{"type":"message_start","message":{"id":"msg_1"}}`,
		`{"type":"message_stop"}`,
	))

	chunks := w.chunks(t)
	last := chunks[len(chunks)-1].Choices[0]
	if last.FinishReason == nil || *last.FinishReason != "stop" {
		t.Errorf("expected default finish reason stop, got %v", last.FinishReason)
	}
}

func TestStreamCancelledContextIsClientClosed(t *testing.T) {
	a := New(testModel(), testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &captureWriter{}
	err := a.AdaptStream(ctx, strings.NewReader(sseStream(`{"type":"message_start"}`)), w)
	if !errors.Is(err, domain.ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
}
