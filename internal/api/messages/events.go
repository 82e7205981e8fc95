package messages

import (
	"encoding/json"
	"fmt"
)

// EventKind enumerates the streaming event kinds the translator acts on.
type EventKind int

const (
	EventIgnored EventKind = iota
	EventMessageStart
	EventContentBlockStart
	EventContentBlockDelta
	EventContentBlockStop
	EventMessageDelta
	EventMessageStop
)

// BlockType is the declared type of a content block.
type BlockType string

const (
	BlockText     BlockType = "text"
	BlockThinking BlockType = "thinking"
	BlockToolUse  BlockType = "tool_use"
)

// StreamEvent is the decoded form of one Messages API streaming event. It
// is a tagged union: which fields are meaningful depends on Kind.
type StreamEvent struct {
	Kind  EventKind
	Index int

	// For content_block_start.
	BlockType BlockType
	BlockID   string
	BlockName string

	// For content_block_delta.
	DeltaType   string
	Text        string
	Thinking    string
	PartialJSON string

	// For message_delta.
	StopReason string
}

type rawContentBlock struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type rawDelta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type rawEvent struct {
	Type         string           `json:"type"`
	Index        int              `json:"index,omitempty"`
	ContentBlock *rawContentBlock `json:"content_block,omitempty"`
	Delta        *rawDelta        `json:"delta,omitempty"`
}

// ParseEvent decodes one SSE data payload into the tagged union. Unknown
// event types (ping, fine-grained signatures, future additions) decode to
// EventIgnored rather than failing the stream.
func ParseEvent(data []byte) (StreamEvent, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return StreamEvent{}, fmt.Errorf("decode messages event: %w", err)
	}

	ev := StreamEvent{Index: raw.Index}

	switch raw.Type {
	case "message_start":
		ev.Kind = EventMessageStart
	case "content_block_start":
		ev.Kind = EventContentBlockStart
		if raw.ContentBlock != nil {
			ev.BlockType = BlockType(raw.ContentBlock.Type)
			ev.BlockID = raw.ContentBlock.ID
			ev.BlockName = raw.ContentBlock.Name
		}
	case "content_block_delta":
		ev.Kind = EventContentBlockDelta
		if raw.Delta != nil {
			ev.DeltaType = raw.Delta.Type
			ev.Text = raw.Delta.Text
			ev.Thinking = raw.Delta.Thinking
			ev.PartialJSON = raw.Delta.PartialJSON
		}
	case "content_block_stop":
		ev.Kind = EventContentBlockStop
	case "message_delta":
		ev.Kind = EventMessageDelta
		if raw.Delta != nil {
			ev.StopReason = raw.Delta.StopReason
		}
	case "message_stop":
		ev.Kind = EventMessageStop
	default:
		ev.Kind = EventIgnored
	}

	return ev, nil
}
