package responses

import (
	"encoding/json"
	"fmt"
)

// EventKind enumerates the streaming event kinds the translator acts on.
// Everything else decodes to EventIgnored so unrecognized upstream events
// stay non-fatal.
type EventKind int

const (
	EventIgnored EventKind = iota
	EventCreated
	EventOutputTextDelta
	EventReasoningSummaryDelta
	EventOutputItemAdded
	EventFunctionArgumentsDelta
	EventCompleted
	EventIncomplete
	EventFailed
)

// StreamEvent is the decoded form of one Responses API streaming event.
// It is a tagged union: which fields are meaningful depends on Kind.
type StreamEvent struct {
	Kind   EventKind
	ItemID string
	Delta  string
	Item   *OutputItem
}

// OutputItem describes an output item announced by an output_item.added
// event. Function calls carry CallID and Name.
type OutputItem struct {
	ID     string `json:"id"`
	Type   string `json:"type"` // "message", "reasoning", "function_call"
	CallID string `json:"call_id,omitempty"`
	Name   string `json:"name,omitempty"`
}

// rawEvent is the superset wire shape used for decoding.
type rawEvent struct {
	Type   string      `json:"type"`
	ItemID string      `json:"item_id,omitempty"`
	Delta  string      `json:"delta,omitempty"`
	Item   *OutputItem `json:"item,omitempty"`
}

// ParseEvent decodes one SSE data payload into the tagged union. Unknown
// event types yield EventIgnored, never an error: the upstream adds event
// kinds over time and the translator must not break when it does.
func ParseEvent(data []byte) (StreamEvent, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return StreamEvent{}, fmt.Errorf("decode responses event: %w", err)
	}

	ev := StreamEvent{ItemID: raw.ItemID, Delta: raw.Delta, Item: raw.Item}

	switch raw.Type {
	case "response.created":
		ev.Kind = EventCreated
	case "response.output_text.delta":
		ev.Kind = EventOutputTextDelta
	case "response.reasoning_summary_text.delta":
		ev.Kind = EventReasoningSummaryDelta
	case "response.output_item.added":
		ev.Kind = EventOutputItemAdded
	case "response.function_call_arguments.delta":
		ev.Kind = EventFunctionArgumentsDelta
	case "response.completed":
		ev.Kind = EventCompleted
	case "response.incomplete":
		ev.Kind = EventIncomplete
	case "response.failed":
		ev.Kind = EventFailed
	default:
		ev.Kind = EventIgnored
	}

	return ev, nil
}
