package stream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventKind identifies one decoded unit of an upstream completion stream.
type EventKind string

const (
	EventDeltaContent  EventKind = "delta_content"
	EventDeltaToolCall EventKind = "delta_tool_call"
	EventFinish        EventKind = "finish"
	EventDone          EventKind = "done"
)

// ToolCallDelta is a partial tool call as it arrives in choices[0].delta.tool_calls.
// Empty fields mean "not present in this fragment".
type ToolCallDelta struct {
	Index             int
	ID                string
	Name              string
	ArgumentsFragment string
}

// Event is a single decoded stream event. Only the fields matching Kind are set.
type Event struct {
	Kind         EventKind
	Text         string
	ToolCall     ToolCallDelta
	FinishReason string
}

// ContentEvent builds a delta_content event.
func ContentEvent(text string) Event {
	return Event{Kind: EventDeltaContent, Text: text}
}

// ToolCallEvent builds a delta_tool_call event.
func ToolCallEvent(delta ToolCallDelta) Event {
	return Event{Kind: EventDeltaToolCall, ToolCall: delta}
}

// FinishEvent builds a finish event.
func FinishEvent(reason string) Event {
	return Event{Kind: EventFinish, FinishReason: reason}
}

// DoneEvent builds the terminal done event.
func DoneEvent() Event {
	return Event{Kind: EventDone}
}

// PendingToolCall is a tool call still being assembled from fragments.
type PendingToolCall struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// complete reports whether the call carries enough data to be dispatched.
func (p PendingToolCall) complete() bool {
	return p.ID != "" && p.Name != ""
}

// ToolCallRequest is a finalized tool call handed to the dispatcher.
// Arguments is the raw JSON text exactly as streamed.
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments string
}

// ParseArguments decodes the raw argument text. An empty buffer is an empty object.
func (r ToolCallRequest) ParseArguments() (map[string]any, error) {
	raw := strings.TrimSpace(r.Arguments)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", r.Name, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
