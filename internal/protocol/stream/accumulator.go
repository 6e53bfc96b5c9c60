package stream

import (
	"sort"
	"strings"
)

// MergeToolCallDelta folds one fragment into the pending call for its index.
// Non-empty id and name overwrite, argument fragments are appended in order.
func MergeToolCallDelta(existing PendingToolCall, delta ToolCallDelta) PendingToolCall {
	existing.Index = delta.Index
	if delta.ID != "" {
		existing.ID = delta.ID
	}
	if delta.Name != "" {
		existing.Name = delta.Name
	}
	existing.Arguments += delta.ArgumentsFragment
	return existing
}

// Accumulator turns an event sequence into forwarded text and finalized tool calls.
// It serves one upstream pass and is not safe for concurrent use.
type Accumulator struct {
	onText func(string) error

	text         strings.Builder
	pending      map[int]PendingToolCall
	finalized    []ToolCallRequest
	didFinalize  bool
	finishReason string
	sawDone      bool
}

// NewAccumulator creates an accumulator forwarding content chunks to onText.
func NewAccumulator(onText func(string) error) *Accumulator {
	return &Accumulator{
		onText:  onText,
		pending: make(map[int]PendingToolCall),
	}
}

// Apply consumes one event. Only a failing text sink produces an error.
func (a *Accumulator) Apply(ev Event) error {
	switch ev.Kind {
	case EventDeltaContent:
		a.text.WriteString(ev.Text)
		if a.onText != nil {
			return a.onText(ev.Text)
		}
	case EventDeltaToolCall:
		idx := ev.ToolCall.Index
		a.pending[idx] = MergeToolCallDelta(a.pending[idx], ev.ToolCall)
	case EventFinish:
		a.finishReason = ev.FinishReason
		if ev.FinishReason == FinishReasonToolCalls {
			a.finalize(false)
		}
	case EventDone:
		a.sawDone = true
		if !a.didFinalize {
			a.finalize(true)
		}
	}
	return nil
}

// finalize snapshots pending calls. The fallback path keeps only calls
// carrying both id and name.
func (a *Accumulator) finalize(fallback bool) {
	calls := a.sortedPending()
	a.finalized = a.finalized[:0]
	for _, call := range calls {
		if fallback && !call.complete() {
			continue
		}
		a.finalized = append(a.finalized, ToolCallRequest{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: call.Arguments,
		})
	}
	a.didFinalize = !fallback || len(a.finalized) > 0
}

func (a *Accumulator) sortedPending() []PendingToolCall {
	indices := make([]int, 0, len(a.pending))
	for idx := range a.pending {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	calls := make([]PendingToolCall, 0, len(indices))
	for _, idx := range indices {
		calls = append(calls, a.pending[idx])
	}
	return calls
}

// Finalized returns the tool calls to dispatch, in index order.
func (a *Accumulator) Finalized() []ToolCallRequest {
	out := make([]ToolCallRequest, len(a.finalized))
	copy(out, a.finalized)
	return out
}

// Pending returns a snapshot of the calls still being assembled.
func (a *Accumulator) Pending() []PendingToolCall {
	return a.sortedPending()
}

// Text returns all content forwarded so far.
func (a *Accumulator) Text() string {
	return a.text.String()
}

// FinishReason is the last finish reason seen, if any.
func (a *Accumulator) FinishReason() string {
	return a.finishReason
}

// Done reports whether the terminal done event was applied.
func (a *Accumulator) Done() bool {
	return a.sawDone
}
