package token

import (
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/tiktoken-go/tokenizer"

	"github.com/tingly-dev/tea-assistant/internal/protocol/stream"
)

// StreamTokenCounter tallies tokens across every upstream pass of one chat turn.
// Each delta is tokenized as it arrives.
//
//	counter := NewStreamTokenCounter()
//	counter.AddInput(messages)
//	for ev := range events {
//	    counter.Consume(ev)
//	}
//	in, out := counter.Counts()
type StreamTokenCounter struct {
	mu      sync.Mutex
	encoder tokenizer.Codec
	input   int
	output  int
}

// NewStreamTokenCounter uses O200kBase, falling back to a length estimate
// when the tables cannot be loaded.
func NewStreamTokenCounter() *StreamTokenCounter {
	enc, _ := defaultCodec()
	return &StreamTokenCounter{encoder: enc}
}

// Consume counts the generated text carried by one event.
func (c *StreamTokenCounter) Consume(ev stream.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case stream.EventDeltaContent:
		c.output += countOrEstimate(c.encoder, ev.Text)
	case stream.EventDeltaToolCall:
		c.output += countOrEstimate(c.encoder, ev.ToolCall.ID)
		c.output += countOrEstimate(c.encoder, ev.ToolCall.Name)
		c.output += countOrEstimate(c.encoder, ev.ToolCall.ArgumentsFragment)
	}
}

// AddInput adds the estimated prompt size of one upstream pass.
func (c *StreamTokenCounter) AddInput(messages []openai.ChatCompletionMessageParamUnion) {
	n, err := EstimateInputTokens(messages)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.input += n
	c.mu.Unlock()
}

// Counts returns (input, output).
func (c *StreamTokenCounter) Counts() (input, output int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input, c.output
}

// OutputTokens returns the output count.
func (c *StreamTokenCounter) OutputTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output
}
