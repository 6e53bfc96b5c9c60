// Package relay turns the upstream completion stream into the plain text
// stream the storefront chat widget reads, running tool calls in between.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/openai/openai-go/v3"
	"github.com/sirupsen/logrus"

	"github.com/tingly-dev/tea-assistant/internal/llmclient"
	"github.com/tingly-dev/tea-assistant/internal/protocol/stream"
	"github.com/tingly-dev/tea-assistant/internal/protocol/token"
	"github.com/tingly-dev/tea-assistant/internal/tools"
)

// DefaultToolErrorFormat renders the inline note for a failed tool call.
// The verbs receive the tool name and a short reason.
const DefaultToolErrorFormat = "\n[Lỗi công cụ %s: %s]\n"

// DefaultSystemPrompt is used when none is configured.
const DefaultSystemPrompt = "Bạn là trợ lý mua sắm của cửa hàng trà. Trả lời ngắn gọn, thân thiện bằng tiếng Việt. " +
	"Dùng get_time khi khách hỏi giờ và search_docs khi cần tra cứu hướng dẫn về trà."

// Upstream opens a streaming chat completion.
type Upstream interface {
	Stream(ctx context.Context, req llmclient.Request) (io.ReadCloser, error)
}

// Sink is the outward text stream. Write after Close fails with ErrSinkClosed.
type Sink interface {
	Write(text string) error
	Close() error
}

// ErrSinkClosed is returned by sinks written after Close.
var ErrSinkClosed = errors.New("outward stream is closed")

// errOutward marks failures writing to the sink, which end the run.
var errOutward = errors.New("outward write failed")

// Tracker receives per tool call outcomes. The otel tracker implements it.
type Tracker interface {
	RecordToolCall(ctx context.Context, tool string, ok bool)
}

// State is a phase of a single relay run.
type State string

const (
	StateReceivingFirstPass State = "RECEIVING_FIRST_PASS"
	StateDispatchingTools   State = "DISPATCHING_TOOLS"
	StateReceivingFollowUp  State = "RECEIVING_FOLLOWUP"
	StateClosed             State = "CLOSED"
)

// ToolCallOutcome describes one dispatched call.
type ToolCallOutcome struct {
	ID    string
	Name  string
	Error string
}

// Summary reports what a run did.
type Summary struct {
	States       []State
	ToolCalls    []ToolCallOutcome
	FinishReason string
	OutputBytes  int
	InputTokens  int
	OutputTokens int
	// DroppedLines counts upstream data lines that were not valid JSON.
	DroppedLines int
}

// ToolErrors counts failed tool calls.
func (s Summary) ToolErrors() int {
	n := 0
	for _, c := range s.ToolCalls {
		if c.Error != "" {
			n++
		}
	}
	return n
}

// ToolNames lists dispatched tool names in order.
func (s Summary) ToolNames() []string {
	names := make([]string, 0, len(s.ToolCalls))
	for _, c := range s.ToolCalls {
		names = append(names, c.Name)
	}
	return names
}

// Final returns the last state reached.
func (s Summary) Final() State {
	if len(s.States) == 0 {
		return ""
	}
	return s.States[len(s.States)-1]
}

// Option configures a Relay.
type Option func(*Relay)

// WithSystemPrompt sets the prompt prepended to every conversation.
func WithSystemPrompt(prompt string) Option {
	return func(r *Relay) {
		if prompt != "" {
			r.systemPrompt = prompt
		}
	}
}

// WithToolErrorFormat overrides DefaultToolErrorFormat.
func WithToolErrorFormat(format string) Option {
	return func(r *Relay) {
		if format != "" {
			r.toolErrorFormat = format
		}
	}
}

// WithTracker reports tool call outcomes to t.
func WithTracker(t Tracker) Option {
	return func(r *Relay) {
		r.tracker = t
	}
}

// Relay runs one chat turn against the upstream provider.
// It is safe for concurrent use; each Run owns its own state.
type Relay struct {
	upstream        Upstream
	registry        *tools.Registry
	systemPrompt    string
	toolErrorFormat string
	tracker         Tracker
}

// New creates a relay that offers every tool in registry on the first pass.
func New(upstream Upstream, registry *tools.Registry, opts ...Option) *Relay {
	r := &Relay{
		upstream:        upstream,
		registry:        registry,
		systemPrompt:    DefaultSystemPrompt,
		toolErrorFormat: DefaultToolErrorFormat,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SystemPrompt returns the configured prompt.
func (r *Relay) SystemPrompt() string {
	return r.systemPrompt
}

// run is the per request state.
type run struct {
	*Relay
	ctx     context.Context
	log     *logrus.Entry
	sink    Sink
	counter *token.StreamTokenCounter
	summary Summary
	visited map[State]bool
}

func (x *run) enter(s State) {
	if x.visited[s] {
		return
	}
	x.visited[s] = true
	x.summary.States = append(x.summary.States, s)
	x.log.Tracef("Relay state %s", s)
}

func (x *run) write(text string) error {
	if err := x.sink.Write(text); err != nil {
		return fmt.Errorf("%w: %w", errOutward, err)
	}
	x.summary.OutputBytes += len(text)
	return nil
}

// Run relays one turn into sink and closes it exactly once before returning.
// First pass failures are returned; the caller reports them on the stream.
// A canceled ctx stops the run with ctx.Err().
func (r *Relay) Run(ctx context.Context, msgs []Message, sink Sink) (Summary, error) {
	x := &run{
		Relay:   r,
		ctx:     ctx,
		log:     logrus.WithField("request_id", llmclient.RequestIDFromContext(ctx)),
		sink:    sink,
		counter: token.NewStreamTokenCounter(),
		visited: make(map[State]bool),
	}
	err := x.execute(BuildConversation(r.systemPrompt, msgs))

	if cerr := sink.Close(); cerr != nil && !errors.Is(cerr, ErrSinkClosed) {
		x.log.Debugf("Closing outward stream: %v", cerr)
	}
	x.enter(StateClosed)
	x.summary.InputTokens, x.summary.OutputTokens = x.counter.Counts()
	return x.summary, err
}

func (x *run) execute(conv []openai.ChatCompletionMessageParamUnion) error {
	x.enter(StateReceivingFirstPass)

	first := llmclient.Request{Messages: conv}
	if x.registry != nil {
		first.Tools = x.registry.Definitions()
	}
	x.counter.AddInput(first.Messages)

	body, err := x.upstream.Stream(x.ctx, first)
	if err != nil {
		if cerr := x.ctx.Err(); cerr != nil {
			return cerr
		}
		return fmt.Errorf("first pass: %w", err)
	}

	acc := stream.NewAccumulator(x.write)
	if err := x.consume(body, acc); err != nil {
		if cerr := x.ctx.Err(); cerr != nil {
			return cerr
		}
		return fmt.Errorf("first pass: %w", err)
	}
	x.summary.FinishReason = acc.FinishReason()

	calls := acc.Finalized()
	if len(calls) == 0 {
		return nil
	}

	x.enter(StateDispatchingTools)
	x.log.Debugf("Dispatching %d tool call(s)", len(calls))
	for _, call := range calls {
		if err := x.ctx.Err(); err != nil {
			return err
		}
		if err := x.dispatch(conv, call); err != nil {
			return err
		}
	}
	return nil
}

// consume drives one upstream stream through acc and closes body.
// A stream that ends without [DONE] is treated as done.
func (x *run) consume(body io.ReadCloser, acc *stream.Accumulator) error {
	defer body.Close()

	reader := stream.NewReader(body)
	defer func() {
		x.summary.DroppedLines += reader.Dropped()
	}()

	for {
		if err := x.ctx.Err(); err != nil {
			return err
		}
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		x.counter.Consume(ev)
		if err := acc.Apply(ev); err != nil {
			return err
		}
	}

	if !acc.Done() {
		return acc.Apply(stream.DoneEvent())
	}
	return nil
}
