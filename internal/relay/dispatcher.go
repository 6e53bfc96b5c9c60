package relay

import (
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"

	"github.com/tingly-dev/tea-assistant/internal/llmclient"
	"github.com/tingly-dev/tea-assistant/internal/protocol/stream"
	"github.com/tingly-dev/tea-assistant/internal/tools"
)

// Reasons shown to the shopper inside a tool error note.
const (
	reasonUnknownTool     = "công cụ không được hỗ trợ"
	reasonInvalidArgs     = "tham số không hợp lệ"
	reasonToolFailed      = "thực thi thất bại"
	reasonFollowUpFailed  = "không nhận được câu trả lời"
	reasonFollowUpAborted = "câu trả lời bị gián đoạn"
)

// toolFailure is a per call error. It is reported inline and never ends the run.
type toolFailure struct {
	reason string
	err    error
}

func (f *toolFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.reason, f.err)
}

// dispatch executes one call and relays its follow-up answer.
// Only outward write failures and cancellation are returned.
func (x *run) dispatch(conv []openai.ChatCompletionMessageParamUnion, call stream.ToolCallRequest) error {
	log := x.log.WithField("tool", call.Name).WithField("tool_call_id", call.ID)
	outcome := ToolCallOutcome{ID: call.ID, Name: call.Name}

	failure := x.followUp(conv, call)
	if failure != nil {
		if errors.Is(failure.err, errOutward) {
			return failure.err
		}
		if cerr := x.ctx.Err(); cerr != nil {
			return cerr
		}
		log.Warnf("Tool call failed: %v", failure)
		outcome.Error = failure.Error()
		x.summary.ToolCalls = append(x.summary.ToolCalls, outcome)
		x.track(call.Name, false)
		return x.write(fmt.Sprintf(x.toolErrorFormat, displayName(call.Name), failure.reason))
	}

	log.Debugf("Tool call relayed")
	x.summary.ToolCalls = append(x.summary.ToolCalls, outcome)
	x.track(call.Name, true)
	return nil
}

func (x *run) followUp(conv []openai.ChatCompletionMessageParamUnion, call stream.ToolCallRequest) *toolFailure {
	result, failure := x.invoke(call)
	if failure != nil {
		return failure
	}

	continuation, err := continuationFor(conv, call, result)
	if err != nil {
		return &toolFailure{reason: reasonToolFailed, err: err}
	}

	x.enter(StateReceivingFollowUp)
	req := llmclient.Request{Messages: continuation}
	x.counter.AddInput(req.Messages)

	body, err := x.upstream.Stream(x.ctx, req)
	if err != nil {
		return &toolFailure{reason: reasonFollowUpFailed, err: err}
	}

	acc := stream.NewAccumulator(x.write)
	if err := x.consume(body, acc); err != nil {
		return &toolFailure{reason: reasonFollowUpAborted, err: err}
	}
	if pending := acc.Finalized(); len(pending) > 0 {
		x.log.Debugf("Ignoring %d tool call(s) requested in follow-up", len(pending))
	}
	return nil
}

// invoke parses arguments lazily and runs the tool.
func (x *run) invoke(call stream.ToolCallRequest) (tools.Result, *toolFailure) {
	args, err := call.ParseArguments()
	if err != nil {
		return nil, &toolFailure{reason: reasonInvalidArgs, err: err}
	}
	if x.registry == nil {
		return nil, &toolFailure{reason: reasonUnknownTool, err: fmt.Errorf("%w: %q", tools.ErrUnknownTool, call.Name)}
	}

	result, err := x.registry.Execute(x.ctx, call.Name, args)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, tools.ErrUnknownTool):
		return nil, &toolFailure{reason: reasonUnknownTool, err: err}
	case errors.Is(err, tools.ErrInvalidArguments):
		return nil, &toolFailure{reason: reasonInvalidArgs, err: err}
	default:
		return nil, &toolFailure{reason: reasonToolFailed, err: err}
	}
}

// continuationFor appends the assistant tool call turn and its tool result.
func continuationFor(conv []openai.ChatCompletionMessageParamUnion, call stream.ToolCallRequest, result tools.Result) ([]openai.ChatCompletionMessageParamUnion, error) {
	assistant, err := llmclient.AssistantToolCallMessage(call.ID, call.Name, call.Arguments)
	if err != nil {
		return nil, err
	}
	toolMsg, err := llmclient.ToolResultMessage(call.ID, result)
	if err != nil {
		return nil, err
	}

	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(conv)+2)
	out = append(out, conv...)
	return append(out, assistant, toolMsg), nil
}

func (x *run) track(name string, ok bool) {
	if x.tracker != nil {
		x.tracker.RecordToolCall(x.ctx, name, ok)
	}
}

func displayName(name string) string {
	if name == "" {
		return "?"
	}
	return name
}
