package stream

const (
	// sseDataPrefix prefixes every payload line of the upstream event stream.
	// MENTION: the trailing space is part of the prefix
	sseDataPrefix = "data: "

	// sseDoneLine terminates an OpenAI-compatible chat completion stream.
	sseDoneLine = "data: [DONE]"

	// FinishReasonToolCalls is the finish reason announcing complete tool calls.
	FinishReasonToolCalls = "tool_calls"

	// FinishReasonStop is the finish reason of a natural end of message.
	FinishReasonStop = "stop"
)
