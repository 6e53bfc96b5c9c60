package llmclient

import (
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
)

// AssistantToolCallMessage is the assistant turn that requested one tool call.
// arguments is forwarded verbatim as the raw JSON text the model produced.
func AssistantToolCallMessage(id, name, arguments string) (openai.ChatCompletionMessageParamUnion, error) {
	// Use JSON marshaling to create a message with tool_calls
	msgMap := map[string]interface{}{
		"role":    "assistant",
		"content": nil,
		"tool_calls": []map[string]interface{}{
			{
				"id":   id,
				"type": "function",
				"function": map[string]interface{}{
					"name":      name,
					"arguments": arguments,
				},
			},
		},
	}

	var result openai.ChatCompletionMessageParamUnion
	msgBytes, err := json.Marshal(msgMap)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(msgBytes, &result); err != nil {
		return result, fmt.Errorf("build assistant tool call message: %w", err)
	}
	return result, nil
}

// ToolResultMessage carries the JSON-encoded result of a tool call.
func ToolResultMessage(toolCallID string, result any) (openai.ChatCompletionMessageParamUnion, error) {
	content, err := json.Marshal(result)
	if err != nil {
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("encode tool result: %w", err)
	}
	return openai.ToolMessage(string(content), toolCallID), nil
}
