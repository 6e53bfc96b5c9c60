package relay

import (
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/sirupsen/logrus"

	"github.com/tingly-dev/tea-assistant/internal/guardrails"
)

// Role is the author of an inbound chat turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn as sent by the storefront widget.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ValidationError rejects a conversation before any upstream call.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidateConversation checks the shape of an inbound conversation and runs
// the content rules on the last turn. A nil validator skips content rules.
func ValidateConversation(msgs []Message, v *guardrails.Validator) error {
	if len(msgs) == 0 {
		return &ValidationError{Reason: "messages must be a non-empty array"}
	}
	for i, m := range msgs {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		default:
			return &ValidationError{Reason: fmt.Sprintf("messages[%d] has invalid role %q", i, m.Role)}
		}
	}
	last := msgs[len(msgs)-1]
	if last.Role != RoleUser {
		return &ValidationError{Reason: "last message must have role user"}
	}
	if v == nil {
		if strings.TrimSpace(last.Content) == "" {
			return &ValidationError{Reason: "last message content is empty"}
		}
		return nil
	}
	if err := v.Validate(last.Content); err != nil {
		return &ValidationError{Reason: "message rejected", Err: err}
	}
	return nil
}

// BuildConversation prepends the system prompt to the client turns.
// Client system and tool turns are dropped so the result always starts with
// exactly one system message and never holds an unmatched tool message.
func BuildConversation(systemPrompt string, msgs []Message) []openai.ChatCompletionMessageParamUnion {
	conv := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	conv = append(conv, openai.SystemMessage(systemPrompt))

	for i, m := range msgs {
		switch m.Role {
		case RoleUser:
			conv = append(conv, openai.UserMessage(m.Content))
		case RoleAssistant:
			conv = append(conv, openai.AssistantMessage(m.Content))
		default:
			logrus.Debugf("Dropping client %s message at position %d", m.Role, i)
		}
	}
	return conv
}
