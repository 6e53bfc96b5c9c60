package llmclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
)

// ErrMissingBody is returned when a 200 response carries no stream body.
var ErrMissingBody = errors.New("upstream response has no body")

// Request is one streaming chat completion call.
// Tools are offered with tool_choice "auto" when non-empty.
type Request struct {
	Messages []openai.ChatCompletionMessageParamUnion
	Tools    []openai.ChatCompletionToolUnionParam
}

// StatusError is returned when the provider answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

type requestIDKey struct{}

// WithRequestID tags upstream calls made with ctx with the inbound request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
