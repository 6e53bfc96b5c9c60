package otel

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RequestOptions describes one finished chat request.
type RequestOptions struct {
	// Model is the upstream model identifier
	Model string

	// Status is "ok", "error", "canceled" or "rejected"
	Status string

	// StatusCode is the HTTP status sent to the client
	StatusCode int

	// InputTokens and OutputTokens are tiktoken estimates
	InputTokens  int
	OutputTokens int

	// LatencyMs is the full stream duration in milliseconds
	LatencyMs int64
}

// RelayTracker records relay metrics. A nil tracker ignores every call.
type RelayTracker struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	toolCalls       metric.Int64Counter
	rateLimited     metric.Int64Counter
	tokens          metric.Int64Counter
}

// NewRelayTracker creates the instruments on meter.
func NewRelayTracker(meter metric.Meter) (*RelayTracker, error) {
	rt := &RelayTracker{}
	var err error

	rt.requestCount, err = meter.Int64Counter(
		"assistant.request.count",
		metric.WithDescription("Number of chat requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	rt.requestDuration, err = meter.Float64Histogram(
		"assistant.request.duration",
		metric.WithDescription("Chat stream duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	rt.toolCalls, err = meter.Int64Counter(
		"assistant.tool.calls",
		metric.WithDescription("Tool calls dispatched by tool and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	rt.rateLimited, err = meter.Int64Counter(
		"assistant.ratelimit.rejected",
		metric.WithDescription("Requests rejected by the per-IP rate limit"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	rt.tokens, err = meter.Int64Counter(
		"assistant.tokens",
		metric.WithDescription("Estimated tokens by type (input/output)"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	return rt, nil
}

// RecordRequest records a finished chat request.
func (rt *RelayTracker) RecordRequest(ctx context.Context, opts RequestOptions) {
	if rt == nil {
		return
	}
	attrs := []attribute.KeyValue{
		AttrModel.String(opts.Model),
		AttrResponseStatus.String(opts.Status),
		AttrStatusCode.String(strconv.Itoa(opts.StatusCode)),
	}
	rt.requestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	if opts.LatencyMs > 0 {
		rt.requestDuration.Record(ctx, float64(opts.LatencyMs), metric.WithAttributes(attrs...))
	}
	if opts.InputTokens > 0 {
		rt.tokens.Add(ctx, int64(opts.InputTokens), metric.WithAttributes(AttrModel.String(opts.Model), AttrTokenType.String("input")))
	}
	if opts.OutputTokens > 0 {
		rt.tokens.Add(ctx, int64(opts.OutputTokens), metric.WithAttributes(AttrModel.String(opts.Model), AttrTokenType.String("output")))
	}
}

// RecordToolCall records one dispatched tool call.
func (rt *RelayTracker) RecordToolCall(ctx context.Context, tool string, ok bool) {
	if rt == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	rt.toolCalls.Add(ctx, 1, metric.WithAttributes(AttrToolName.String(tool), AttrToolStatus.String(status)))
}

// RecordRateLimited records a 429 on route.
func (rt *RelayTracker) RecordRateLimited(ctx context.Context, route string) {
	if rt == nil {
		return
	}
	rt.rateLimited.Add(ctx, 1, metric.WithAttributes(AttrRoute.String(route)))
}
