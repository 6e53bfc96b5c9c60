package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/tingly-dev/tea-assistant/internal/llmclient/httpclient"
	"github.com/tingly-dev/tea-assistant/internal/record"
)

const (
	chatCompletionsPath = "/chat/completions"
	// maxErrorBody bounds how much of a failed response is kept for diagnostics
	maxErrorBody = 4 << 10
)

// Config identifies the OpenAI-compatible provider.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	ProxyURL  string
	Timeout   time.Duration
	UserAgent string
	// Recorder receives a copy of every exchange when enabled.
	Recorder *record.Sink
}

// OpenAIClient streams chat completions from an OpenAI-compatible provider.
type OpenAIClient struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

// NewOpenAIClient creates a client from provider configuration.
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("upstream base url is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("upstream model is required")
	}
	if cfg.ProxyURL != "" {
		logrus.Infof("Using proxy for upstream client: %s", cfg.ProxyURL)
	}

	httpClient := httpclient.CreateHTTPClientWithProxy(cfg.ProxyURL)
	if cfg.Recorder.Enabled() {
		httpClient.Transport = NewRecordRoundTripper(httpClient.Transport, cfg.Recorder, cfg.Model)
	}
	httpClient = httpclient.WithHooks(httpClient, cfg.Timeout,
		httpclient.BearerAuthHook(cfg.APIKey),
		httpclient.UserAgentHook(cfg.UserAgent),
	)
	return NewOpenAIClientWithHTTP(cfg.BaseURL, cfg.Model, httpClient), nil
}

// NewOpenAIClientWithHTTP uses a caller supplied http.Client as is.
func NewOpenAIClientWithHTTP(baseURL, model string, httpClient *http.Client) *OpenAIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAIClient{
		endpoint:   strings.TrimRight(baseURL, "/") + chatCompletionsPath,
		model:      model,
		httpClient: httpClient,
	}
}

// Model returns the model identifier sent upstream.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Params converts a request into SDK parameters.
func (c *OpenAIClient) Params(req Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: req.Messages,
	}
	if len(req.Tools) > 0 {
		params.Tools = req.Tools
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.Opt("auto"),
		}
	}
	return params
}

// MarshalRequest encodes the streaming request body.
func (c *OpenAIClient) MarshalRequest(req Request) ([]byte, error) {
	body, err := json.Marshal(c.Params(req))
	if err != nil {
		return nil, fmt.Errorf("encode chat completion request: %w", err)
	}
	body, err = sjson.SetBytes(body, "stream", true)
	if err != nil {
		return nil, fmt.Errorf("set stream flag: %w", err)
	}
	return nullToolCallContent(body)
}

// nullToolCallContent writes an explicit null content on assistant tool call
// turns, which the SDK encoding omits.
func nullToolCallContent(body []byte) ([]byte, error) {
	var err error
	gjson.GetBytes(body, "messages").ForEach(func(key, msg gjson.Result) bool {
		if msg.Get("role").String() != "assistant" || !msg.Get("tool_calls").Exists() || msg.Get("content").Exists() {
			return true
		}
		body, err = sjson.SetRawBytes(body, fmt.Sprintf("messages.%d.content", key.Int()), []byte("null"))
		return err == nil
	})
	return body, err
}

// Stream opens a chat completion stream. The caller owns the returned body.
func (c *OpenAIClient) Stream(ctx context.Context, req Request) (io.ReadCloser, error) {
	body, err := c.MarshalRequest(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if id := RequestIDFromContext(ctx); id != "" {
		httpReq.Header.Set("X-Request-ID", id)
	}

	logrus.Debugf("Opening upstream stream: %s (%d messages, %d tools)", c.endpoint, len(req.Messages), len(req.Tools))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Message:    gjson.GetBytes(raw, "error.message").String(),
			Body:       string(raw),
		}
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, ErrMissingBody
	}
	return resp.Body, nil
}
