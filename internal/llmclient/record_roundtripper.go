package llmclient

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tingly-dev/tea-assistant/internal/record"
)

// RecordRoundTripper copies each upstream exchange into a record.Sink.
// Streamed bodies are captured as they are read and written on Close.
type RecordRoundTripper struct {
	transport http.RoundTripper
	sink      *record.Sink
	model     string
}

// NewRecordRoundTripper wraps transport. A nil transport uses http.DefaultTransport.
func NewRecordRoundTripper(transport http.RoundTripper, sink *record.Sink, model string) *RecordRoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &RecordRoundTripper{transport: transport, sink: sink, model: model}
}

func (r *RecordRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	out := &record.Request{
		Method:  req.Method,
		URL:     req.URL.String(),
		Headers: headerToMap(req.Header),
	}
	if req.Body != nil && req.Body != http.NoBody {
		raw, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		out.Body = raw
		req.Body = io.NopCloser(bytes.NewReader(raw))
	}

	resp, err := r.transport.RoundTrip(req)
	entry := record.Entry{
		RequestID: req.Header.Get("X-Request-ID"),
		Model:     r.model,
		Request:   out,
	}
	if err != nil {
		entry.DurationMs = time.Since(start).Milliseconds()
		entry.Error = err.Error()
		r.sink.Write(entry)
		return nil, err
	}

	in := &record.Response{
		StatusCode: resp.StatusCode,
		Headers:    headerToMap(resp.Header),
		Streamed:   strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream"),
	}
	entry.Response = in

	if resp.Body == nil || resp.Body == http.NoBody {
		entry.DurationMs = time.Since(start).Milliseconds()
		r.sink.Write(entry)
		return resp, nil
	}

	resp.Body = &recordingReader{
		source: resp.Body,
		onClose: func(content string) {
			in.Body = content
			entry.DurationMs = time.Since(start).Milliseconds()
			r.sink.Write(entry)
		},
	}
	return resp, nil
}

// recordingReader tees everything read from source.
type recordingReader struct {
	source  io.ReadCloser
	buf     bytes.Buffer
	onClose func(content string)
	once    sync.Once
}

func (r *recordingReader) Read(p []byte) (int, error) {
	n, err := r.source.Read(p)
	if n > 0 {
		r.buf.Write(p[:n])
	}
	return n, err
}

func (r *recordingReader) Close() error {
	err := r.source.Close()
	r.once.Do(func() {
		r.onClose(r.buf.String())
	})
	return err
}

// headerToMap keeps the first value of each header and hides credentials.
func headerToMap(h http.Header) map[string]string {
	result := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) == 0 {
			continue
		}
		if strings.EqualFold(k, "Authorization") {
			result[k] = "[redacted]"
			continue
		}
		result[k] = v[0]
	}
	return result
}
