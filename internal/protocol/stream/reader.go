package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// ErrTransport marks a failure of the underlying byte stream.
var ErrTransport = errors.New("upstream stream transport error")

// Reader decodes an OpenAI-compatible `data: <json>` stream into Events.
// It is single pass: once it returned io.EOF or an error it stays exhausted.
type Reader struct {
	src     *bufio.Reader
	pending []Event
	done    bool
	err     error

	dropped int
}

// NewReader wraps the body of a streaming chat completion response.
func NewReader(r io.Reader) *Reader {
	return &Reader{src: bufio.NewReader(r)}
}

// Next returns the next event. It returns io.EOF after [DONE] or when the
// stream closes, and a wrapped ErrTransport when reading fails.
func (r *Reader) Next() (Event, error) {
	for len(r.pending) == 0 {
		if r.done {
			return Event{}, io.EOF
		}
		if r.err != nil {
			return Event{}, r.err
		}
		r.fill()
	}
	ev := r.pending[0]
	r.pending = r.pending[1:]
	return ev, nil
}

// Dropped is the number of data lines skipped because they were not valid JSON.
func (r *Reader) Dropped() int {
	return r.dropped
}

// fill reads one line and queues the events it carries.
func (r *Reader) fill() {
	line, err := r.src.ReadString('\n')
	// A trailing line without newline is still a complete line at EOF.
	if line != "" {
		r.processLine(line)
	}
	if err == nil || r.done {
		return
	}
	if errors.Is(err, io.EOF) {
		r.done = true
		return
	}
	r.err = fmt.Errorf("%w: %w", ErrTransport, err)
}

func (r *Reader) processLine(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" || !strings.HasPrefix(line, sseDataPrefix) {
		return
	}
	if line == sseDoneLine {
		r.pending = append(r.pending, DoneEvent())
		r.done = true
		return
	}

	payload := line[len(sseDataPrefix):]
	if !gjson.Valid(payload) {
		r.dropped++
		logrus.Debugf("Dropping malformed stream line: %.120s", payload)
		return
	}
	r.pending = append(r.pending, decodeChunk(gjson.Parse(payload))...)
}

// decodeChunk extracts the events of one chat.completion.chunk payload.
func decodeChunk(chunk gjson.Result) []Event {
	var events []Event

	choice := chunk.Get("choices.0")
	if !choice.Exists() {
		return nil
	}

	delta := choice.Get("delta")
	if content := delta.Get("content"); content.Type == gjson.String && content.Str != "" {
		events = append(events, ContentEvent(content.Str))
	}

	for _, tc := range delta.Get("tool_calls").Array() {
		events = append(events, ToolCallEvent(ToolCallDelta{
			Index:             int(tc.Get("index").Int()),
			ID:                tc.Get("id").String(),
			Name:              tc.Get("function.name").String(),
			ArgumentsFragment: tc.Get("function.arguments").String(),
		}))
	}

	if reason := choice.Get("finish_reason"); reason.Type == gjson.String && reason.Str != "" {
		events = append(events, FinishEvent(reason.Str))
	}

	return events
}
