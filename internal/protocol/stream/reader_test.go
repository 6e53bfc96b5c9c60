package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contentLine(text string) string {
	return `data: {"choices":[{"index":0,"delta":{"content":"` + text + `"},"finish_reason":null}]}` + "\n\n"
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var events []Event
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func TestReaderContentAndDone(t *testing.T) {
	body := contentLine("Xin") + contentLine(" chào bạn") +
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}` + "\n\n" +
		"data: [DONE]\n\n"

	events := readAll(t, NewReader(strings.NewReader(body)))

	assert.Equal(t, []Event{
		ContentEvent("Xin"),
		ContentEvent(" chào bạn"),
		FinishEvent("stop"),
		DoneEvent(),
	}, events)
}

func TestReaderSplitsAcrossReadBoundaries(t *testing.T) {
	body := contentLine("một") + contentLine("hai") + "data: [DONE]\n\n"

	// OneByteReader forces every line to be assembled from partial reads.
	events := readAll(t, NewReader(iotest.OneByteReader(strings.NewReader(body))))

	assert.Equal(t, []Event{ContentEvent("một"), ContentEvent("hai"), DoneEvent()}, events)
}

func TestReaderIgnoresCommentsAndBlankLines(t *testing.T) {
	body := ": keep-alive\n\nevent: ping\n" + contentLine("ok") + "data:[DONE]\n" + "data: [DONE]\n"

	events := readAll(t, NewReader(strings.NewReader(body)))

	assert.Equal(t, []Event{ContentEvent("ok"), DoneEvent()}, events)
}

func TestReaderDropsMalformedLines(t *testing.T) {
	body := contentLine("A") + "data: {not json\n\n" + contentLine("B") + "data: [DONE]\n\n"
	r := NewReader(strings.NewReader(body))

	events := readAll(t, r)

	assert.Equal(t, []Event{ContentEvent("A"), ContentEvent("B"), DoneEvent()}, events)
	assert.Equal(t, 1, r.Dropped())
}

func TestReaderStopsAtDone(t *testing.T) {
	body := "data: [DONE]\n\n" + contentLine("after")
	r := NewReader(strings.NewReader(body))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, EventDone, ev.Kind)

	for i := 0; i < 2; i++ {
		_, err = r.Next()
		assert.ErrorIs(t, err, io.EOF)
	}
}

func TestReaderToolCallDeltas(t *testing.T) {
	body := `data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_time","arguments":""}}]}}]}` + "\n\n" +
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{}"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}` + "\n\n" +
		"data: [DONE]\n\n"

	events := readAll(t, NewReader(strings.NewReader(body)))

	assert.Equal(t, []Event{
		ToolCallEvent(ToolCallDelta{Index: 0, ID: "call_1", Name: "get_time"}),
		ToolCallEvent(ToolCallDelta{Index: 0, ArgumentsFragment: "{}"}),
		FinishEvent("tool_calls"),
		DoneEvent(),
	}, events)
}

func TestReaderUnterminatedFinalLine(t *testing.T) {
	events := readAll(t, NewReader(strings.NewReader(strings.TrimSuffix(contentLine("tail"), "\n\n"))))

	assert.Equal(t, []Event{ContentEvent("tail")}, events)
}

func TestReaderSkipsChunksWithoutChoices(t *testing.T) {
	body := `data: {"id":"x","choices":[],"usage":{"prompt_tokens":3}}` + "\n" +
		`data: {"choices":[{"delta":{"content":null}}]}` + "\n" +
		"data: [DONE]\n"

	events := readAll(t, NewReader(strings.NewReader(body)))

	assert.Equal(t, []Event{DoneEvent()}, events)
}

type failingReader struct {
	data string
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.data == "" {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestReaderSurfacesTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	r := NewReader(&failingReader{data: contentLine("partial"), err: boom})

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, ContentEvent("partial"), ev)

	_, err = r.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, boom)

	_, err = r.Next()
	assert.ErrorIs(t, err, ErrTransport)
}
