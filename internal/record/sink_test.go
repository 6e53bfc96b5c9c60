package record

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestParseMode(t *testing.T) {
	for _, s := range []string{"", "all", "response"} {
		_, err := ParseMode(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseMode("slim")
	assert.Error(t, err)
}

func TestDisabledSinkWritesNothing(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSink(dir, ModeOff)
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	s.Write(Entry{Model: "m"})
	s.Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSinkRotatesHourlyAndDropsRequestInResponseMode(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSink(dir, ModeResponse)
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 9, 59, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Write(Entry{Model: "gpt-4o-mini", Request: &Request{Method: "POST"}, Response: &Response{StatusCode: 200}})
	now = now.Add(2 * time.Minute)
	s.Write(Entry{Model: "gpt-4o-mini", Response: &Response{StatusCode: 502}})
	s.Close()

	first, err := os.ReadFile(filepath.Join(dir, "gpt-4o-mini-2026-03-14-09.jsonl"))
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(dir, "gpt-4o-mini-2026-03-14-10.jsonl"))
	require.NoError(t, err)

	line := gjson.ParseBytes(first)
	assert.False(t, line.Get("request").Exists())
	assert.Equal(t, int64(200), line.Get("response.status_code").Int())
	assert.NotEmpty(t, line.Get("exchange_id").String())
	assert.Equal(t, int64(502), gjson.ParseBytes(second).Get("response.status_code").Int())
	assert.Equal(t, 1, strings.Count(string(first), "\n"))
}

func TestNewSinkRequiresDirectory(t *testing.T) {
	_, err := NewSink("", ModeAll)
	assert.Error(t, err)
}
