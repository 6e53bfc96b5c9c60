package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func fixedTime(t *testing.T) time.Time {
	t.Helper()
	loc := time.FixedZone("ICT", 7*3600)
	return time.Date(2026, 3, 14, 10, 0, 0, 0, loc)
}

func TestGetTimeIsDeterministicWithFixedClock(t *testing.T) {
	tool := NewGetTime(FixedClock(fixedTime(t)))

	res, err := tool.Call(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, TimeResult{
		ISO:      "2026-03-14T10:00:00+07:00",
		Display:  "10:00:00 14/03/2026",
		Timezone: "ICT",
	}, res)
}

func TestNewClockFallsBackToUTC(t *testing.T) {
	clock := NewClock("Mars/Olympus_Mons")
	assert.Equal(t, time.UTC, clock.Location)
}

func TestSearchDocsTruncatesStaticCatalog(t *testing.T) {
	tool := NewSearchDocs(nil)

	res, err := tool.Call(context.Background(), map[string]any{"query": "pha trà"})
	require.NoError(t, err)
	sr := res.(SearchResult)
	assert.Len(t, sr.Results, DefaultSearchLimit)
	assert.Equal(t, DefaultDocuments[0], sr.Results[0])

	res, err = tool.Call(context.Background(), map[string]any{"query": "bất kỳ", "limit": float64(1)})
	require.NoError(t, err)
	assert.Len(t, res.(SearchResult).Results, 1)

	res, err = tool.Call(context.Background(), map[string]any{"query": "tất cả", "limit": float64(99)})
	require.NoError(t, err)
	assert.Len(t, res.(SearchResult).Results, len(DefaultDocuments))
}

func TestSearchDocsRequiresQuery(t *testing.T) {
	tool := NewSearchDocs(nil)

	_, err := tool.Call(context.Background(), map[string]any{"query": "   "})
	assert.ErrorIs(t, err, ErrInvalidArguments)

	_, err = tool.Call(context.Background(), map[string]any{"query": 42})
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestSearchDocsUsesConfiguredCatalog(t *testing.T) {
	docs := []Document{{Title: "A", URL: "/a"}, {Title: "B", URL: "/b"}}
	tool := NewSearchDocs(docs)
	docs[0].Title = "mutated"

	res, err := tool.Call(context.Background(), map[string]any{"query": "x"})
	require.NoError(t, err)
	assert.Equal(t, []Document{{Title: "A", URL: "/a"}, {Title: "B", URL: "/b"}}, res.(SearchResult).Results)
}

func TestRegistryResolvesKnownTools(t *testing.T) {
	reg := NewDefaultRegistry(FixedClock(fixedTime(t)), nil)

	assert.Equal(t, []Name{NameGetTime, NameSearchDocs}, reg.Names())

	_, err := reg.Get("get_time")
	require.NoError(t, err)

	_, err = reg.Get("get_weather")
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = reg.Execute(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(NewGetTime(nil), NewGetTime(nil))
	assert.Error(t, err)

	_, err = NewRegistry(nil)
	assert.Error(t, err)
}

type panickyTool struct{}

func (panickyTool) Name() Name { return NameSearchDocs }
func (panickyTool) Definition() openai.ChatCompletionToolUnionParam {
	return NewSearchDocs(nil).Definition()
}
func (panickyTool) Call(context.Context, map[string]any) (Result, error) {
	panic("index out of range")
}

func TestRegistryRecoversToolPanics(t *testing.T) {
	reg, err := NewRegistry(panickyTool{})
	require.NoError(t, err)

	res, err := reg.Execute(context.Background(), "search_docs", map[string]any{"query": "x"})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnknownTool))
	assert.Contains(t, err.Error(), "panicked")
}

func TestRegistryDefinitionsSerializeAsFunctionTools(t *testing.T) {
	reg := NewDefaultRegistry(nil, nil)

	raw, err := json.Marshal(reg.Definitions())
	require.NoError(t, err)

	parsed := gjson.ParseBytes(raw)
	assert.Equal(t, int64(2), parsed.Get("#").Int())
	assert.Equal(t, "function", parsed.Get("0.type").String())
	assert.Equal(t, "get_time", parsed.Get("0.function.name").String())
	assert.Equal(t, "search_docs", parsed.Get("1.function.name").String())
	assert.Equal(t, "query", parsed.Get("1.function.parameters.required.0").String())
}
