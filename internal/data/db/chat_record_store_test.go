package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ChatRecordStore {
	t.Helper()
	store, err := NewChatRecordStore(filepath.Join(t.TempDir(), "data", "tea-assistant.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestChatRecordStoreRecordAndList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	for i, status := range []ChatStatus{ChatStatusOK, ChatStatusError, ChatStatusOK} {
		r := &ChatRecord{
			RequestID:    "req-" + string(rune('a'+i)),
			ClientIP:     "203.0.113.7",
			Model:        "gpt-4o-mini",
			Status:       status,
			InputTokens:  10,
			OutputTokens: 5,
			DurationMs:   int64(100 * (i + 1)),
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		if i == 2 {
			r.SetToolCalls([]string{"get_time", "search_docs"})
			r.ToolErrors = 1
		}
		require.NoError(t, store.Record(ctx, r))
		assert.NotZero(t, r.ID)
	}

	records, total, err := store.List(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, records, 2)
	assert.Equal(t, "req-c", records[0].RequestID)
	assert.Equal(t, []string{"get_time", "search_docs"}, records[0].ToolCallNames())
	assert.Equal(t, "req-b", records[1].RequestID)

	okRecords, okTotal, err := store.List(ctx, ListOptions{Status: ChatStatusOK, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), okTotal)
	require.Len(t, okRecords, 1)
	assert.Equal(t, "req-a", okRecords[0].RequestID)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestChatRecordStoreStats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	empty, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.Total)

	require.NoError(t, store.Record(ctx, &ChatRecord{Model: "m", Status: ChatStatusOK, ToolCalls: "get_time", InputTokens: 3, OutputTokens: 7, DurationMs: 100}))
	require.NoError(t, store.Record(ctx, &ChatRecord{Model: "m", Status: ChatStatusOK, ToolCalls: "get_time,search_docs", ToolErrors: 1, DurationMs: 300}))
	require.NoError(t, store.Record(ctx, &ChatRecord{Model: "m", Status: ChatStatusCanceled}))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.ByStatus[ChatStatusOK])
	assert.Equal(t, int64(1), stats.ByStatus[ChatStatusCanceled])
	assert.Equal(t, int64(2), stats.ToolCalls["get_time"])
	assert.Equal(t, int64(1), stats.ToolCalls["search_docs"])
	assert.Equal(t, int64(1), stats.ToolErrors)
	assert.Equal(t, int64(3), stats.InputTokens)
	assert.Equal(t, int64(7), stats.OutputTokens)
	assert.InDelta(t, 133.3, stats.AvgDuration, 0.1)
}

func TestChatRecordStoreDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, store.Record(ctx, &ChatRecord{Model: "m", Status: ChatStatusOK, CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, store.Record(ctx, &ChatRecord{Model: "m", Status: ChatStatusOK, CreatedAt: now}))

	deleted, err := store.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestChatRecordStoreRejectsNil(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.Record(context.Background(), nil))
}

func TestNewChatRecordStoreRequiresPath(t *testing.T) {
	_, err := NewChatRecordStore("")
	assert.Error(t, err)
}
