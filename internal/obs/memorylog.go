package obs

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogEntry is a stored copy of a logrus entry.
type LogEntry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// MemoryLogHook is a logrus hook keeping the newest entries in a ring buffer.
type MemoryLogHook struct {
	mu       sync.RWMutex
	entries  []LogEntry
	writeIdx int
	count    int
	minLevel logrus.Level
}

// NewMemoryLogHook keeps up to maxEntries entries at or above minLevel severity.
func NewMemoryLogHook(maxEntries int, minLevel logrus.Level) *MemoryLogHook {
	if maxEntries <= 0 {
		maxEntries = 500
	}
	return &MemoryLogHook{
		entries:  make([]LogEntry, maxEntries),
		minLevel: minLevel,
	}
}

// Levels returns the log levels this hook processes.
func (h *MemoryLogHook) Levels() []logrus.Level {
	levels := make([]logrus.Level, 0, len(logrus.AllLevels))
	for _, l := range logrus.AllLevels {
		if l <= h.minLevel {
			levels = append(levels, l)
		}
	}
	return levels
}

// Fire copies the entry; later changes to entry.Data are not observed.
func (h *MemoryLogHook) Fire(entry *logrus.Entry) error {
	stored := LogEntry{
		Time:    entry.Time,
		Level:   entry.Level.String(),
		Message: entry.Message,
	}
	if len(entry.Data) > 0 {
		stored.Fields = make(map[string]any, len(entry.Data))
		for k, v := range entry.Data {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			stored.Fields[k] = v
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.writeIdx] = stored
	h.writeIdx = (h.writeIdx + 1) % len(h.entries)
	if h.count < len(h.entries) {
		h.count++
	}
	return nil
}

// Latest returns up to n newest entries, oldest first.
// A non-empty level keeps only entries of that level.
func (h *MemoryLogHook) Latest(n int, level string) []LogEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ordered := make([]LogEntry, 0, h.count)
	start := 0
	if h.count == len(h.entries) {
		start = h.writeIdx
	}
	for i := 0; i < h.count; i++ {
		e := h.entries[(start+i)%len(h.entries)]
		if level != "" && e.Level != level {
			continue
		}
		ordered = append(ordered, e)
	}
	if n > 0 && len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}

// Size returns the number of stored entries.
func (h *MemoryLogHook) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
