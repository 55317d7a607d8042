package jobs

import (
	"sync"
	"time"

	"scrapeforge/internal/model"
)

// LogBuffer is a fixed-capacity ring of job log entries. When full, the
// oldest entry is dropped. Indexes are monotonic over the life of the
// buffer so pollers can page with since_index even after eviction.
type LogBuffer struct {
	mu       sync.RWMutex
	entries  []model.LogEntry
	start    int
	count    int
	appended int
}

// NewLogBuffer returns a buffer holding at most capacity entries.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &LogBuffer{entries: make([]model.LogEntry, capacity)}
}

// Append adds an entry, evicting the oldest when the ring is full.
func (b *LogBuffer) Append(level model.LogLevel, message string, data map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := model.LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Data:      data,
	}

	if b.count < len(b.entries) {
		b.entries[(b.start+b.count)%len(b.entries)] = entry
		b.count++
	} else {
		b.entries[b.start] = entry
		b.start = (b.start + 1) % len(b.entries)
	}
	b.appended++
}

// Page returns entries appended at or after sinceIndex, oldest first,
// optionally filtered by level. CurrentIndex in the result is the total
// number of entries ever appended; passing it back as sinceIndex on the
// next poll yields only newer entries. A sinceIndex older than the
// oldest retained entry is clamped, so pollers that fall behind resume
// from what is still buffered.
func (b *LogBuffer) Page(sinceIndex int, level model.LogLevel) model.LogPage {
	b.mu.RLock()
	defer b.mu.RUnlock()

	base := b.appended - b.count
	if sinceIndex < base {
		sinceIndex = base
	}
	if sinceIndex > b.appended {
		sinceIndex = b.appended
	}

	logs := make([]model.LogEntry, 0, b.appended-sinceIndex)
	for i := sinceIndex; i < b.appended; i++ {
		entry := b.entries[(b.start+(i-base))%len(b.entries)]
		if level != "" && entry.Level != level {
			continue
		}
		logs = append(logs, entry)
	}

	return model.LogPage{
		Logs:         logs,
		TotalCount:   b.count,
		CurrentIndex: b.appended,
	}
}
