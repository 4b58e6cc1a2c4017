package webui

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogEntry is one captured log line
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Component string    `json:"component,omitempty"`
	Message   string    `json:"message"`
	Raw       string    `json:"raw"`
}

// LogBuffer keeps the most recent log lines in a fixed ring. It is an
// io.Writer so it can sit behind zerolog directly.
type LogBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	size    int
	head    int
	count   int
}

// NewLogBuffer creates a buffer holding up to size entries
func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = 1
	}
	return &LogBuffer{
		entries: make([]LogEntry, size),
		size:    size,
	}
}

// Write implements io.Writer. zerolog writes one JSON object per call.
func (lb *LogBuffer) Write(p []byte) (int, error) {
	entry := parseEntry(p)

	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.entries[lb.head] = entry
	lb.head = (lb.head + 1) % lb.size
	if lb.count < lb.size {
		lb.count++
	}
	return len(p), nil
}

// GetEntries returns all entries, oldest first
func (lb *LogBuffer) GetEntries() []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	result := make([]LogEntry, lb.count)
	start := 0
	if lb.count == lb.size {
		start = lb.head
	}
	for i := range lb.count {
		result[i] = lb.entries[(start+i)%lb.size]
	}
	return result
}

// GetRecentEntries returns the last n entries at or above minLevel
func (lb *LogBuffer) GetRecentEntries(n int, minLevel zerolog.Level) []LogEntry {
	all := lb.GetEntries()
	out := all[:0]
	for _, e := range all {
		lvl, err := zerolog.ParseLevel(e.Level)
		if err != nil || lvl >= minLevel {
			out = append(out, e)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// Clear drops every entry
func (lb *LogBuffer) Clear() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.head = 0
	lb.count = 0
}

func parseEntry(p []byte) LogEntry {
	raw := strings.TrimRight(string(p), "\n")
	entry := LogEntry{Timestamp: time.Now(), Level: zerolog.InfoLevel.String(), Message: raw, Raw: raw}

	var line map[string]any
	if err := json.Unmarshal(p, &line); err != nil {
		return entry
	}
	if v, ok := line[zerolog.LevelFieldName].(string); ok {
		entry.Level = v
	}
	if v, ok := line[zerolog.MessageFieldName].(string); ok {
		entry.Message = v
	}
	if v, ok := line["component"].(string); ok {
		entry.Component = v
	}
	if v, ok := line[zerolog.TimestampFieldName].(string); ok {
		if ts, err := time.Parse(zerolog.TimeFieldFormat, v); err == nil {
			entry.Timestamp = ts
		}
	}
	return entry
}
