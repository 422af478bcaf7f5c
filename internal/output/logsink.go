package output

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
)

var ErrSinkClosed = errors.New("log sink closed")

// Entry is one decoded job log event.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
	Event   string    `json:"event,omitempty"`
	Segment *int      `json:"segment,omitempty"`
}

// String renders the entry the way the dashboard log pane shows it.
func (e Entry) String() string {
	var sb strings.Builder
	sb.WriteString(strings.ToUpper(e.Level))
	sb.WriteString(" | ")
	sb.WriteString(e.Message)
	if e.Error != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Error)
	}
	return sb.String()
}

// LogSink is a zerolog writer shared by every worker of a job. Writes go
// through a bounded channel to a single goroutine that appends them to an
// unbounded slice, so concurrent workers never interleave or overflow.
type LogSink struct {
	ch     chan []byte
	done   chan struct{}
	mu     sync.RWMutex // guards closed against Write
	closed bool

	entriesMu sync.Mutex
	entries   []Entry
}

func NewLogSink(buffer int) *LogSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &LogSink{
		ch:   make(chan []byte, buffer),
		done: make(chan struct{}),
	}
	go s.drain()
	return s
}

// Write implements io.Writer. zerolog calls it once per complete event.
func (s *LogSink) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrSinkClosed
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	s.ch <- buf
	return len(p), nil
}

func (s *LogSink) drain() {
	defer close(s.done)
	for line := range s.ch {
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			e = Entry{Time: time.Now(), Level: "info", Message: strings.TrimSpace(string(line))}
		}
		s.entriesMu.Lock()
		s.entries = append(s.entries, e)
		s.entriesMu.Unlock()
	}
}

// Close stops accepting writes and waits until every buffered event is stored.
func (s *LogSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	<-s.done
}

// Entries returns a copy of the events stored so far.
func (s *LogSink) Entries() []Entry {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Tail returns at most n of the latest events.
func (s *LogSink) Tail(n int) []Entry {
	entries := s.Entries()
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries
}

// Count returns how many events carry the given event tag for a segment.
func (s *LogSink) Count(segment int, event string) int {
	n := 0
	for _, e := range s.Entries() {
		if e.Event == event && e.Segment != nil && *e.Segment == segment {
			n++
		}
	}
	return n
}
