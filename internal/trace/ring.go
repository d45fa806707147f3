package trace

import (
	"io"
	"sync"
)

// RingSink keeps the last N lines in memory (circular buffer).
type RingSink struct {
	mu       sync.RWMutex
	records  []Record
	capacity int
	head     int  // next write position
	full     bool // has wrapped around
}

// NewRingSink creates a new RingSink with specified capacity.
func NewRingSink(capacity int) *RingSink {
	if capacity <= 0 {
		capacity = 4096
	}
	return &RingSink{
		records:  make([]Record, capacity),
		capacity: capacity,
	}
}

func (t *RingSink) WriteLine(text string)    { t.add(SevLine, text) }
func (t *RingSink) WriteWarning(text string) { t.add(SevWarning, text) }
func (t *RingSink) WriteError(text string)   { t.add(SevError, text) }

func (t *RingSink) add(sev Severity, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records[t.head] = Record{Severity: sev, Text: text}
	t.head = (t.head + 1) % t.capacity
	if t.head == 0 {
		t.full = true
	}
}

// Snapshot returns a copy of all stored lines in chronological order.
func (t *RingSink) Snapshot() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.full {
		result := make([]Record, t.head)
		copy(result, t.records[:t.head])
		return result
	}

	// Wrapped - return [head:capacity] + [0:head]
	result := make([]Record, t.capacity)
	copy(result, t.records[t.head:])
	copy(result[t.capacity-t.head:], t.records[:t.head])
	return result
}

// Dump writes all stored lines to w, one per line.
func (t *RingSink) Dump(w io.Writer) error {
	for _, rec := range t.Snapshot() {
		if _, err := io.WriteString(w, rec.Text+"\n"); err != nil {
			return err
		}
	}
	return nil
}
