package trace

// Sink receives rendered lines. Implementations must not panic on write
// failures; the stack still recovers if one does.
type Sink interface {
	WriteLine(text string)
	WriteWarning(text string)
	WriteError(text string)
}

// Severity identifies which sink channel a line went to.
type Severity uint8

const (
	SevLine Severity = iota
	SevWarning
	SevError
)

// String returns the string representation of Severity.
func (s Severity) String() string {
	switch s {
	case SevLine:
		return "line"
	case SevWarning:
		return "warning"
	case SevError:
		return "error"
	}
	return "unknown"
}

// Record is one line captured by an in-memory sink.
type Record struct {
	Severity Severity
	Text     string
}

// MemorySink keeps every line in memory.
type MemorySink struct {
	records []Record
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) WriteLine(text string)    { m.add(SevLine, text) }
func (m *MemorySink) WriteWarning(text string) { m.add(SevWarning, text) }
func (m *MemorySink) WriteError(text string)   { m.add(SevError, text) }

func (m *MemorySink) add(sev Severity, text string) {
	m.records = append(m.records, Record{Severity: sev, Text: text})
}

// Records returns the captured lines in write order.
func (m *MemorySink) Records() []Record {
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Lines returns the captured text in write order.
func (m *MemorySink) Lines() []string {
	out := make([]string, len(m.records))
	for i, r := range m.records {
		out[i] = r.Text
	}
	return out
}

// Len returns the number of captured lines.
func (m *MemorySink) Len() int { return len(m.records) }

// Reset drops all captured lines.
func (m *MemorySink) Reset() { m.records = m.records[:0] }
