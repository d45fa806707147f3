package trace

// MultiSink fans out lines to multiple sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a MultiSink writing to every non-nil sink in order.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// WriteLine sends the line to all underlying sinks.
func (m *MultiSink) WriteLine(text string) {
	for _, s := range m.sinks {
		s.WriteLine(text)
	}
}

// WriteWarning sends the warning to all underlying sinks.
func (m *MultiSink) WriteWarning(text string) {
	for _, s := range m.sinks {
		s.WriteWarning(text)
	}
}

// WriteError sends the error to all underlying sinks.
func (m *MultiSink) WriteError(text string) {
	for _, s := range m.sinks {
		s.WriteError(text)
	}
}

// Flush flushes every underlying sink that supports it.
func (m *MultiSink) Flush() error {
	var firstErr error
	for _, s := range m.sinks {
		f, ok := s.(interface{ Flush() error })
		if !ok {
			continue
		}
		if err := f.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
