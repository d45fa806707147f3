package trace

import "time"

// Stalled returns the interruptable roots that are detached from current and
// have been for at least olderThan. Nothing is released; an abandoned scope
// keeps its lane until it is disposed.
func (st *Stack) Stalled(olderThan time.Duration) []*Scope {
	now := st.now()
	var out []*Scope
	for _, e := range st.lanes.Entries() {
		s := e.Scope
		if s.State() != StateInterrupted {
			continue
		}
		since := s.interruptedAt
		if since.IsZero() {
			since = s.startTime
		}
		if now.Sub(since) >= olderThan {
			out = append(out, s)
		}
	}
	return out
}
