package trace

import "slices"

// LaneEntry pairs a lane index with the interruptable root holding it.
type LaneEntry struct {
	Index int
	Scope *Scope
}

// LaneAllocator hands out the smallest free lane index to interruptable roots.
// Indices are stable for the lifetime of their holder; releasing one never
// renumbers the others.
type LaneAllocator struct {
	held map[int]*Scope
}

// NewLaneAllocator creates an empty allocator.
func NewLaneAllocator() *LaneAllocator {
	return &LaneAllocator{held: make(map[int]*Scope)}
}

// Allocate registers s at the lowest free index and returns it.
func (a *LaneAllocator) Allocate(s *Scope) int {
	if a.held == nil {
		a.held = make(map[int]*Scope)
	}
	idx := 0
	for {
		if _, taken := a.held[idx]; !taken {
			break
		}
		idx++
	}
	a.held[idx] = s
	return idx
}

// Release frees idx. Releasing a free index is a no-op.
func (a *LaneAllocator) Release(idx int) {
	delete(a.held, idx)
}

// Holder returns the scope holding idx, or nil.
func (a *LaneAllocator) Holder(idx int) *Scope {
	if a == nil {
		return nil
	}
	return a.held[idx]
}

// Len returns the number of live lanes.
func (a *LaneAllocator) Len() int {
	if a == nil {
		return 0
	}
	return len(a.held)
}

// Indices returns the live lane indices in ascending order.
func (a *LaneAllocator) Indices() []int {
	if a == nil {
		return nil
	}
	out := make([]int, 0, len(a.held))
	for idx := range a.held {
		out = append(out, idx)
	}
	slices.Sort(out)
	return out
}

// Entries returns the live lanes in ascending index order.
func (a *LaneAllocator) Entries() []LaneEntry {
	indices := a.Indices()
	out := make([]LaneEntry, len(indices))
	for i, idx := range indices {
		out[i] = LaneEntry{Index: idx, Scope: a.held[idx]}
	}
	return out
}
