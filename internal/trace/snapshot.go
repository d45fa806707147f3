package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot is a point-in-time view of a stack.
type Snapshot struct {
	Taken       time.Time      `json:"taken" msgpack:"taken"`
	Verbosity   string         `json:"verbosity" msgpack:"verbosity"`
	CurrentID   uint64         `json:"current_id,omitempty" msgpack:"current_id,omitempty"`
	CurrentName string         `json:"current_name,omitempty" msgpack:"current_name,omitempty"`
	Lanes       []LaneSnapshot `json:"lanes" msgpack:"lanes"`
}

// LaneSnapshot describes one live interruptable root.
type LaneSnapshot struct {
	Lane          uint16    `json:"lane" msgpack:"lane"`
	ScopeID       uint64    `json:"scope_id" msgpack:"scope_id"`
	Name          string    `json:"name" msgpack:"name"`
	Domain        string    `json:"domain" msgpack:"domain"`
	Tags          []string  `json:"tags,omitempty" msgpack:"tags,omitempty"`
	State         string    `json:"state" msgpack:"state"`
	Started       bool      `json:"started" msgpack:"started"`
	InterruptedAt time.Time `json:"interrupted_at,omitzero" msgpack:"interrupted_at,omitempty"`
}

// Snapshot captures the current scope and the live lanes.
func (st *Stack) Snapshot() (Snapshot, error) {
	snap := Snapshot{
		Taken:     st.now(),
		Verbosity: st.verbosity.String(),
		Lanes:     make([]LaneSnapshot, 0, st.lanes.Len()),
	}
	if cur := st.current; cur != nil {
		snap.CurrentID = cur.id
		snap.CurrentName = cur.name
	}
	for _, e := range st.lanes.Entries() {
		lane, err := safecast.Conv[uint16](e.Index)
		if err != nil {
			return Snapshot{}, fmt.Errorf("lane %d overflow: %w", e.Index, err)
		}
		s := e.Scope
		snap.Lanes = append(snap.Lanes, LaneSnapshot{
			Lane:          lane,
			ScopeID:       s.id,
			Name:          s.name,
			Domain:        s.domain,
			Tags:          s.Tags(),
			State:         s.State().String(),
			Started:       s.started,
			InterruptedAt: s.interruptedAt,
		})
	}
	return snap, nil
}

// SnapshotFormat selects the snapshot encoding.
type SnapshotFormat uint8

const (
	SnapshotJSON SnapshotFormat = iota
	SnapshotMsgpack
)

// ParseSnapshotFormat converts a string to a SnapshotFormat.
func ParseSnapshotFormat(s string) (SnapshotFormat, error) {
	switch strings.ToLower(s) {
	case "json":
		return SnapshotJSON, nil
	case "msgpack", "mp":
		return SnapshotMsgpack, nil
	default:
		return SnapshotJSON, fmt.Errorf("invalid snapshot format: %q (expected: json|msgpack)", s)
	}
}

// EncodeSnapshot writes snap to w.
func EncodeSnapshot(w io.Writer, snap Snapshot, format SnapshotFormat) error {
	switch format {
	case SnapshotMsgpack:
		return msgpack.NewEncoder(w).Encode(&snap)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
}

// DecodeSnapshot reads a snapshot written by EncodeSnapshot.
func DecodeSnapshot(r io.Reader, format SnapshotFormat) (Snapshot, error) {
	var snap Snapshot
	var err error
	switch format {
	case SnapshotMsgpack:
		err = msgpack.NewDecoder(r).Decode(&snap)
	default:
		err = json.NewDecoder(r).Decode(&snap)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
