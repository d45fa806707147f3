package asyncrt

// WakerKind identifies a wait queue category.
type WakerKind uint8

const (
	// WakerInvalid indicates an invalid waker key.
	WakerInvalid WakerKind = iota
	// WakerJoin indicates a join wait queue.
	WakerJoin
	// WakerTimer indicates a timer wait queue.
	WakerTimer
	// WakerSignal indicates a named signal wait queue.
	WakerSignal
)

// String returns the string representation of WakerKind.
func (k WakerKind) String() string {
	switch k {
	case WakerJoin:
		return "join"
	case WakerTimer:
		return "timer"
	case WakerSignal:
		return "signal"
	default:
		return "invalid"
	}
}

// WakerKey identifies a wait queue entry.
type WakerKey struct {
	Kind WakerKind
	A    uint64
	Name string
}

// IsValid reports whether the key is usable for waiting.
func (k WakerKey) IsValid() bool {
	return k.Kind != WakerInvalid
}

// JoinKey builds a join wait key for a target task.
func JoinKey(target TaskID) WakerKey {
	return WakerKey{Kind: WakerJoin, A: uint64(target)}
}

// TimerKey builds a wait key for a timer.
func TimerKey(timerID TimerID) WakerKey {
	return WakerKey{Kind: WakerTimer, A: uint64(timerID)}
}

// SignalKey builds a wait key for a named signal.
func SignalKey(name string) WakerKey {
	if name == "" {
		return WakerKey{Kind: WakerInvalid}
	}
	return WakerKey{Kind: WakerSignal, Name: name}
}

// PollOutcomeKind reports how a poll iteration completed.
type PollOutcomeKind uint8

const (
	// PollDoneSuccess indicates the task completed successfully.
	PollDoneSuccess PollOutcomeKind = iota
	// PollDoneFailed indicates the task completed with an error.
	PollDoneFailed
	// PollYielded indicates the task yielded.
	PollYielded
	// PollParked indicates the task is parked.
	PollParked
)

// PollOutcome describes the outcome of polling a task once.
type PollOutcome struct {
	Kind    PollOutcomeKind
	Value   any
	Err     error
	ParkKey WakerKey
}
