package asyncrt

import (
	"container/heap"
	"context"
)

// TimerID identifies a scheduled timer.
type TimerID uint64

// Timer represents a single scheduled wakeup.
type Timer struct {
	id         TimerID
	deadlineMs uint64
	key        WakerKey
	taskID     TaskID
	cancelled  bool
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadlineMs == h[j].deadlineMs {
		return h[i].id < h[j].id
	}
	return h[i].deadlineMs < h[j].deadlineMs
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	timer, ok := x.(*Timer)
	if !ok || timer == nil {
		return
	}
	*h = append(*h, timer)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	if n == 0 {
		return (*Timer)(nil)
	}
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TimerScheduleAfter schedules a timer for the current executor time + delayMs.
// A non-zero taskID is woken directly; otherwise waiters on the timer key are.
func (e *Executor) TimerScheduleAfter(taskID TaskID, delayMs uint64) TimerID {
	if e == nil {
		return 0
	}
	if e.nextTimerID == 0 {
		e.nextTimerID = 1
	}
	id := e.nextTimerID
	e.nextTimerID++
	timer := &Timer{
		id:         id,
		deadlineMs: e.clock.NowMs() + delayMs,
		key:        TimerKey(id),
		taskID:     taskID,
	}
	if e.timerByID == nil {
		e.timerByID = make(map[TimerID]*Timer)
	}
	e.timerByID[id] = timer
	heap.Push(&e.timers, timer)
	return id
}

// TimerCancel marks a timer as cancelled and removes it from lookup maps.
func (e *Executor) TimerCancel(id TimerID) {
	if e == nil || id == 0 {
		return
	}
	timer := e.timerByID[id]
	if timer == nil {
		return
	}
	timer.cancelled = true
	delete(e.timerByID, id)
}

// TimerActive reports whether a timer is still pending.
func (e *Executor) TimerActive(id TimerID) bool {
	if e == nil || id == 0 {
		return false
	}
	timer := e.timerByID[id]
	return timer != nil && !timer.cancelled
}

// advanceToNextTimer waits for the earliest pending timer and fires every
// timer that is due by then. It reports false when no timer is pending.
func (e *Executor) advanceToNextTimer(ctx context.Context) (bool, error) {
	for len(e.timers) > 0 && e.timers[0].cancelled {
		heap.Pop(&e.timers)
	}
	if len(e.timers) == 0 {
		return false, nil
	}
	if err := e.clock.SleepUntilMs(ctx, e.timers[0].deadlineMs); err != nil {
		return true, err
	}
	now := e.clock.NowMs()
	for len(e.timers) > 0 {
		next := e.timers[0]
		if !next.cancelled && next.deadlineMs > now {
			break
		}
		heap.Pop(&e.timers)
		if !next.cancelled {
			e.fireTimer(next)
		}
	}
	return true, nil
}

func (e *Executor) fireTimer(timer *Timer) {
	timer.cancelled = true
	delete(e.timerByID, timer.id)
	if timer.taskID != 0 {
		e.Wake(timer.taskID)
		return
	}
	e.WakeKeyAll(timer.key)
}
