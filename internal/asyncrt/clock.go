package asyncrt

import (
	"context"
	"math"
	"time"

	"fortio.org/safecast"
)

// Clock supplies time and blocking behavior for timers.
type Clock interface {
	NowMs() uint64
	SleepUntilMs(ctx context.Context, deadlineMs uint64) error
}

// VirtualClock advances executor time without blocking.
type VirtualClock struct {
	ms uint64
}

func (c *VirtualClock) NowMs() uint64 {
	if c == nil {
		return 0
	}
	return c.ms
}

func (c *VirtualClock) SleepUntilMs(ctx context.Context, deadlineMs uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadlineMs > c.ms {
		c.ms = deadlineMs
	}
	return nil
}

// RealClock blocks the goroutine until the requested deadline.
type RealClock struct {
	start time.Time
}

// NewRealClock returns a wall clock counting from now.
func NewRealClock() *RealClock {
	return &RealClock{start: time.Now()}
}

func (c *RealClock) NowMs() uint64 {
	ms, err := safecast.Conv[uint64](time.Since(c.start).Milliseconds())
	if err != nil {
		return 0
	}
	return ms
}

func (c *RealClock) SleepUntilMs(ctx context.Context, deadlineMs uint64) error {
	now := c.NowMs()
	if deadlineMs <= now {
		return ctx.Err()
	}
	delta := deadlineMs - now
	maxMs := uint64(math.MaxInt64 / int64(time.Millisecond))
	if delta > maxMs {
		delta = maxMs
	}
	delay, err := safecast.Conv[int64](delta)
	if err != nil {
		return err
	}
	t := time.NewTimer(time.Duration(delay) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Now returns the wall time of the executor clock. It is the time source
// handed to the trace stack so lines carry executor time.
func (e *Executor) Now() time.Time {
	ms, err := safecast.Conv[int64](e.clock.NowMs())
	if err != nil {
		ms = math.MaxInt64 / int64(time.Millisecond)
	}
	return e.epoch.Add(time.Duration(ms) * time.Millisecond)
}

// NowMs returns executor time in milliseconds since start.
func (e *Executor) NowMs() uint64 { return e.clock.NowMs() }
