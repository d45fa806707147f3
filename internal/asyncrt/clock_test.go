package asyncrt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualClockNeverGoesBack(t *testing.T) {
	c := &VirtualClock{}
	require.NoError(t, c.SleepUntilMs(context.Background(), 30))
	require.NoError(t, c.SleepUntilMs(context.Background(), 10))
	assert.Equal(t, uint64(30), c.NowMs())
}

func TestRealClockHonoursContext(t *testing.T) {
	c := NewRealClock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.SleepUntilMs(ctx, c.NowMs()+60_000)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, c.SleepUntilMs(context.Background(), c.NowMs()+2))
}

func TestExecutorNowFollowsEpoch(t *testing.T) {
	epoch := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	exec := NewExecutor(Config{Epoch: epoch})
	exec.TimerScheduleAfter(0, 1500)
	advanced, err := exec.advanceToNextTimer(context.Background())
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, epoch.Add(1500*time.Millisecond), exec.Now())

	assert.Equal(t, DefaultEpoch, NewExecutor(Config{}).Now())
}

func TestTimerCancel(t *testing.T) {
	exec := NewExecutor(Config{})
	keep := exec.TimerScheduleAfter(0, 20)
	drop := exec.TimerScheduleAfter(0, 10)
	assert.True(t, exec.TimerActive(drop))

	exec.TimerCancel(drop)
	assert.False(t, exec.TimerActive(drop))

	advanced, err := exec.advanceToNextTimer(context.Background())
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, uint64(20), exec.NowMs())
	assert.False(t, exec.TimerActive(keep))

	advanced, err = exec.advanceToNextTimer(context.Background())
	require.NoError(t, err)
	assert.False(t, advanced)
}

func TestSignalWakesAllWaiters(t *testing.T) {
	exec := NewExecutor(Config{})
	var woke []TaskID
	waiter := func(tc *TaskContext) PollOutcome {
		if tc.Task().Polls == 1 {
			return tc.Wait("ready")
		}
		woke = append(woke, tc.ID())
		return tc.Done(nil)
	}
	a := exec.Spawn("a", waiter, nil)
	b := exec.Spawn("b", waiter, nil)
	exec.Spawn("notifier", func(tc *TaskContext) PollOutcome {
		key, ok := tc.Executor().ParkedOn(a)
		assert.True(t, ok)
		assert.Equal(t, SignalKey("ready"), key)
		tc.Notify("ready")
		return tc.Done(nil)
	}, nil)

	require.NoError(t, exec.Run(context.Background()))
	assert.Equal(t, []TaskID{a, b}, woke)
	assert.False(t, SignalKey("").IsValid())
}
