package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSchedulerRunsJobImmediately(t *testing.T) {
	sched := NewScheduler(zerolog.Nop())
	var runs int64
	sched.Add(Job{
		Name:     "counter",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&runs, 1)
			return nil
		},
	})

	sched.Start(context.Background())
	defer sched.Stop(time.Second)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&runs) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSchedulerTicksOnInterval(t *testing.T) {
	sched := NewScheduler(zerolog.Nop())
	var runs int64
	sched.Add(Job{
		Name:     "fast",
		Interval: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&runs, 1)
			return nil
		},
	})

	sched.Start(context.Background())
	defer sched.Stop(time.Second)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&runs) >= 3
	}, time.Second, 10*time.Millisecond)
}

func TestSchedulerIsolatesFailuresAndPanics(t *testing.T) {
	sched := NewScheduler(zerolog.Nop())
	var healthy int64
	sched.Add(Job{
		Name:     "panicky",
		Interval: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			panic("boom")
		},
	})
	sched.Add(Job{
		Name:     "failing",
		Interval: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			return errors.New("upstream down")
		},
	})
	sched.Add(Job{
		Name:     "healthy",
		Interval: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&healthy, 1)
			return nil
		},
	})

	sched.Start(context.Background())
	defer sched.Stop(time.Second)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&healthy) >= 3
	}, time.Second, 10*time.Millisecond)
}

func TestSchedulerStopDrains(t *testing.T) {
	sched := NewScheduler(zerolog.Nop())
	var runs int64
	sched.Add(Job{
		Name:     "ticking",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&runs, 1)
			return nil
		},
	})

	sched.Start(context.Background())
	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&runs) >= 1
	}, time.Second, 5*time.Millisecond)

	sched.Stop(time.Second)
	after := atomic.LoadInt64(&runs)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt64(&runs))
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	sched := NewScheduler(zerolog.Nop())
	var runs int64
	sched.Add(Job{
		Name:     "once",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&runs, 1)
			return nil
		},
	})

	ctx := context.Background()
	sched.Start(ctx)
	sched.Start(ctx)
	defer sched.Stop(time.Second)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&runs))
}
