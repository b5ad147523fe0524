package watch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerStartIdempotent(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ran := make(chan struct{}, 1)
	if !s.Start(ctx, JobLivePoll, time.Hour, func(context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	}) {
		t.Fatal("first Start = false")
	}

	// Duplicate creation is a no-op.
	if s.Start(ctx, JobLivePoll, time.Hour, func(context.Context) {}) {
		t.Fatal("second Start with same name = true")
	}
	if !s.Running(JobLivePoll) {
		t.Fatal("Running = false after Start")
	}

	// The job body runs once immediately, before the first tick.
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run immediately after Start")
	}
}

func TestSchedulerStopAll(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx, JobLivePoll, time.Hour, func(context.Context) {})
	s.Start(ctx, JobRevalidate, time.Hour, func(context.Context) {})

	s.StopAll()

	waitStopped(t, s, JobLivePoll)
	waitStopped(t, s, JobRevalidate)

	// Names are reusable after teardown.
	if !s.Start(ctx, JobLivePoll, time.Hour, func(context.Context) {}) {
		t.Fatal("Start after StopAll = false")
	}
}

func TestSchedulerStopSingle(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	s.Start(ctx, JobLivePoll, 10*time.Millisecond, func(context.Context) {
		runs.Add(1)
	})
	s.Start(ctx, JobRevalidate, time.Hour, func(context.Context) {})

	s.Stop(JobLivePoll)
	waitStopped(t, s, JobLivePoll)

	if !s.Running(JobRevalidate) {
		t.Fatal("Stop cancelled an unrelated job")
	}

	// No further runs after the cancel settles.
	settled := runs.Load()
	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got != settled {
		t.Errorf("job ran %d more times after Stop", got-settled)
	}
}

func waitStopped(t *testing.T, s *Scheduler, name string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !s.Running(name) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s still running after stop", name)
}
