package watch

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Job names used by the background pipeline.
const (
	JobLivePoll   = "live-poll"
	JobRevalidate = "token-revalidate"
)

// Scheduler owns the recurring timers. Creation is idempotent per name, and
// StopAll is the teardown path on logout or token invalidation.
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]context.CancelFunc
}

func NewScheduler() *Scheduler {
	return &Scheduler{jobs: make(map[string]context.CancelFunc)}
}

// Start launches a named recurring job: fn runs once immediately, then every
// interval with a small per-iteration jitter so instances drift apart. If a
// job with the same name is already running, Start is a no-op returning false.
func (s *Scheduler) Start(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) bool {
	if interval <= 0 {
		interval = time.Minute
	}
	s.mu.Lock()
	if _, exists := s.jobs[name]; exists {
		s.mu.Unlock()
		slog.Debug("job already scheduled", slog.String("job", name))
		return false
	}
	jctx, cancel := context.WithCancel(ctx)
	s.jobs[name] = cancel
	s.mu.Unlock()

	slog.Info("job scheduled", slog.String("job", name), slog.Duration("interval", interval))
	go func() {
		defer s.remove(name)
		fn(jctx)
		for {
			// ±10% jitter on the sleep keeps ticks from aligning across jobs.
			jitterRange := int64(interval / 10)
			sleep := interval
			if jitterRange > 0 {
				//nolint:gosec // G404: math/rand is sufficient for scheduling jitter
				sleep += time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			}
			select {
			case <-jctx.Done():
				slog.Info("job stopped", slog.String("job", name))
				return
			case <-time.After(sleep):
			}
			fn(jctx)
		}
	}()
	return true
}

// Stop cancels a single job by name.
func (s *Scheduler) Stop(name string) {
	s.mu.Lock()
	cancel, ok := s.jobs[name]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// StopAll cancels every scheduled job.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.jobs))
	for _, c := range s.jobs {
		cancels = append(cancels, c)
	}
	s.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

// Running reports whether a job with the given name is scheduled.
func (s *Scheduler) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

func (s *Scheduler) remove(name string) {
	s.mu.Lock()
	delete(s.jobs, name)
	s.mu.Unlock()
}
