// Package scheduler runs registered actions on recurring cadences against an
// injectable clock, so tests can advance time instead of waiting on tickers.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"waiver-wire/internal/observability"
)

// Action is invoked when a job comes due. now is the clock reading that fired it.
type Action func(ctx context.Context, now time.Time) error

// JobStatus is a snapshot of a registered job.
type JobStatus struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
	LastRun time.Time `json:"last_run,omitempty"`
	LastErr string    `json:"last_error,omitempty"`
	Runs    int       `json:"runs"`
	Running bool      `json:"running"`
}

type job struct {
	name    string
	cadence Cadence
	action  Action

	next    time.Time
	lastRun time.Time
	lastErr error
	runs    int
	running bool
}

// Scheduler fires registered jobs when their cadence comes due.
type Scheduler struct {
	clock        Clock
	pollInterval time.Duration
	log          logrus.FieldLogger

	mu   sync.Mutex
	jobs []*job
}

// New creates a scheduler polling the clock every pollInterval.
func New(clock Clock, pollInterval time.Duration, logger logrus.FieldLogger) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		clock:        clock,
		pollInterval: pollInterval,
		log:          logger.WithField("component", "scheduler"),
	}
}

// Register adds a job. Its first run is the cadence's next slot after now.
func (s *Scheduler) Register(name string, cadence Cadence, action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = append(s.jobs, &job{
		name:    name,
		cadence: cadence,
		action:  action,
		next:    cadence.Next(s.clock.Now()),
	})
}

// Tick fires every job that is due at the current clock reading and waits for
// them to finish. A job still running from an earlier tick is skipped.
// Returns the number of jobs fired.
func (s *Scheduler) Tick(ctx context.Context) int {
	now := s.clock.Now()

	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if j.next.After(now) {
			continue
		}
		// Advance before running so a slow job is not fired twice.
		j.next = j.cadence.Next(now)
		if j.running {
			s.log.WithField("job", j.name).Info("job still running, skipping")
			continue
		}
		j.running = true
		due = append(due, j)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, j := range due {
		wg.Add(1)
		go func(j *job) {
			defer wg.Done()
			s.fire(ctx, j, now)
		}(j)
	}
	wg.Wait()

	return len(due)
}

func (s *Scheduler) fire(ctx context.Context, j *job, now time.Time) {
	start := time.Now()
	err := j.action(ctx, now)

	s.mu.Lock()
	j.running = false
	j.lastRun = now
	j.lastErr = err
	j.runs++
	s.mu.Unlock()

	elapsed := time.Since(start)
	entry := s.log.WithFields(logrus.Fields{"job": j.name, "elapsed": elapsed})
	if err != nil {
		observability.RecordJobRun(j.name, "error", elapsed.Seconds())
		entry.WithError(err).Error("job failed")
		return
	}
	observability.RecordJobRun(j.name, "success", elapsed.Seconds())
	entry.Debug("job completed")
}

// Run polls the clock until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.WithField("poll_interval", s.pollInterval).Info("scheduler started")

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Status returns a snapshot of all jobs in registration order.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		st := JobStatus{
			Name:    j.name,
			NextRun: j.next,
			LastRun: j.lastRun,
			Runs:    j.runs,
			Running: j.running,
		}
		if j.lastErr != nil {
			st.LastErr = j.lastErr.Error()
		}
		out = append(out, st)
	}
	return out
}
