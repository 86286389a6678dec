// Package scheduler owns the periodic workers: risk-exit ticks, confirmation
// ticks, fill polling and the reconciliation cron all run as registered jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

// JobFunc is one unit of periodic work. Errors are recorded in the job's run
// statistics, never fatal to the scheduler.
type JobFunc func(ctx context.Context) error

// RunStats is the per-job admin read model.
type RunStats struct {
	Name           string        `json:"name"`
	Interval       time.Duration `json:"interval"`
	Enabled        bool          `json:"enabled"`
	Paused         bool          `json:"paused"`
	Runs           uint64        `json:"runs"`
	Failures       uint64        `json:"failures"`
	SuccessRatePct float64       `json:"success_rate_pct"`
	AvgDuration    time.Duration `json:"avg_duration"`
	LastError      string        `json:"last_error,omitempty"`
	LastRun        *time.Time    `json:"last_run,omitempty"`
	NextRun        *time.Time    `json:"next_run,omitempty"`
}

type job struct {
	name     string
	interval time.Duration
	fn       JobFunc

	enabled bool
	paused  bool

	runs          uint64
	failures      uint64
	totalDuration time.Duration
	lastError     string
	lastRun       time.Time

	cancel context.CancelFunc
}

// Registry holds the jobs and owns one ticker goroutine per enabled job.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
	now  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		jobs: map[string]*job{},
		now:  time.Now,
	}
}

// Register adds a job in the enabled state; its ticker starts on Start (or
// immediately when the registry is already running and Start was called).
func (r *Registry) Register(name string, interval time.Duration, fn JobFunc) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	r.jobs[name] = &job{
		name:     name,
		interval: interval,
		fn:       fn,
		enabled:  true,
	}
	return nil
}

// Start launches a ticker goroutine for every enabled job. ctx cancellation
// stops all of them; Wait blocks until they drain.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, j := range r.jobs {
		if j.enabled && j.cancel == nil {
			r.startLocked(ctx, j)
		}
	}
}

// Wait blocks until every ticker goroutine has exited.
func (r *Registry) Wait() {
	r.wg.Wait()
}

func (r *Registry) startLocked(ctx context.Context, j *job) {
	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		logger.WithFields(map[string]interface{}{
			"component": "Scheduler",
			"job":       j.name,
			"interval":  j.interval.String(),
		}).Info("job started")

		for {
			select {
			case <-jobCtx.Done():
				logger.WithFields(map[string]interface{}{
					"component": "Scheduler",
					"job":       j.name,
				}).Info("job stopped")
				return
			case <-ticker.C:
				r.runOnce(jobCtx, j.name)
			}
		}
	}()
}

// runOnce executes the job body outside the registry lock and records the
// outcome. Paused jobs keep ticking but skip the body.
func (r *Registry) runOnce(ctx context.Context, name string) {
	r.mu.Lock()
	j, ok := r.jobs[name]
	if !ok || j.paused || !j.enabled {
		r.mu.Unlock()
		return
	}
	fn := j.fn
	r.mu.Unlock()

	started := r.now()
	err := fn(ctx)
	elapsed := r.now().Sub(started)

	r.mu.Lock()
	defer r.mu.Unlock()

	j.runs++
	j.totalDuration += elapsed
	j.lastRun = started
	if err != nil {
		j.failures++
		j.lastError = err.Error()
		logger.WithFields(map[string]interface{}{
			"component": "Scheduler",
			"job":       name,
			"duration":  elapsed.String(),
		}).WithError(err).Error("job run failed")
		return
	}
	j.lastError = ""
}

// ExecuteNow runs the job once, immediately, regardless of pause state.
func (r *Registry) ExecuteNow(ctx context.Context, name string) error {
	r.mu.Lock()
	j, ok := r.jobs[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("job %s not registered", name)
	}
	fn := j.fn
	r.mu.Unlock()

	started := r.now()
	err := fn(ctx)
	elapsed := r.now().Sub(started)

	r.mu.Lock()
	defer r.mu.Unlock()

	j.runs++
	j.totalDuration += elapsed
	j.lastRun = started
	if err != nil {
		j.failures++
		j.lastError = err.Error()
		return err
	}
	j.lastError = ""
	return nil
}

// Enable starts the job's ticker if the registry is running under ctx.
func (r *Registry) Enable(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[name]
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	j.enabled = true
	if j.cancel == nil {
		r.startLocked(ctx, j)
	}
	return nil
}

// Disable cancels the job's ticker goroutine.
func (r *Registry) Disable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[name]
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	j.enabled = false
	if j.cancel != nil {
		j.cancel()
		j.cancel = nil
	}
	return nil
}

// Pause keeps the ticker alive but skips runs until Resume.
func (r *Registry) Pause(name string) error {
	return r.setPaused(name, true)
}

func (r *Registry) Resume(name string) error {
	return r.setPaused(name, false)
}

func (r *Registry) setPaused(name string, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[name]
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	j.paused = paused
	return nil
}

// Stats lists the run statistics for every registered job.
func (r *Registry) Stats() []RunStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make([]RunStats, 0, len(r.jobs))
	for _, j := range r.jobs {
		s := RunStats{
			Name:      j.name,
			Interval:  j.interval,
			Enabled:   j.enabled,
			Paused:    j.paused,
			Runs:      j.runs,
			Failures:  j.failures,
			LastError: j.lastError,
		}
		if j.runs > 0 {
			s.SuccessRatePct = float64(j.runs-j.failures) / float64(j.runs) * 100
			s.AvgDuration = j.totalDuration / time.Duration(j.runs)
			lastRun := j.lastRun
			s.LastRun = &lastRun
		}
		if j.enabled && j.cancel != nil && !j.lastRun.IsZero() {
			nextRun := j.lastRun.Add(j.interval)
			s.NextRun = &nextRun
		}
		stats = append(stats, s)
	}
	return stats
}
