package jobs

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the in-memory job store shared between workers and pollers.
// One mutex guards the whole map; operations are O(1) and contention is low.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job

	retention time.Duration
	logger    *slog.Logger

	stop chan struct{}
	wg   sync.WaitGroup

	// OnTerminal, if set before any worker runs, is called with a snapshot
	// each time a job first reaches a terminal status.
	OnTerminal func(Job)
}

// NewRegistry creates a registry. Terminal jobs older than retention are
// evicted by the sweeper; retention <= 0 keeps them for process lifetime.
func NewRegistry(retention time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		jobs:      make(map[string]*Job),
		retention: retention,
		logger:    logger.With("component", "registry"),
		stop:      make(chan struct{}),
	}
}

// Create registers a new pending job and returns its snapshot.
func (r *Registry) Create(t Type, description string) *Job {
	job := &Job{
		ID:          uuid.New().String(),
		Type:        t,
		Status:      StatusPending,
		Description: description,
		Created:     time.Now(),
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	return job.clone()
}

// Update applies fn to the job under the registry lock. Fields fn does not
// touch keep their previous values. Unknown ids are ignored.
func (r *Registry) Update(id string, fn func(*Job)) {
	r.mu.Lock()

	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	wasTerminal := job.Status.Terminal()
	fn(job)

	var finished *Job
	if job.Status.Terminal() && !wasTerminal {
		now := time.Now()
		job.Finished = &now
		if r.OnTerminal != nil {
			finished = job.clone()
		}
	}
	r.mu.Unlock()

	if finished != nil {
		r.OnTerminal(*finished)
	}
}

// Get returns a snapshot of the job, or false if it is unknown.
func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

// List returns snapshots of all jobs, most recent first.
func (r *Registry) List() []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Created.After(out[j].Created)
	})
	return out
}

// Counts returns aggregate totals by status.
func (r *Registry) Counts() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := Counts{Total: len(r.jobs)}
	for _, job := range r.jobs {
		switch job.Status {
		case StatusPending:
			c.Pending++
		case StatusRunning:
			c.Running++
		case StatusCompleted:
			c.Completed++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// StartSweeper launches the background eviction loop.
func (r *Registry) StartSweeper(interval time.Duration) {
	if r.retention <= 0 || interval <= 0 {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				if n := r.sweep(time.Now()); n > 0 {
					r.logger.Debug("evicted terminal jobs", "count", n)
				}
			}
		}
	}()
}

// Stop terminates the sweeper.
func (r *Registry) Stop() {
	close(r.stop)
	r.wg.Wait()
}

// sweep removes terminal jobs whose finish time is older than retention.
func (r *Registry) sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, job := range r.jobs {
		if !job.Status.Terminal() || job.Finished == nil {
			continue
		}
		if now.Sub(*job.Finished) > r.retention {
			delete(r.jobs, id)
			evicted++
		}
	}
	return evicted
}
