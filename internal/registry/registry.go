// Package registry is the in-memory source of truth for job records.
//
// Every read returns a deep copy and every write goes through Update, which
// runs under the registry lock, so a poller never sees a half-applied stage
// transition. The registry also enforces the record invariants: progress
// never decreases and terminal records are immutable.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/storyscroll/api/internal/model"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
	ErrJobFinal    = errors.New("job already finished")
)

type entry struct {
	job  model.Job
	task *Task
}

// Registry is a concurrency-safe store of job records.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*entry
}

func New() *Registry {
	return &Registry{jobs: make(map[string]*entry)}
}

// Create inserts a new record together with its task handle.
func (r *Registry) Create(job model.Job, task *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; ok {
		return ErrJobExists
	}
	r.jobs[job.ID] = &entry{job: job.Clone(), task: task}
	return nil
}

// Get returns a snapshot of the record.
func (r *Registry) Get(id string) (model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.jobs[id]
	if !ok {
		return model.Job{}, ErrJobNotFound
	}
	return e.job.Clone(), nil
}

// Update applies fn to the record atomically and returns the new snapshot.
// A decrease in progress is discarded and terminal records are rejected
// with ErrJobFinal.
func (r *Registry) Update(id string, fn func(job *model.Job)) (model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return model.Job{}, ErrJobNotFound
	}
	if e.job.Status.IsTerminal() {
		return e.job.Clone(), ErrJobFinal
	}

	next := e.job.Clone()
	fn(&next)
	next.ID = e.job.ID
	if next.Progress < e.job.Progress {
		next.Progress = e.job.Progress
	}
	if next.Progress > 100 {
		next.Progress = 100
	}
	e.job = next
	return next.Clone(), nil
}

// Delete removes the record and returns its last snapshot and task handle.
func (r *Registry) Delete(id string) (model.Job, *Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return model.Job{}, nil, ErrJobNotFound
	}
	delete(r.jobs, id)
	return e.job, e.task, nil
}

// PurgeFinished removes terminal records completed before cutoff and
// returns their snapshots.
func (r *Registry) PurgeFinished(cutoff time.Time) []model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged []model.Job
	for id, e := range r.jobs {
		if !e.job.Status.IsTerminal() || e.job.CompletedAt == nil {
			continue
		}
		if e.job.CompletedAt.Before(cutoff) {
			purged = append(purged, e.job)
			delete(r.jobs, id)
		}
	}
	return purged
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
