package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forPelevin/clipforge/internal/types"
)

// Registry is the single mutable shared structure of the pipeline: the
// process-wide collection of job records. Every mutation is atomic with
// respect to concurrent readers; records for different jobs are independent.
// An optional Store gives records durability across restarts.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*Job
	order   []string
	cancels map[string]context.CancelFunc
	store   Store
}

// NewRegistry builds a registry backed by store (nil for in-memory only).
// Persisted jobs are restored in creation order; jobs that were mid-flight
// when the process died are marked failed, since their worker is gone.
func NewRegistry(store Store) (*Registry, error) {
	r := &Registry{
		byID:    make(map[string]*Job),
		order:   nil,
		cancels: make(map[string]context.CancelFunc),
		store:   store,
	}
	if store == nil {
		return r, nil
	}
	restored, err := store.LoadJobs()
	if err != nil {
		return nil, fmt.Errorf("restore jobs: %w", err)
	}
	for i := range restored {
		j := restored[i]
		if !j.Status.Terminal() {
			j.Status = StatusFailed
			j.Message = "interrupted by restart"
			j.CompletedAt = time.Now().UTC()
			_ = store.SaveJob(j)
		}
		r.byID[j.ID] = &j
		r.order = append(r.order, j.ID)
	}
	return r, nil
}

// Create validates caller input and adds a new pending job. Caller errors
// (ErrInvalidInput, ErrConfig) are returned synchronously and leave no
// record behind.
func (r *Registry) Create(sourceURL, sourceFile string, cfg Config) (Job, error) {
	if strings.TrimSpace(sourceURL) == "" && strings.TrimSpace(sourceFile) == "" {
		return Job{}, fmt.Errorf("%w: provide a source URL or upload a file", ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return Job{}, err
	}

	job := &Job{
		ID:         uuid.NewString(),
		Status:     StatusPending,
		Progress:   "Queued",
		SourceURL:  strings.TrimSpace(sourceURL),
		SourceFile: strings.TrimSpace(sourceFile),
		Config:     cfg,
		CreatedAt:  time.Now().UTC(),
	}

	r.mu.Lock()
	r.byID[job.ID] = job
	r.order = append(r.order, job.ID)
	r.mu.Unlock()

	r.persist(job)
	return snapshot(job), nil
}

// Get returns a stable snapshot of the job.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.byID[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return snapshot(job), nil
}

// List returns job summaries in creation order.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Summary, 0, len(r.order))
	for _, id := range r.order {
		job, ok := r.byID[id]
		if !ok {
			continue
		}
		out = append(out, Summary{
			ID:        job.ID,
			Status:    job.Status,
			Progress:  job.Progress,
			NumClips:  len(job.Clips),
			CreatedAt: job.CreatedAt,
		})
	}
	return out
}

// Delete removes the job record and cancels its worker if one is active.
// It reports whether a record existed; deleting twice is not an error.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	job, ok := r.byID[id]
	cancel := r.cancels[id]
	if ok {
		delete(r.byID, id)
		delete(r.cancels, id)
		for i, oid := range r.order {
			if oid == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ok && r.store != nil {
		_ = r.store.DeleteJob(job.ID)
	}
	return ok
}

// SetStatus advances the job to the given stage with a fresh progress
// message, enforcing the forward-only stage order.
func (r *Registry) SetStatus(id string, status Status, progress string) error {
	return r.update(id, func(job *Job) error {
		if !job.Status.CanAdvance(status) {
			return fmt.Errorf("%w: %s -> %s", ErrTransition, job.Status, status)
		}
		job.Status = status
		job.Progress = progress
		return nil
	})
}

// SetProgress updates only the progress message of a non-terminal job.
func (r *Registry) SetProgress(id, progress string) error {
	return r.update(id, func(job *Job) error {
		if job.Status.Terminal() {
			return fmt.Errorf("%w: job is %s", ErrTransition, job.Status)
		}
		job.Progress = progress
		return nil
	})
}

// Fail marks the job failed with a human-readable cause. Terminal.
func (r *Registry) Fail(id, message string) error {
	return r.update(id, func(job *Job) error {
		if !job.Status.CanAdvance(StatusFailed) {
			return fmt.Errorf("%w: %s -> %s", ErrTransition, job.Status, StatusFailed)
		}
		job.Status = StatusFailed
		job.Progress = "Failed"
		job.Message = message
		job.CompletedAt = time.Now().UTC()
		return nil
	})
}

// Complete marks the job completed with its produced clips. Terminal.
func (r *Registry) Complete(id string, clips []types.Clip) error {
	return r.update(id, func(job *Job) error {
		if !job.Status.CanAdvance(StatusCompleted) {
			return fmt.Errorf("%w: %s -> %s", ErrTransition, job.Status, StatusCompleted)
		}
		job.Status = StatusCompleted
		job.Progress = "Done!"
		job.Clips = append([]types.Clip(nil), clips...)
		job.CompletedAt = time.Now().UTC()
		return nil
	})
}

// RecordClipFailures appends per-clip failure outcomes to a live job, so a
// skipped clip stays visible on the record next to the clips that rendered.
func (r *Registry) RecordClipFailures(id string, failures []types.ClipFailure) error {
	if len(failures) == 0 {
		return nil
	}
	return r.update(id, func(job *Job) error {
		if job.Status.Terminal() {
			return fmt.Errorf("%w: job is %s", ErrTransition, job.Status)
		}
		job.ClipFailures = append(job.ClipFailures, failures...)
		return nil
	})
}

// RegisterCancel installs the cancel func invoked when the job is deleted
// mid-processing.
func (r *Registry) RegisterCancel(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	_, ok := r.byID[id]
	if ok {
		r.cancels[id] = cancel
	}
	r.mu.Unlock()
	if !ok {
		// Deleted before the worker picked it up; stop it immediately.
		cancel()
	}
}

// ClearCancel removes the registered cancel func once processing ends.
func (r *Registry) ClearCancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, id)
}

func (r *Registry) update(id string, fn func(job *Job) error) error {
	r.mu.Lock()
	job, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if err := fn(job); err != nil {
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	r.persist(job)
	return nil
}

func (r *Registry) persist(job *Job) {
	if r.store == nil {
		return
	}
	r.mu.RLock()
	snap := snapshot(job)
	r.mu.RUnlock()
	_ = r.store.SaveJob(snap)
}

func snapshot(job *Job) Job {
	out := *job
	out.Clips = append([]types.Clip(nil), job.Clips...)
	out.ClipFailures = append([]types.ClipFailure(nil), job.ClipFailures...)
	out.Config.Keywords = append([]string(nil), job.Config.Keywords...)
	return out
}
