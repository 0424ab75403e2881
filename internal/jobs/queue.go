package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultQueueCapacity = 64
	defaultWorkerCount   = 1
)

// WorkItem carries a copy of the job data plus a cleanup func for any
// uploaded source file.
type WorkItem struct {
	Job     Job
	Cleanup func() error
}

// Processor drives one job through the pipeline stages.
type Processor interface {
	Process(ctx context.Context, item WorkItem) error
}

// Queue is an in-memory bounded queue of WorkItems consumed by a worker
// pool. One worker processes one job end to end; parallelism exists only
// across jobs.
type Queue struct {
	log        *slog.Logger
	ch         chan WorkItem
	workers    int
	wg         sync.WaitGroup
	cancelOnce sync.Once
	cancel     context.CancelFunc
	started    bool
	mu         sync.Mutex
}

func NewQueue(logger *slog.Logger, capacity, workers int) *Queue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	return &Queue{
		log:     logger,
		ch:      make(chan WorkItem, capacity),
		workers: workers,
	}
}

// Start launches the worker goroutines.
func (q *Queue) Start(ctx context.Context, p Processor) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return errors.New("queue already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, p, i)
	}
	q.started = true
	return nil
}

// worker drains the channel until it is closed; the context only aborts the
// job currently being processed, so buffered work survives a graceful stop.
func (q *Queue) worker(ctx context.Context, p Processor, idx int) {
	defer q.wg.Done()
	log := q.log.With("worker", idx)
	for item := range q.ch {
		jobLog := log.With("job_id", item.Job.ID)
		jobLog.Info("processing job")
		start := time.Now()
		if err := p.Process(ctx, item); err != nil {
			jobLog.Error("job processing failed", "err", err, "duration", time.Since(start))
		} else {
			jobLog.Info("job processed", "duration", time.Since(start))
		}
		// Cleanup runs regardless of outcome.
		if item.Cleanup != nil {
			if err := item.Cleanup(); err != nil {
				jobLog.Warn("cleanup failed", "err", err)
			}
		}
	}
	log.Debug("queue closed, worker exiting")
}

// Enqueue adds a WorkItem without blocking; a full queue is an error the
// caller surfaces as back-pressure.
func (q *Queue) Enqueue(item WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		return errors.New("queue not started")
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return errors.New("queue is full")
	}
}

// Shutdown stops accepting work and lets workers drain what is queued. Past
// the deadline the worker context is cancelled to abort in-flight jobs.
func (q *Queue) Shutdown(deadline time.Duration) {
	q.cancelOnce.Do(func() {
		// Flip started under the same lock Enqueue takes so no send can race
		// the close below.
		q.mu.Lock()
		q.started = false
		close(q.ch)
		q.mu.Unlock()

		done := make(chan struct{})
		go func() {
			defer close(done)
			q.wg.Wait()
		}()

		if deadline <= 0 {
			<-done
			return
		}

		timer := time.NewTimer(deadline)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			q.log.Warn("queue shutdown deadline reached, aborting in-flight jobs")
			if q.cancel != nil {
				q.cancel()
			}
			<-done
		}
	})
}
