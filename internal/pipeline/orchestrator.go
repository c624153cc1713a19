package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned by Submit when the queue has no room.
var ErrQueueFull = errors.New("ingest queue is full")

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("ingest queue is stopped")

// Recorder receives the outcome of each asynchronous job.
type Recorder interface {
	RecordIngest(ctx context.Context, status string, elapsed time.Duration)
}

// OrchestratorConfig sizes the background ingestion queue.
type OrchestratorConfig struct {
	Workers   int
	QueueSize int
	// Retries is how many extra attempts a document gets after a
	// retryable upstream failure.
	Retries         int
	JobTTL          time.Duration
	CleanupInterval time.Duration
}

// Orchestrator queues documents and ingests them on worker goroutines.
type Orchestrator struct {
	jobs     *JobStore
	queue    chan *Job
	ingestor *Ingestor
	log      *slog.Logger
	cfg      OrchestratorConfig
	recorder Recorder

	// backoff is swapped out in tests.
	backoff func(attempt int) time.Duration

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator creates the queue. Call Start to launch workers.
func NewOrchestrator(cfg OrchestratorConfig, ing *Ingestor, log *slog.Logger) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		jobs:     NewJobStore(cfg.JobTTL),
		queue:    make(chan *Job, cfg.QueueSize),
		ingestor: ing,
		log:      log,
		cfg:      cfg,
		backoff:  Backoff,
	}
}

// SetRecorder installs a job outcome recorder. Call before Start.
func (o *Orchestrator) SetRecorder(r Recorder) {
	o.recorder = r
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.Workers {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					o.process(workerCtx, job)
				}
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop rejects further submissions, cancels in-flight work and waits for
// workers to exit. Jobs still queued are failed with ErrStopped.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()

	for job := range o.queue {
		job.AddError(ErrStopped.Error())
		job.Finish(nil, StatusFailed)
		o.log.Warn("job dropped at shutdown", "job_id", job.ID, "file_name", job.FileName)
	}
}

// Submit queues doc and returns its job. The job is registered even when
// the queue rejects it, so its failure stays visible.
func (o *Orchestrator) Submit(doc Document) (*Job, error) {
	job := NewJob(doc)
	o.jobs.Put(job)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		job.AddError(ErrStopped.Error())
		job.Finish(nil, StatusFailed)
		return job, ErrStopped
	}
	select {
	case o.queue <- job:
		o.log.Info("job queued", "job_id", job.ID, "file_name", job.FileName, "content_hash", job.ContentHash)
		return job, nil
	default:
		job.AddError(ErrQueueFull.Error())
		job.Finish(nil, StatusFailed)
		return job, fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.QueueSize)
	}
}

// GetJob returns a job by ID, or nil.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
