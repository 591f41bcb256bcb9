// Package queue runs webhook relay units on a bounded worker pool. Each
// inbound webhook becomes one job; the triggering request never waits on
// CRM calls.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrPoolStopped is returned when submitting to a stopped pool
	ErrPoolStopped = errors.New("worker pool stopped")

	// ErrQueueFull is returned when the job queue is at capacity
	ErrQueueFull = errors.New("job queue full")
)

const (
	// DefaultWorkerCount is the default number of worker goroutines
	DefaultWorkerCount = 8

	// DefaultQueueSize is the default job queue capacity
	DefaultQueueSize = 256
)

// Job is one unit of background work
type Job struct {
	// ID identifies the job in logs and results
	ID string
	// TenantID the job acts for
	TenantID string
	// Run does the work
	Run func(ctx context.Context) error
}

// Result is the completion signal for one job
type Result struct {
	JobID    string
	TenantID string
	Err      error
	Duration time.Duration
}

// PoolConfig holds worker pool configuration
type PoolConfig struct {
	// Number of worker goroutines
	WorkerCount int
	// Job queue capacity
	QueueSize int
}

// Pool is a bounded worker pool with an observable completion signal
type Pool struct {
	config  PoolConfig
	logger  ectologger.Logger
	jobsCh  chan Job
	results chan Result

	stopCh   chan struct{}
	stoppedC chan struct{}

	running bool
	mu      sync.RWMutex
}

// NewPool creates a worker pool
func NewPool(config PoolConfig, logger ectologger.Logger) *Pool {
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultWorkerCount
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}

	return &Pool{
		config:   config,
		logger:   logger,
		jobsCh:   make(chan Job, config.QueueSize),
		results:  make(chan Result, config.QueueSize),
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start starts the workers
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("worker pool already running")
	}
	p.running = true
	p.mu.Unlock()

	p.logger.WithContext(ctx).Infof("Starting worker pool: workers=%d queue=%d",
		p.config.WorkerCount, p.config.QueueSize)

	var wg sync.WaitGroup
	for i := 0; i < p.config.WorkerCount; i++ {
		wg.Add(1)
		go p.worker(ctx, &wg)
	}

	go func() {
		<-p.stopCh
		wg.Wait()
		close(p.stoppedC)
	}()

	return nil
}

// Stop stops the pool gracefully. Queued jobs that no worker picked up
// before the stop signal are dropped.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.stoppedC:
		p.logger.WithContext(ctx).Info("Worker pool stopped")
		return nil
	case <-ctx.Done():
		p.logger.WithContext(ctx).Warn("Worker pool shutdown timed out")
		return ctx.Err()
	}
}

// Submit enqueues a job. Returns ErrQueueFull when the queue is at capacity
// rather than blocking the caller.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return ErrPoolStopped
	}

	select {
	case p.jobsCh <- job:
		metrics.QueueDepth.Set(float64(len(p.jobsCh)))
		return nil
	default:
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"job_id":    job.ID,
			"tenant_id": job.TenantID,
		}).Error("job queue full, dropping job")
		return ErrQueueFull
	}
}

// Results exposes job completions for observers. The channel is buffered;
// when no one reads it, completions are dropped rather than blocking workers.
func (p *Pool) Results() <-chan Result {
	return p.results
}

func (p *Pool) worker(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case job := <-p.jobsCh:
			p.runJob(ctx, job)
		}
	}
}

func (p *Pool) runJob(ctx context.Context, job Job) {
	ctx, span := tracing.StartSpan(ctx, "Pool.runJob")
	defer span.End()

	metrics.QueueJobsInFlight.Inc()
	metrics.QueueDepth.Set(float64(len(p.jobsCh)))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.logger.WithContext(ctx).WithFields(map[string]any{
				"job_id": job.ID,
				"panic":  r,
			}).Error("job panicked")
			metrics.QueueJobsProcessed.WithLabelValues("panic").Inc()
			// panics still complete the job as far as observers are concerned
			select {
			case p.results <- Result{JobID: job.ID, TenantID: job.TenantID, Err: fmt.Errorf("job panicked: %v", r), Duration: time.Since(start)}:
			default:
			}
		}
		metrics.QueueJobsInFlight.Dec()
	}()

	err := job.Run(ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "failure"
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"job_id":    job.ID,
			"tenant_id": job.TenantID,
		}).Error("job failed")
	}
	metrics.QueueJobsProcessed.WithLabelValues(status).Inc()

	select {
	case p.results <- Result{JobID: job.ID, TenantID: job.TenantID, Err: err, Duration: duration}:
	default:
	}
}
