package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/domain"
	"github.com/jafarshop/shopsync/pkg/errors"
)

// DefaultMaxAttempts is used when Options.MaxAttempts is not set.
const DefaultMaxAttempts = 3

// Handler processes one job. The returned value becomes the job's result.
type Handler func(ctx context.Context, job *Job) (any, error)

// Options tune a single enqueued job
type Options struct {
	Priority    int // higher runs first
	MaxAttempts int
	Metadata    map[string]any
}

type item struct {
	id          string
	jobType     domain.JobType
	data        any
	priority    int
	attempts    int
	maxAttempts int
}

// Queue is a priority queue drained by a single worker loop. Every state
// change is mirrored on the Tracker, so pollers see retries and failures.
type Queue struct {
	mu         sync.Mutex
	items      []*item
	workers    map[domain.JobType]Handler
	processing bool

	tracker     *Tracker
	logger      *zap.Logger
	maxAttempts int

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewQueue(tracker *Tracker, logger *zap.Logger, defaultMaxAttempts int) *Queue {
	if defaultMaxAttempts < 1 {
		defaultMaxAttempts = DefaultMaxAttempts
	}
	return &Queue{
		workers:     make(map[domain.JobType]Handler),
		tracker:     tracker,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		wake:        make(chan struct{}, 1),
	}
}

// RegisterWorker sets the handler for a job type. A later call for the same type wins.
func (q *Queue) RegisterWorker(jobType domain.JobType, h Handler) {
	q.mu.Lock()
	q.workers[jobType] = h
	q.mu.Unlock()
}

// Add creates a pending job on the tracker, enqueues it and wakes the worker loop.
func (q *Queue) Add(jobType domain.JobType, shopDomain string, data any, opts Options) (string, error) {
	if !jobType.IsValid() {
		return "", &errors.ErrValidation{Message: fmt.Sprintf("unknown job type: %s", jobType)}
	}
	if shopDomain == "" {
		return "", &errors.ErrValidation{Message: "shop domain is required"}
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = q.maxAttempts
	}

	id := NewJobID(string(jobType), q.tracker.now())
	q.tracker.CreateJob(id, jobType, shopDomain, opts.Metadata)
	q.tracker.setQueueFields(id, opts.Priority, 0, maxAttempts)

	q.mu.Lock()
	q.items = append(q.items, &item{
		id:          id,
		jobType:     jobType,
		data:        data,
		priority:    opts.Priority,
		maxAttempts: maxAttempts,
	})
	q.sortLocked()
	q.mu.Unlock()

	q.signal()
	return id, nil
}

// Len is the number of jobs waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// ProcessNext runs the highest priority job, if any, and reports whether it did.
// Only one call does work at a time; concurrent callers return false.
func (q *Queue) ProcessNext(ctx context.Context) bool {
	q.mu.Lock()
	if q.processing || len(q.items) == 0 {
		q.mu.Unlock()
		return false
	}
	q.processing = true
	it := q.items[0]
	q.items = q.items[1:]
	handler, ok := q.workers[it.jobType]
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.processing = false
		more := len(q.items) > 0
		q.mu.Unlock()
		if more {
			q.signal()
		}
	}()

	if !ok {
		msg := fmt.Sprintf("no worker registered for job type: %s", it.jobType)
		q.logger.Error("Dropping job without worker", zap.String("job_id", it.id), zap.String("type", string(it.jobType)))
		q.tracker.FailJob(it.id, msg)
		return true
	}

	it.attempts++
	q.tracker.setQueueFields(it.id, it.priority, it.attempts, it.maxAttempts)
	job := q.tracker.StartJob(it.id)
	if job == nil {
		// tracker no longer knows the job (cleaned up or never created)
		return true
	}
	job.Data = it.data

	result, err := q.run(ctx, handler, job)
	if err != nil {
		if it.attempts < it.maxAttempts {
			q.logger.Warn("Job attempt failed, requeueing",
				zap.String("job_id", it.id),
				zap.Int("attempt", it.attempts),
				zap.Int("max_attempts", it.maxAttempts),
				zap.Error(err),
			)
			q.tracker.Requeue(it.id)
			q.mu.Lock()
			q.items = append(q.items, it)
			q.sortLocked()
			q.mu.Unlock()
			return true
		}

		q.logger.Error("Job failed permanently",
			zap.String("job_id", it.id),
			zap.Int("attempts", it.attempts),
			zap.Error(err),
		)
		q.tracker.FailJob(it.id, err.Error())
		return true
	}

	q.tracker.CompleteJob(it.id, result)
	return true
}

func (q *Queue) run(ctx context.Context, h Handler, job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Panic recovered in job worker", zap.String("job_id", job.ID), zap.Any("error", r))
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return h(ctx, job)
}

// Start launches the worker loop. It runs until ctx is done or Stop is called.
func (q *Queue) Start(ctx context.Context) {
	q.once.Do(func() {
		ctx, q.cancel = context.WithCancel(ctx)
		q.wg.Add(1)
		go q.loop(ctx)
		q.logger.Info("Job queue started")
	})
}

// Stop cancels the loop and waits for the in-flight job to return.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
	q.logger.Info("Job queue stopped", zap.Int("pending", q.Len()))
}

func (q *Queue) loop(ctx context.Context) {
	defer q.wg.Done()
	for {
		for q.ProcessNext(ctx) {
			if ctx.Err() != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// sortLocked orders by descending priority, keeping insertion order among equals.
func (q *Queue) sortLocked() {
	sort.SliceStable(q.items, func(i, j int) bool {
		return q.items[i].priority > q.items[j].priority
	})
}
