// Package queue runs calls to external services through one process-wide
// concurrency budget, with per-attempt timeouts, exponential-backoff retries
// and a circuit breaker per logical endpoint.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookgo/clock"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"
)

// Defaults used when a Config field is left zero.
const (
	DefaultConcurrency      = 5
	DefaultMaxRetries       = 3
	DefaultTimeout          = 15 * time.Second
	DefaultBackoffBase      = time.Second
	DefaultBackoffMax       = 30 * time.Second
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 60 * time.Second
)

type Config struct {
	Concurrency      int
	MaxRetries       int
	Timeout          time.Duration
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration

	// Clock stamps breaker failures. Defaults to the wall clock.
	Clock clock.Clock
	// OnRetry, if set, is called before each backoff sleep.
	OnRetry func(endpoint string, attempt int, delay time.Duration, err error)
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = c.BackoffBase
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = DefaultBreakerThreshold
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = DefaultBreakerCooldown
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
}

// Task is one call to an external service. It should honor ctx; if it does
// not, the queue still abandons it when the attempt timeout fires, but the
// task keeps its concurrency slot until it returns.
type Task func(ctx context.Context) error

// Stats is a point-in-time view of queue occupancy.
type Stats struct {
	Size     int  `json:"size"`
	Pending  int  `json:"pending"`
	IsPaused bool `json:"is_paused"`
}

type Queue struct {
	cfg    Config
	logger zerolog.Logger
	sem    *semaphore.Weighted

	waiting atomic.Int64
	running atomic.Int64

	pauseMu sync.Mutex
	paused  bool
	resumed chan struct{}

	epMu      sync.RWMutex
	endpoints map[string]*endpoint
}

func New(cfg Config, logger zerolog.Logger) *Queue {
	cfg.applyDefaults()
	resumed := make(chan struct{})
	close(resumed)
	return &Queue{
		cfg:       cfg,
		logger:    logger.With().Str("component", "request-queue").Logger(),
		sem:       semaphore.NewWeighted(int64(cfg.Concurrency)),
		resumed:   resumed,
		endpoints: make(map[string]*endpoint),
	}
}

// Do runs task under the breaker for endpointKey. An open circuit fails fast
// with *CircuitOpenError. Client errors return after one attempt; retryable
// errors are retried with backoff and, once retries run out, count as a single
// failure against the endpoint.
func (q *Queue) Do(ctx context.Context, endpointKey string, task Task, opts ...Option) error {
	o := options{maxRetries: q.cfg.MaxRetries, timeout: q.cfg.Timeout}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	defer func() { taskDuration.WithLabelValues(endpointKey).Observe(time.Since(start).Seconds()) }()

	ep := q.endpoint(endpointKey)
	cb := ep.breaker()
	if cb.State() == gobreaker.StateOpen {
		tasksTotal.WithLabelValues(endpointKey, resultCircuitOpen).Inc()
		return &CircuitOpenError{Endpoint: endpointKey, Err: gobreaker.ErrOpenState}
	}

	_, err := cb.Execute(func() (interface{}, error) {
		return nil, q.runWithRetry(ctx, endpointKey, task, o)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		tasksTotal.WithLabelValues(endpointKey, resultCircuitOpen).Inc()
		return &CircuitOpenError{Endpoint: endpointKey, Err: err}
	}

	class := Classify(err)
	ep.record(class == ClassRetryable, q.cfg.Clock.Now())

	switch class {
	case ClassNone:
		tasksTotal.WithLabelValues(endpointKey, resultSuccess).Inc()
	case ClassClient:
		tasksTotal.WithLabelValues(endpointKey, resultClientError).Inc()
	case ClassCanceled:
		tasksTotal.WithLabelValues(endpointKey, resultCanceled).Inc()
	default:
		tasksTotal.WithLabelValues(endpointKey, resultFailure).Inc()
		q.logger.Warn().Err(err).Str("endpoint", endpointKey).Msg("task failed after retries")
	}
	return err
}

// Execute is Do for tasks that produce a value. Results from attempts the
// queue already abandoned are discarded.
func Execute[T any](ctx context.Context, q *Queue, endpointKey string, task func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var (
		mu     sync.Mutex
		result T
		done   bool
	)
	err := q.Do(ctx, endpointKey, func(ctx context.Context) error {
		v, err := task(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if done || ctx.Err() != nil {
			return ctx.Err()
		}
		result = v
		return nil
	}, opts...)

	mu.Lock()
	defer mu.Unlock()
	done = true
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func (q *Queue) runWithRetry(ctx context.Context, endpointKey string, task Task, o options) error {
	var (
		attempt int
		lastErr error
	)

	next := retry.WithMaxRetries(uint64(o.maxRetries),
		retry.WithCappedDuration(q.cfg.BackoffMax, retry.NewExponential(q.cfg.BackoffBase)))
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		delay, stop := next.Next()
		if stop {
			return 0, true
		}
		retriesTotal.WithLabelValues(endpointKey).Inc()
		q.logger.Debug().Err(lastErr).Str("endpoint", endpointKey).
			Int("attempt", attempt).Dur("delay", delay).Msg("retrying task")
		if q.cfg.OnRetry != nil {
			q.cfg.OnRetry(endpointKey, attempt, delay, lastErr)
		}
		return delay, false
	})

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := q.attempt(ctx, endpointKey, task, o.timeout, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if Classify(err) != ClassRetryable {
			return err
		}
		return retry.RetryableError(err)
	})
}

// attempt runs task once inside a concurrency slot and the per-attempt timeout.
func (q *Queue) attempt(ctx context.Context, endpointKey string, task Task, timeout time.Duration, n int) error {
	release, err := q.acquire(ctx)
	if err != nil {
		return err
	}

	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	// The slot is held until task returns, even after the attempt is abandoned.
	done := make(chan error, 1)
	go func() {
		err := task(attemptCtx)
		release()
		done <- err
	}()

	timedOut := func() error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TimeoutError{Endpoint: endpointKey, Timeout: timeout, Attempt: n}
	}

	select {
	case err := <-done:
		if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return timedOut()
		}
		return err
	case <-attemptCtx.Done():
		return timedOut()
	}
}

// acquire waits until the queue is running and a slot is free.
func (q *Queue) acquire(ctx context.Context) (func(), error) {
	q.waiting.Add(1)
	waitingTasks.Inc()
	defer func() {
		q.waiting.Add(-1)
		waitingTasks.Dec()
	}()

	for {
		if err := q.waitResumed(ctx); err != nil {
			return nil, err
		}
		if err := q.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		if !q.IsPaused() {
			break
		}
		q.sem.Release(1)
	}

	q.running.Add(1)
	runningTasks.Inc()
	return func() {
		q.running.Add(-1)
		runningTasks.Dec()
		q.sem.Release(1)
	}, nil
}

func (q *Queue) waitResumed(ctx context.Context) error {
	q.pauseMu.Lock()
	ch := q.resumed
	q.pauseMu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause stops the queue from starting new attempts. Running attempts finish.
func (q *Queue) Pause() {
	q.pauseMu.Lock()
	defer q.pauseMu.Unlock()
	if q.paused {
		return
	}
	q.paused = true
	q.resumed = make(chan struct{})
	q.logger.Info().Msg("request queue paused")
}

// Resume lets waiting attempts start again.
func (q *Queue) Resume() {
	q.pauseMu.Lock()
	defer q.pauseMu.Unlock()
	if !q.paused {
		return
	}
	q.paused = false
	close(q.resumed)
	q.logger.Info().Msg("request queue resumed")
}

func (q *Queue) IsPaused() bool {
	q.pauseMu.Lock()
	defer q.pauseMu.Unlock()
	return q.paused
}

func (q *Queue) Stats() Stats {
	return Stats{
		Size:     int(q.waiting.Load()),
		Pending:  int(q.running.Load()),
		IsPaused: q.IsPaused(),
	}
}
