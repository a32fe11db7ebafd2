package server

import (
	"context"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/httputil"
	"github.com/matzehuels/strata/pkg/observability"
	"github.com/matzehuels/strata/pkg/pipeline"
)

// Worker defaults.
const (
	DefaultConcurrency = 2
	DefaultPollTimeout = 5 * time.Second
	DefaultRetryDelay  = time.Second
)

// Worker takes jobs off a queue and runs them through the pipeline.
type Worker struct {
	Queue  Queue
	Runner *pipeline.Runner
	Logger *log.Logger

	// Callbacks posts finished jobs to their callback URL. Nil uses a
	// default client.
	Callbacks *httputil.Client

	Concurrency int
	PollTimeout time.Duration

	// RetryDelay is the first wait after a failed dequeue. It doubles up
	// to [httputil.MaxBackoff] while the queue keeps failing.
	RetryDelay time.Duration
}

// NewWorker creates a worker with default concurrency.
func NewWorker(q Queue, runner *pipeline.Runner, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		Queue:       q,
		Runner:      runner,
		Logger:      logger,
		Callbacks:   httputil.NewClient(),
		Concurrency: DefaultConcurrency,
		PollTimeout: DefaultPollTimeout,
		RetryDelay:  DefaultRetryDelay,
	}
}

// Run processes jobs until ctx is cancelled and then returns nil. Queue
// failures are logged and retried with backoff.
func (w *Worker) Run(ctx context.Context) error {
	n := w.Concurrency
	if n <= 0 {
		n = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error { return w.loop(ctx, i) })
	}
	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func (w *Worker) loop(ctx context.Context, slot int) error {
	logger := w.Logger.With("worker", slot)
	delay := w.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	for {
		var job *Job
		err := httputil.Retry(ctx, math.MaxInt, delay, func() error {
			j, err := w.Queue.Dequeue(ctx, w.PollTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn("dequeue failed", "err", err)
				return httputil.Retryable(err)
			}
			job = j
			return nil
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logger.Error("dequeue gave up", "err", err)
			continue
		}
		if job == nil {
			continue
		}
		w.Process(ctx, job)
	}
}

// Process runs one job and records its outcome. Job failures are stored on
// the job, never returned.
func (w *Worker) Process(ctx context.Context, job *Job) {
	logger := w.Logger.With("job", job.ID, "kind", job.Kind)
	hooks := observability.Job()
	start := time.Now()
	hooks.OnJobStart(ctx, string(job.Kind), start.Sub(job.CreatedAt))

	job.Status = StatusRunning
	job.UpdatedAt = time.Now().UTC()
	if err := w.Queue.Update(ctx, job); err != nil {
		logger.Warn("mark running failed", "err", err)
	}

	result, err := w.runSafe(ctx, job)
	job.UpdatedAt = time.Now().UTC()
	hooks.OnJobComplete(ctx, string(job.Kind), time.Since(start), err)
	if err != nil {
		job.Status = StatusFailed
		job.Error = errors.UserMessage(err)
		job.Code = string(errors.GetCode(err))
		logger.Error("job failed", "err", err, "duration", time.Since(start))
	} else {
		job.Status = StatusDone
		job.Result = result
		logger.Info("job done", "key", result.Key, "trace", result.TraceKey, "duration", time.Since(start))
	}
	if err := w.Queue.Update(ctx, job); err != nil {
		logger.Error("store job failed", "err", err)
	}

	if cb := job.Request.Callback; cb != "" {
		client := w.Callbacks
		if client == nil {
			client = httputil.NewClient()
		}
		if err := client.PostJSON(ctx, cb, job); err != nil {
			logger.Warn("callback failed", "url", cb, "err", err)
		}
	}
}

// runSafe turns a panic in run into an internal error so the job is still
// marked failed.
func (w *Worker) runSafe(ctx context.Context, job *Job) (res *JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, errors.New(errors.ErrCodeInternal, "job panicked: %v", r)
		}
	}()
	return w.run(ctx, job)
}

func (w *Worker) run(ctx context.Context, job *Job) (*JobResult, error) {
	opts, err := job.Request.options(job.Kind)
	if err != nil {
		return nil, err
	}
	opts.Logger = w.Logger.With("job", job.ID)

	switch job.Kind {
	case KindArt:
		res, err := w.Runner.Execute(ctx, opts)
		if err != nil {
			return nil, err
		}
		out := &JobResult{
			Key:         res.Key,
			TraceKey:    res.TraceKey,
			TraceHash:   res.TraceHash,
			ContentType: res.ContentType,
			CacheHit:    res.CacheInfo.Hit,
		}
		if res.Plan != nil {
			out.Assets = res.Plan.Assets
		}
		return out, nil
	case KindBlueprint:
		res, err := w.Runner.Blueprint(ctx, opts)
		if err != nil {
			return nil, err
		}
		return &JobResult{
			Key:         res.Key,
			TraceHash:   res.TraceHash,
			ContentType: res.ContentType,
			Assets:      opts.Blueprint.Assets(),
			CacheHit:    res.CacheInfo.Hit,
		}, nil
	case KindPeek:
		plan, key, err := w.Runner.Peek(ctx, opts)
		if err != nil {
			return nil, err
		}
		return &JobResult{
			Key:       key,
			TraceKey:  plan.Trace.Key(),
			TraceHash: plan.Trace.Hash(),
			Assets:    plan.Assets,
		}, nil
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown job kind %q", job.Kind)
	}
}
