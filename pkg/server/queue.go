package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matzehuels/strata/pkg/errors"
)

// =============================================================================
// Jobs
// =============================================================================

// Kind selects what a worker does with a job.
type Kind string

const (
	// KindArt renders and caches the artifact.
	KindArt Kind = "art"

	// KindPeek resolves the layout and records its trace and assets
	// without rendering.
	KindPeek Kind = "peek"

	// KindBlueprint composites a flat blueprint edition and caches it.
	KindBlueprint Kind = "blueprint"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Job is a queued render request and its outcome.
type Job struct {
	ID      string        `json:"id"`
	Kind    Kind          `json:"kind"`
	Request RenderRequest `json:"request"`
	Status  Status        `json:"status"`

	Result *JobResult `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"`
	Code   string     `json:"code,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobResult is what a finished job produced. The artifact itself stays in
// the render cache under Key.
type JobResult struct {
	Key         string   `json:"key"`
	TraceKey    string   `json:"trace_key"`
	TraceHash   string   `json:"trace_hash"`
	ContentType string   `json:"content_type,omitempty"`
	Assets      []string `json:"assets,omitempty"`
	CacheHit    bool     `json:"cache_hit,omitempty"`
}

func (k Kind) valid() bool {
	return k == KindArt || k == KindPeek || k == KindBlueprint
}

// =============================================================================
// Queue
// =============================================================================

// Queue hands jobs from the API to workers and keeps their status.
type Queue interface {
	// Enqueue stores job and schedules it.
	Enqueue(ctx context.Context, job *Job) error

	// Dequeue blocks up to timeout for the next job. It returns nil, nil
	// when the timeout passes without a job.
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)

	// Get returns the stored job. Unknown ids are NotFound.
	Get(ctx context.Context, id string) (*Job, error)

	// Update stores job's new state.
	Update(ctx context.Context, job *Job) error
}

// DefaultJobTTL is how long job records are kept in Redis.
const DefaultJobTTL = 24 * time.Hour

// RedisClient is the subset of go-redis used by [RedisQueue].
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	Close() error
}

// RedisQueue is a Redis list of job ids. Job records live under
// "<name>:job:<id>"; the list is "<name>".
type RedisQueue struct {
	client RedisClient
	name   string
	ttl    time.Duration
}

// NewRedisQueue connects to the Redis server at url.
func NewRedisQueue(url, name string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse redis url")
	}
	return NewRedisQueueWithClient(redis.NewClient(opts), name), nil
}

// NewRedisQueueWithClient wraps an existing client.
func NewRedisQueueWithClient(client RedisClient, name string) *RedisQueue {
	return &RedisQueue{client: client, name: name, ttl: DefaultJobTTL}
}

func (q *RedisQueue) jobKey(id string) string {
	return q.name + ":job:" + id
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	if err := q.Update(ctx, job); err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.name, job.ID).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "enqueue job %s", job.ID)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.client.BRPop(ctx, timeout, q.name).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "dequeue")
	}
	// BRPOP replies with [list, value].
	if len(res) != 2 {
		return nil, errors.New(errors.ErrCodeInternal, "unexpected BRPOP reply %v", res)
	}
	return q.Get(ctx, res[1])
}

func (q *RedisQueue) Get(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, q.jobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.New(errors.ErrCodeNotFound, "job %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "get job %s", id)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "decode job %s", id)
	}
	return &job, nil
}

func (q *RedisQueue) Update(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode job %s", job.ID)
	}
	if err := q.client.Set(ctx, q.jobKey(job.ID), data, q.ttl).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "store job %s", job.ID)
	}
	return nil
}

// Close closes the Redis client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// MemoryQueue is an in-process queue for a single server that runs its own
// workers.
type MemoryQueue struct {
	mu      sync.Mutex
	jobs    map[string]Job
	pending chan string
}

// NewMemoryQueue returns a queue holding at most size pending jobs.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{jobs: make(map[string]Job), pending: make(chan string, size)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	if err := q.Update(ctx, job); err != nil {
		return err
	}
	select {
	case q.pending <- job.ID:
		return nil
	default:
		return errors.New(errors.ErrCodeInternal, "job queue is full")
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case id := <-q.pending:
		return q.Get(ctx, id)
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Get(_ context.Context, id string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "job %s not found", id)
	}
	return &job, nil
}

func (q *MemoryQueue) Update(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.ID] = *job
	return nil
}
