// Package observability provides hooks for metrics, tracing, and logging.
//
// Libraries emit events through the registered hooks; the binary decides
// where they go. Nothing is recorded unless main registers an
// implementation, so the render engine carries no metrics dependency.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetPipelineHooks(observability.NewLogHooks(logger))
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Pipeline().OnRenderStart(ctx, slug, layers)
//	// ... composite ...
//	observability.Pipeline().OnRenderComplete(ctx, slug, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Pipeline Hooks
// =============================================================================

// PipelineHooks receives events from the render pipeline.
type PipelineHooks interface {
	// Peek events. traceLen is the number of measures resolved.
	OnPeekStart(ctx context.Context, slug string)
	OnPeekComplete(ctx context.Context, slug string, traceLen int, duration time.Duration, err error)

	// Render events. layers is the number of top-level layers in the layout.
	OnRenderStart(ctx context.Context, slug string, layers int)
	OnRenderComplete(ctx context.Context, slug string, duration time.Duration, err error)

	// OnEncode records an encoded artifact.
	OnEncode(ctx context.Context, format string, size int)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from outgoing HTTP requests (asset gateway,
// price feed).
type HTTPHooks interface {
	OnRequest(ctx context.Context, method, host, path string)
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records a network failure or timeout.
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// Job Hooks
// =============================================================================

// JobHooks receives events from the render job queue. kind is the job kind
// ("art", "peek").
type JobHooks interface {
	OnJobEnqueued(ctx context.Context, kind string)

	// OnJobStart records a job taken off the queue after waiting for wait.
	OnJobStart(ctx context.Context, kind string, wait time.Duration)
	OnJobComplete(ctx context.Context, kind string, duration time.Duration, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopPipelineHooks is a no-op implementation of PipelineHooks.
type NoopPipelineHooks struct{}

func (NoopPipelineHooks) OnPeekStart(context.Context, string)                               {}
func (NoopPipelineHooks) OnPeekComplete(context.Context, string, int, time.Duration, error) {}
func (NoopPipelineHooks) OnRenderStart(context.Context, string, int)                        {}
func (NoopPipelineHooks) OnRenderComplete(context.Context, string, time.Duration, error)    {}
func (NoopPipelineHooks) OnEncode(context.Context, string, int)                             {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// NoopJobHooks is a no-op implementation of JobHooks.
type NoopJobHooks struct{}

func (NoopJobHooks) OnJobEnqueued(context.Context, string)                       {}
func (NoopJobHooks) OnJobStart(context.Context, string, time.Duration)           {}
func (NoopJobHooks) OnJobComplete(context.Context, string, time.Duration, error) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

// registry is the set of installed hooks. It is replaced as a whole under
// mu and read by value.
type registry struct {
	pipeline PipelineHooks
	cache    CacheHooks
	http     HTTPHooks
	job      JobHooks
}

func noop() registry {
	return registry{NoopPipelineHooks{}, NoopCacheHooks{}, NoopHTTPHooks{}, NoopJobHooks{}}
}

var (
	mu      sync.RWMutex
	current = noop()
)

func update(fn func(r *registry)) {
	mu.Lock()
	defer mu.Unlock()
	fn(&current)
}

func load() registry {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetPipelineHooks registers custom pipeline hooks. Nil is ignored.
func SetPipelineHooks(h PipelineHooks) {
	if h != nil {
		update(func(r *registry) { r.pipeline = h })
	}
}

// SetCacheHooks registers custom cache hooks. Nil is ignored.
func SetCacheHooks(h CacheHooks) {
	if h != nil {
		update(func(r *registry) { r.cache = h })
	}
}

// SetHTTPHooks registers custom HTTP hooks. Nil is ignored.
func SetHTTPHooks(h HTTPHooks) {
	if h != nil {
		update(func(r *registry) { r.http = h })
	}
}

// SetJobHooks registers custom job hooks. Nil is ignored.
func SetJobHooks(h JobHooks) {
	if h != nil {
		update(func(r *registry) { r.job = h })
	}
}

// Pipeline returns the registered pipeline hooks.
func Pipeline() PipelineHooks { return load().pipeline }

// Cache returns the registered cache hooks.
func Cache() CacheHooks { return load().cache }

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks { return load().http }

// Job returns the registered job hooks.
func Job() JobHooks { return load().job }

// Reset restores all hooks to their no-op defaults.
func Reset() {
	update(func(r *registry) { *r = noop() })
}
