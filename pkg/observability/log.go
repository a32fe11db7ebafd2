package observability

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// LogHooks reports every event to a logger at debug level, and failures at
// warn level. It implements every hook interface.
type LogHooks struct {
	Logger *log.Logger
}

// NewLogHooks returns hooks writing to logger. A nil logger discards.
func NewLogHooks(logger *log.Logger) *LogHooks {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &LogHooks{Logger: logger}
}

// Install registers h for every event category.
func (h *LogHooks) Install() {
	SetPipelineHooks(h)
	SetCacheHooks(h)
	SetHTTPHooks(h)
	SetJobHooks(h)
}

func (h *LogHooks) OnPeekStart(_ context.Context, slug string) {
	h.Logger.Debug("peek start", "slug", slug)
}

func (h *LogHooks) OnPeekComplete(_ context.Context, slug string, traceLen int, d time.Duration, err error) {
	if err != nil {
		h.Logger.Warn("peek failed", "slug", slug, "error", err)
		return
	}
	h.Logger.Debug("peek complete", "slug", slug, "measures", traceLen, "duration", d)
}

func (h *LogHooks) OnRenderStart(_ context.Context, slug string, layers int) {
	h.Logger.Debug("render start", "slug", slug, "layers", layers)
}

func (h *LogHooks) OnRenderComplete(_ context.Context, slug string, d time.Duration, err error) {
	if err != nil {
		h.Logger.Warn("render failed", "slug", slug, "error", err)
		return
	}
	h.Logger.Debug("render complete", "slug", slug, "duration", d)
}

func (h *LogHooks) OnEncode(_ context.Context, format string, size int) {
	h.Logger.Debug("encoded", "format", format, "bytes", size)
}

func (h *LogHooks) OnCacheHit(_ context.Context, keyType string) {
	h.Logger.Debug("cache hit", "type", keyType)
}

func (h *LogHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.Logger.Debug("cache miss", "type", keyType)
}

func (h *LogHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.Logger.Debug("cache set", "type", keyType, "bytes", size)
}

func (h *LogHooks) OnRequest(_ context.Context, method, host, path string) {
	h.Logger.Debug("http request", "method", method, "host", host, "path", path)
}

func (h *LogHooks) OnResponse(_ context.Context, method, host, path string, status int, d time.Duration) {
	h.Logger.Debug("http response", "method", method, "host", host, "path", path, "status", status, "duration", d)
}

func (h *LogHooks) OnError(_ context.Context, method, host, path string, err error) {
	h.Logger.Warn("http error", "method", method, "host", host, "path", path, "error", err)
}

func (h *LogHooks) OnJobEnqueued(_ context.Context, kind string) {
	h.Logger.Debug("job enqueued", "kind", kind)
}

func (h *LogHooks) OnJobStart(_ context.Context, kind string, wait time.Duration) {
	h.Logger.Debug("job start", "kind", kind, "waited", wait.Round(time.Millisecond))
}

func (h *LogHooks) OnJobComplete(_ context.Context, kind string, d time.Duration, err error) {
	if err != nil {
		h.Logger.Warn("job failed", "kind", kind, "duration", d, "err", err)
		return
	}
	h.Logger.Debug("job complete", "kind", kind, "duration", d)
}
