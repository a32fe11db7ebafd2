package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	p := NoopPipelineHooks{}
	p.OnPeekStart(ctx, "genesis")
	p.OnPeekComplete(ctx, "genesis", 12, time.Second, nil)
	p.OnRenderStart(ctx, "genesis", 5)
	p.OnRenderComplete(ctx, "genesis", time.Second, nil)
	p.OnEncode(ctx, "png", 1024)

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "artifact")
	c.OnCacheMiss(ctx, "artifact")
	c.OnCacheSet(ctx, "artifact", 1024)

	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "GET", "assets.example", "/a.png")
	h.OnResponse(ctx, "GET", "assets.example", "/a.png", 200, time.Second)
	h.OnError(ctx, "GET", "assets.example", "/a.png", nil)

	j := NoopJobHooks{}
	j.OnJobEnqueued(ctx, "art")
	j.OnJobStart(ctx, "art", time.Second)
	j.OnJobComplete(ctx, "art", time.Second, nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()

	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Error("Pipeline() should return NoopPipelineHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}
	if _, ok := Job().(NoopJobHooks); !ok {
		t.Error("Job() should return NoopJobHooks by default")
	}

	custom := &countingHooks{}
	SetPipelineHooks(custom)
	if Pipeline() != custom {
		t.Error("SetPipelineHooks should set custom hooks")
	}

	lh := NewLogHooks(nil)
	lh.Install()
	if Cache() != lh || HTTP() != lh || Pipeline() != lh || Job() != lh {
		t.Error("Install should register every category")
	}

	Reset()
	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Error("Reset() should restore NoopPipelineHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()
	defer Reset()

	custom := &countingHooks{}
	SetPipelineHooks(custom)
	SetPipelineHooks(nil)
	if Pipeline() != custom {
		t.Error("SetPipelineHooks(nil) should keep the previous hooks")
	}
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	h := NewLogHooks(logger)
	ctx := context.Background()

	h.OnRenderStart(ctx, "genesis", 3)
	h.OnRenderComplete(ctx, "genesis", 0, errors.New("boom"))
	h.OnCacheHit(ctx, "artifact")
	h.OnJobStart(ctx, "peek", 1500*time.Microsecond)
	h.OnJobComplete(ctx, "peek", time.Millisecond, errors.New("lever store down"))

	out := buf.String()
	for _, want := range []string{"render start", "render failed", "boom", "cache hit", "job start", "waited=2ms", "job failed", "lever store down"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

type countingHooks struct {
	NoopPipelineHooks
	renders int
}

func (c *countingHooks) OnRenderStart(context.Context, string, int) { c.renders++ }
