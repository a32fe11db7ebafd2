package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/strata/pkg/cache"
	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/httputil"
)

func TestDirStore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "hats"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "hats", "red.png"), []byte("red"), 0o644))

	s := NewDirStore(root)
	ctx := context.Background()

	tests := []struct {
		name     string
		ref      string
		want     string
		wantCode errors.Code
	}{
		{"relative", "hats/red.png", "red", ""},
		{"leading slash", "/hats/red.png", "red", ""},
		{"missing", "hats/blue.png", "", errors.ErrCodeNotFound},
		{"traversal", "../etc/passwd", "", errors.ErrCodeInvalidPath},
		{"empty", "", "", errors.ErrCodeInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := s.Fetch(ctx, tt.ref)
			if tt.wantCode != "" {
				assert.True(t, errors.Is(err, tt.wantCode), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestHTTPStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ipfs/QmHat" {
			w.Write([]byte("hat"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s, err := NewHTTPStore(srv.URL + "/ipfs/")
	require.NoError(t, err)
	s.Client.Backoff = time.Millisecond

	data, err := s.Fetch(context.Background(), "QmHat")
	require.NoError(t, err)
	assert.Equal(t, "hat", string(data))

	_, err = s.Fetch(context.Background(), "QmMissing")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "err = %v", err)

	_, err = NewHTTPStore("ftp://nope")
	assert.Error(t, err)
}

func TestMemory(t *testing.T) {
	m := Memory{"a": []byte("1")}
	data, err := m.Fetch(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))

	_, err = m.Fetch(context.Background(), "b")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

type countingStore struct {
	mu     sync.Mutex
	calls  map[string]int
	active atomic.Int32
	peak   atomic.Int32
	fail   string
}

func (s *countingStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[ref]++
	s.mu.Unlock()

	if ref == s.fail {
		return nil, errors.New(errors.ErrCodeNotFound, "%s missing", ref)
	}
	return []byte("data:" + ref), nil
}

func TestPrefetch(t *testing.T) {
	store := &countingStore{}
	refs := []string{"a", "b", "c", "d", "a", "e", "f"}

	got, err := Prefetch(context.Background(), store, refs, 2)
	require.NoError(t, err)

	assert.Len(t, got, 6)
	assert.Equal(t, "data:c", string(got["c"]))
	assert.Equal(t, 1, store.calls["a"], "duplicate refs fetched once")
	assert.LessOrEqual(t, store.peak.Load(), int32(2), "limit respected")
}

func TestPrefetchFailure(t *testing.T) {
	store := &countingStore{fail: "c"}
	_, err := Prefetch(context.Background(), store, []string{"a", "b", "c"}, 0)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "err = %v", err)
}

func TestCached(t *testing.T) {
	ctx := context.Background()
	fc, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)

	store := &countingStore{}
	c := NewCached(store, fc, nil)

	for range 3 {
		data, err := c.Fetch(ctx, "hat")
		require.NoError(t, err)
		assert.Equal(t, "data:hat", string(data))
	}
	assert.Equal(t, 1, store.calls["hat"])

	store.fail = "gone"
	_, err = c.Fetch(ctx, "gone")
	assert.Error(t, err)
}

func TestHTTPStoreRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	s := &HTTPStore{BaseURL: srv.URL, Client: &httputil.Client{HTTP: srv.Client(), Attempts: 3, Backoff: time.Millisecond}}
	data, err := s.Fetch(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(3), calls.Load())
}
