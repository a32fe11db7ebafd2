package httputil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/strata/pkg/errors"
)

func testClient() *Client {
	c := NewClient()
	c.Backoff = time.Millisecond
	return c
}

func TestClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("layer bytes"))
	}))
	defer srv.Close()

	c := testClient()
	c.Header = http.Header{"X-Key": []string{"secret"}}
	body, err := c.Get(context.Background(), srv.URL+"/a.png")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "layer bytes" {
		t.Errorf("body = %q", body)
	}
}

func TestClientStatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCode  errors.Code
		wantCalls int32
	}{
		{"not found", http.StatusNotFound, errors.ErrCodeNotFound, 1},
		{"server error retried", http.StatusBadGateway, errors.ErrCodeNetwork, DefaultAttempts},
		{"rate limited retried", http.StatusTooManyRequests, errors.ErrCodeNetwork, DefaultAttempts},
		{"client error not retried", http.StatusForbidden, errors.ErrCodeNetwork, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := testClient().Get(context.Background(), srv.URL)
			if !errors.Is(err, tt.wantCode) {
				t.Errorf("err = %v, want code %s", err, tt.wantCode)
			}
			if IsRetryable(err) {
				t.Error("returned error should not carry the retry marker")
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestClientRecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := testClient().Get(context.Background(), srv.URL)
	if err != nil || string(body) != "ok" {
		t.Fatalf("Get = %q, %v", body, err)
	}
}

func TestJoin(t *testing.T) {
	got, err := Join("https://assets.example/base/", "layers/hat 1.png")
	if err != nil {
		t.Fatal(err)
	}
	if want := "https://assets.example/base/layers/hat%201.png"; got != want {
		t.Errorf("Join = %q, want %q", got, want)
	}
}

func TestClientPostJSON(t *testing.T) {
	var calls atomic.Int32
	var got struct {
		Status string `json:"status"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := testClient().PostJSON(context.Background(), srv.URL, map[string]string{"status": "done"})
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if got.Status != "done" {
		t.Errorf("status = %q", got.Status)
	}
}

func TestClientPostJSONRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := testClient().PostJSON(context.Background(), srv.URL, struct{}{})
	if !errors.Is(err, errors.ErrCodeNetwork) {
		t.Fatalf("err = %v, want network", err)
	}
}
