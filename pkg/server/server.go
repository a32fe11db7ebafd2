// Package server exposes the render pipeline over HTTP and runs queued
// render jobs.
//
// Endpoints:
//
//	GET  /healthz              liveness and version
//	POST /v1/render            render and return the encoded artifact
//	POST /v1/peek              resolve without rendering; returns trace and assets
//	POST /v1/stems             resolve the active audio stems
//	POST /v1/blueprint         composite a flat blueprint edition
//	POST /v1/jobs              queue a render, peek or blueprint job
//	GET  /v1/jobs/{id}         job status and result
//	GET  /v1/artifacts/{key}   a cached artifact by key
//
// Render requests carry [pipeline.Options] fields plus the token metadata
// ("document") or a bare layout ("layout"). Errors are JSON with the error
// code, and the status follows [errors.HTTPStatus].
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"github.com/matzehuels/strata/pkg/buildinfo"
	"github.com/matzehuels/strata/pkg/engine"
	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/observability"
	"github.com/matzehuels/strata/pkg/pipeline"
)

// Server defaults.
const (
	DefaultMaxBodyBytes = 8 << 20
	DefaultTimeout      = 2 * time.Minute
)

// Response headers set on rendered artifacts.
const (
	HeaderTrace     = "X-Strata-Trace"
	HeaderTraceHash = "X-Strata-Trace-Hash"
	HeaderKey       = "X-Strata-Key"
	HeaderCache     = "X-Strata-Cache"
)

// Server serves the HTTP API.
type Server struct {
	Runner *pipeline.Runner

	// Queue backs the job endpoints. Nil disables them.
	Queue Queue

	Logger       *log.Logger
	MaxBodyBytes int64
	Timeout      time.Duration
}

// New creates a server with default limits.
func New(runner *pipeline.Runner, q Queue, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		Runner:       runner,
		Queue:        q,
		Logger:       logger,
		MaxBodyBytes: DefaultMaxBodyBytes,
		Timeout:      DefaultTimeout,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	if s.Timeout > 0 {
		r.Use(middleware.Timeout(s.Timeout))
	}

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/render", s.handleRender)
		r.Post("/peek", s.handlePeek)
		r.Post("/stems", s.handleStems)
		r.Post("/blueprint", s.handleBlueprint)
		r.Get("/artifacts/{key}", s.handleArtifact)
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleEnqueue)
			r.Get("/{id}", s.handleJob)
		})
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) limit() int64 {
	if s.MaxBodyBytes > 0 {
		return s.MaxBodyBytes
	}
	return DefaultMaxBodyBytes
}

// request decodes a render request and builds its options for kind.
func (s *Server) request(w http.ResponseWriter, r *http.Request, kind Kind) (*RenderRequest, pipeline.Options, error) {
	var req RenderRequest
	if err := decodeJSON(w, r, s.limit(), &req); err != nil {
		return nil, pipeline.Options{}, err
	}
	opts, err := req.options(kind)
	if err != nil {
		return nil, opts, err
	}
	opts.Logger = s.Logger.With("slug", opts.Slug, "request_id", middleware.GetReqID(r.Context()))
	return &req, opts, nil
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
	})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	_, opts, err := s.request(w, r, KindArt)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.Runner.Execute(r.Context(), opts)
	if err != nil {
		s.Logger.Warn("render failed", "slug", opts.Slug, "err", err)
		writeError(w, err)
		return
	}
	writeArtifact(w, res)
}

func (s *Server) handleBlueprint(w http.ResponseWriter, r *http.Request) {
	_, opts, err := s.request(w, r, KindBlueprint)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.Runner.Blueprint(r.Context(), opts)
	if err != nil {
		s.Logger.Warn("blueprint render failed", "slug", opts.Slug, "err", err)
		writeError(w, err)
		return
	}
	writeArtifact(w, res)
}

func writeArtifact(w http.ResponseWriter, res *pipeline.Result) {
	h := w.Header()
	h.Set("Content-Type", res.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(res.Artifact)))
	if res.TraceKey != "" {
		h.Set(HeaderTrace, res.TraceKey)
	}
	h.Set(HeaderTraceHash, res.TraceHash)
	h.Set(HeaderKey, res.Key)
	if res.CacheInfo.Hit {
		h.Set(HeaderCache, "hit")
	} else {
		h.Set(HeaderCache, "miss")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Artifact)
}

// PeekResponse is the body returned by the peek endpoint.
type PeekResponse struct {
	Trace      []int64            `json:"trace"`
	TraceKey   string             `json:"trace_key"`
	TraceHash  string             `json:"trace_hash"`
	Key        string             `json:"key"`
	Assets     []string           `json:"assets"`
	Placements []engine.Placement `json:"placements"`
}

// NewPeekResponse flattens a plan for JSON.
func NewPeekResponse(plan *engine.Plan, key string) PeekResponse {
	resp := PeekResponse{
		Trace:     plan.Trace.Values(),
		TraceKey:  plan.Trace.Key(),
		TraceHash: plan.Trace.Hash(),
		Key:       key,
		Assets:    plan.Assets,
	}
	if resp.Assets == nil {
		resp.Assets = []string{}
	}
	if plan.Geometry != nil {
		resp.Placements = plan.Geometry.Placements()
	}
	if resp.Placements == nil {
		resp.Placements = []engine.Placement{}
	}
	return resp
}

func (s *Server) handlePeek(w http.ResponseWriter, r *http.Request) {
	_, opts, err := s.request(w, r, KindPeek)
	if err != nil {
		writeError(w, err)
		return
	}
	plan, key, err := s.Runner.Peek(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewPeekResponse(plan, key))
}

func (s *Server) handleStems(w http.ResponseWriter, r *http.Request) {
	_, opts, err := s.request(w, r, KindArt)
	if err != nil {
		writeError(w, err)
		return
	}
	stems, err := s.Runner.Stems(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	if stems == nil {
		stems = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"stems": stems})
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	data, ok, err := s.Runner.Cache.Get(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, errors.New(errors.ErrCodeNotFound, "artifact %s not found", key))
		return
	}
	contentType := "application/octet-stream"
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		contentType = kind.MIME.Value
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// enqueueResponse is returned when a job is accepted.
type enqueueResponse struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if s.Queue == nil {
		writeError(w, errors.New(errors.ErrCodeUnsupported, "job queue is not configured"))
		return
	}
	var body struct {
		Kind Kind `json:"kind"`
		RenderRequest
	}
	if err := decodeJSON(w, r, s.limit(), &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Kind == "" {
		body.Kind = KindArt
	}
	if !body.Kind.valid() {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "unknown job kind %q", body.Kind))
		return
	}
	// Reject bad requests now instead of failing in the worker.
	if _, err := body.RenderRequest.options(body.Kind); err != nil {
		writeError(w, err)
		return
	}

	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      body.Kind,
		Request:   body.RenderRequest,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Queue.Enqueue(r.Context(), job); err != nil {
		writeError(w, err)
		return
	}
	observability.Job().OnJobEnqueued(r.Context(), string(job.Kind))
	s.Logger.Info("job queued", "id", job.ID, "kind", job.Kind, "slug", job.Request.Slug)
	w.Header().Set("Location", "/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, enqueueResponse{ID: job.ID, Status: job.Status})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	if s.Queue == nil {
		writeError(w, errors.New(errors.ErrCodeUnsupported, "job queue is not configured"))
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid job id %q", id))
		return
	}
	job, err := s.Queue.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
