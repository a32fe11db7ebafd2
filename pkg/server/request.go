package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/layout"
	"github.com/matzehuels/strata/pkg/pipeline"
)

// RenderRequest is the body of the render, peek, stems and blueprint
// endpoints and the payload of queued jobs. Exactly one of Metadata and
// Layout is required, except for blueprints: Metadata is full token
// metadata, Layout a bare layout without unminted defaults or audio.
// Blueprint requests carry only Blueprint.
type RenderRequest struct {
	pipeline.Options

	Metadata  json.RawMessage `json:"document,omitempty"`
	Layout    json.RawMessage `json:"layout,omitempty"`
	Blueprint json.RawMessage `json:"blueprint,omitempty"`

	// Callback receives the finished job as JSON. Only used by jobs.
	Callback string `json:"callback,omitempty"`
}

// options parses the document, or the blueprint for [KindBlueprint], and
// returns validated pipeline options.
func (r *RenderRequest) options(kind Kind) (pipeline.Options, error) {
	opts := r.Options
	if kind == KindBlueprint {
		return r.blueprintOptions()
	}
	switch {
	case len(r.Blueprint) > 0:
		return opts, errors.New(errors.ErrCodeInvalidInput, "blueprint is only accepted by blueprint renders")
	case len(r.Metadata) > 0 && len(r.Layout) > 0:
		return opts, errors.New(errors.ErrCodeInvalidInput, "set either document or layout, not both")
	case len(r.Metadata) > 0:
		doc, err := layout.ParseDocument(r.Metadata)
		if err != nil {
			return opts, err
		}
		opts.Document = doc
	case len(r.Layout) > 0:
		l, err := layout.Parse(r.Layout)
		if err != nil {
			return opts, err
		}
		opts.Document = &layout.Document{Layout: l, Unminted: map[int64][]int64{}}
	default:
		return opts, errors.New(errors.ErrCodeInvalidInput, "document or layout is required")
	}
	if err := r.validateCallback(); err != nil {
		return opts, err
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return opts, err
	}
	return opts, nil
}

func (r *RenderRequest) blueprintOptions() (pipeline.Options, error) {
	opts := r.Options
	if len(r.Metadata) > 0 || len(r.Layout) > 0 {
		return opts, errors.New(errors.ErrCodeInvalidInput, "blueprint renders take no document or layout")
	}
	if len(r.Blueprint) == 0 {
		return opts, errors.New(errors.ErrCodeInvalidInput, "blueprint is required")
	}
	bp, err := pipeline.ParseBlueprint(r.Blueprint)
	if err != nil {
		return opts, err
	}
	opts.Blueprint = bp
	if err := r.validateCallback(); err != nil {
		return opts, err
	}
	if err := opts.ValidateBlueprint(); err != nil {
		return opts, err
	}
	return opts, nil
}

func (r *RenderRequest) validateCallback() error {
	if r.Callback == "" {
		return nil
	}
	return errors.ValidateURL(r.Callback)
}

// decodeJSON reads a JSON body of at most limit bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New(errors.ErrCodeInvalidInput, "request body exceeds %d bytes", limit)
		}
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "decode request")
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New(errors.ErrCodeInvalidInput, "request body has trailing data")
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	writeJSON(w, errors.HTTPStatus(err), errorResponse{
		Error: errors.UserMessage(err),
		Code:  string(code),
	})
}
