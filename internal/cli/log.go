// Package cli implements the strata command-line interface.
//
// Commands render layouts to images, resolve them without rendering (peek,
// inspect), check and diagram layouts, list audio stems, and run the HTTP
// API and its job workers. The CLI is built using cobra and logs through
// charmbracelet/log.
//
// # Commands
//
// The main commands are:
//   - render: Resolve and composite a layout into PNG or JPEG
//   - peek: Print the render trace, cache key and assets without rendering
//   - inspect: Browse a resolved layout interactively
//   - validate, visualize: Check a layout and draw its state tree
//   - stems: Resolve the audio stems a token selects
//   - serve, worker: Run the render API and queued render jobs
//   - cache: Manage the render cache
//
// # Configuration
//
// Stores and defaults come from strata.toml (or --config) and STRATA_*
// environment variables; see package config.
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging, which also
// logs every resolved property and every cache and HTTP event.
package cli

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/strata/pkg/pipeline"
)

// newLogger returns the CLI logger: timestamps as "15:04:05.00", messages
// below level dropped.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// tokenLogger tags every line of one render with the layout slug and the
// master token, so interleaved renders stay readable.
func tokenLogger(l *log.Logger, opts pipeline.Options) *log.Logger {
	return l.With("slug", opts.Slug, "master", opts.MasterID)
}

// progress logs how long a long-running operation took.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg with kv and the elapsed time, rounded to the millisecond.
func (p *progress) done(msg string, kv ...any) {
	kv = append(kv, "elapsed", time.Since(p.start).Round(time.Millisecond))
	p.logger.Info(msg, kv...)
}
