// Package measure resolves dynamic layout properties to integers.
//
// A [Resolver] reads the raw measure of a property from its source (a lever,
// the price feed, the seeded generator, a lever sum or the render clock),
// maps it through the property's handler and appends the result to the
// render [Trace]. Resolve is the only writer of the trace, so the trace
// records every property read in visitation order.
package measure

import (
	"context"
	"io"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/strata/pkg/layout"
	"github.com/matzehuels/strata/pkg/token"
)

// Resolver resolves properties against one render's token context.
type Resolver struct {
	Tokens *token.Context
	Trace  *Trace
	Logger *log.Logger
}

// NewResolver returns a resolver with an empty trace.
func NewResolver(tokens *token.Context, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Resolver{Tokens: tokens, Trace: &Trace{}, Logger: logger}
}

// Resolve returns the value of p and records it in the trace. label names
// the property in log output.
func (r *Resolver) Resolve(ctx context.Context, p layout.Property, label string) (int64, error) {
	v, err := r.resolve(ctx, p, label)
	if err != nil {
		return 0, err
	}
	r.Trace.Append(v)
	return v, nil
}

// ResolveBool resolves p and reports whether it equals 1.
func (r *Resolver) ResolveBool(ctx context.Context, p layout.Property, label string) (bool, error) {
	v, err := r.Resolve(ctx, p, label)
	return v == 1, err
}

func (r *Resolver) resolve(ctx context.Context, p layout.Property, label string) (int64, error) {
	switch p.Source {
	case layout.SourceLiteral:
		r.Logger.Debug(label, "value", p.Value)
		return p.Value, nil

	case layout.SourceLever:
		v, err := r.Tokens.Lever(ctx, p.Lever.TokenID, p.Lever.LeverID)
		if err != nil {
			return 0, err
		}
		r.Logger.Debug(label, "value", v, "token", p.Lever.TokenID+r.Tokens.MasterID(), "lever", p.Lever.LeverID)
		return v, nil

	case layout.SourcePrice:
		price, err := r.Tokens.Price(ctx)
		if err != nil {
			return 0, err
		}
		return r.handled(label, int64(math.Round(price)), p.Handler, "source", "price")

	case layout.SourceRandom:
		m := r.Tokens.RandomInt(p.Max)
		return r.handled(label, m, p.Handler, "source", "random", "max", p.Max)

	case layout.SourceCombo:
		var m int64
		for _, ref := range p.Combo {
			v, err := r.Tokens.Lever(ctx, ref.TokenID, ref.LeverID)
			if err != nil {
				return 0, err
			}
			m += v
		}
		return r.handled(label, m, p.Handler, "source", "combo", "levers", len(p.Combo))

	case layout.SourceTime:
		m := TimeMeasure(r.Tokens.Time(), p.Unit)
		return r.handled(label, m, p.Handler, "source", "time", "unit", p.Unit)

	default:
		r.Logger.Debug(label, "value", 0, "source", "unknown")
		return 0, nil
	}
}

func (r *Resolver) handled(label string, m int64, h layout.Handler, kv ...any) (int64, error) {
	v := Handle(m, h)
	r.Logger.Debug(label, append([]any{"value", v, "measure", m, "handler", h}, kv...)...)
	return v, nil
}

// Handle maps a raw measure through a handler.
//
// MODULO wraps the measure into [0, MaxBound]; a negative bound yields 0.
// CUSTOM returns the output of the first rule whose inclusive range contains
// the measure, or 0 when none does. Any other handler yields 0.
func Handle(m int64, h layout.Handler) int64 {
	switch h.Kind {
	case layout.HandlerModulo:
		if h.MaxBound < 0 {
			return 0
		}
		if h.MaxBound == math.MaxInt64 {
			return m
		}
		return m % (h.MaxBound + 1)
	case layout.HandlerCustom:
		for _, rule := range h.Rules {
			if m >= rule.Min && m <= rule.Max {
				return rule.Output
			}
		}
		return 0
	default:
		return 0
	}
}

// TimeMeasure derives a calendar measure from t in UTC. Months, days of the
// month and days of the year are 0-indexed. Unknown units measure 0.
func TimeMeasure(t time.Time, unit layout.TimeUnit) int64 {
	t = t.UTC()
	switch unit {
	case layout.TimeSeconds:
		return t.Unix()
	case layout.TimeMonth:
		return int64(t.Month()) - 1
	case layout.TimeHourOfDay:
		return int64(t.Hour())
	case layout.TimeDayOfMonth:
		return int64(t.Day()) - 1
	case layout.TimeDayOfYear:
		return int64(t.YearDay()) - 1
	default:
		return 0
	}
}
