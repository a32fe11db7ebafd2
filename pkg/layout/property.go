package layout

import (
	"fmt"
	"strings"
)

// Source identifies where a dynamic property takes its raw measure from.
// The source is fixed when the layout is parsed.
type Source int

const (
	// SourceUnknown is a property whose shape matched no known source.
	// It resolves to 0.
	SourceUnknown Source = iota
	// SourceLiteral is a plain number, used as-is.
	SourceLiteral
	// SourceLever reads the current value of one lever of a control token.
	SourceLever
	// SourcePrice reads the current external price.
	SourcePrice
	// SourceRandom draws from the render's seeded generator.
	SourceRandom
	// SourceCombo sums several lever values.
	SourceCombo
	// SourceTime derives a calendar measure from the render timestamp.
	SourceTime
)

var sourceNames = map[Source]string{
	SourceUnknown: "unknown",
	SourceLiteral: "literal",
	SourceLever:   "lever",
	SourcePrice:   "price",
	SourceRandom:  "random",
	SourceCombo:   "combo",
	SourceTime:    "time",
}

// String returns the lowercase source name.
func (s Source) String() string {
	if n, ok := sourceNames[s]; ok {
		return n
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// TimeUnit selects the calendar measure of a time property.
type TimeUnit string

// Supported time units. Unknown units resolve to a measure of 0.
const (
	TimeSeconds    TimeUnit = "SECONDS"
	TimeMonth      TimeUnit = "MONTH"
	TimeHourOfDay  TimeUnit = "HOUR_OF_DAY"
	TimeDayOfMonth TimeUnit = "DAY_OF_MONTH"
	TimeDayOfYear  TimeUnit = "DAY_OF_YEAR"
)

// MaxLeverID is the largest lever id a layout may reference.
const MaxLeverID = 1 << 16

// LeverRef addresses one lever of a control token. TokenID is relative to
// the render's master token id.
type LeverRef struct {
	TokenID int64
	LeverID int
}

func (r LeverRef) String() string {
	return fmt.Sprintf("%d/%d", r.TokenID, r.LeverID)
}

// Property is a dynamic numeric property. Which fields are meaningful depends
// on Source.
type Property struct {
	Source Source

	// Value is the literal value (SourceLiteral).
	Value int64

	// Lever is the lever read by SourceLever.
	Lever LeverRef

	// Combo lists the levers summed by SourceCombo.
	Combo []LeverRef

	// Max is the inclusive upper bound of a SourceRandom draw.
	Max int64

	// Unit is the calendar measure of SourceTime.
	Unit TimeUnit

	// Handler maps the raw measure of price, random, combo and time
	// properties to an output value. Literal and lever values bypass it.
	Handler Handler
}

// Literal returns a literal property.
func Literal(v int64) Property {
	return Property{Source: SourceLiteral, Value: v}
}

// LeverProperty returns a property reading one lever.
func LeverProperty(tokenID int64, leverID int) Property {
	return Property{Source: SourceLever, Lever: LeverRef{TokenID: tokenID, LeverID: leverID}}
}

// RandomProperty returns a property drawing uniformly from [0, max].
func RandomProperty(max int64, h Handler) Property {
	return Property{Source: SourceRandom, Max: max, Handler: h}
}

// ComboProperty returns a property summing the given levers.
func ComboProperty(h Handler, levers ...LeverRef) Property {
	return Property{Source: SourceCombo, Combo: levers, Handler: h}
}

// TimeProperty returns a calendar-derived property.
func TimeProperty(unit TimeUnit, h Handler) Property {
	return Property{Source: SourceTime, Unit: unit, Handler: h}
}

// PriceProperty returns a property reading the external price.
func PriceProperty(h Handler) Property {
	return Property{Source: SourcePrice, Handler: h}
}

// IsDynamic reports whether the property needs resolution beyond its
// literal value.
func (p Property) IsDynamic() bool {
	return p.Source != SourceLiteral
}

// String describes the property for logs and diagrams.
func (p Property) String() string {
	switch p.Source {
	case SourceLiteral:
		return fmt.Sprintf("%d", p.Value)
	case SourceLever:
		return "lever " + p.Lever.String()
	case SourcePrice:
		return "price " + p.Handler.String()
	case SourceRandom:
		return fmt.Sprintf("random[0,%d] %s", p.Max, p.Handler)
	case SourceCombo:
		parts := make([]string, len(p.Combo))
		for i, r := range p.Combo {
			parts[i] = r.String()
		}
		return fmt.Sprintf("combo(%s) %s", strings.Join(parts, "+"), p.Handler)
	case SourceTime:
		return fmt.Sprintf("time %s %s", p.Unit, p.Handler)
	default:
		return "unknown"
	}
}

// HandlerKind selects a measure handler policy.
type HandlerKind int

const (
	// HandlerNone maps every measure to 0.
	HandlerNone HandlerKind = iota
	// HandlerModulo wraps the measure into [0, MaxBound].
	HandlerModulo
	// HandlerCustom looks the measure up in an ordered range table.
	HandlerCustom
)

// Rule maps measures in [Min, Max] to Output.
type Rule struct {
	Min, Max int64
	Output   int64
}

// Handler maps a raw measure to a small discrete output value.
type Handler struct {
	Kind     HandlerKind
	MaxBound int64
	Rules    []Rule
}

// Modulo returns a wrap-around handler with an inclusive upper bound.
func Modulo(maxBoundInclusive int64) Handler {
	return Handler{Kind: HandlerModulo, MaxBound: maxBoundInclusive}
}

// Custom returns a range-table handler.
func Custom(rules ...Rule) Handler {
	return Handler{Kind: HandlerCustom, Rules: rules}
}

func (h Handler) String() string {
	switch h.Kind {
	case HandlerModulo:
		return fmt.Sprintf("MODULO(%d)", h.MaxBound)
	case HandlerCustom:
		return fmt.Sprintf("CUSTOM(%d rules)", len(h.Rules))
	default:
		return "NONE"
	}
}
