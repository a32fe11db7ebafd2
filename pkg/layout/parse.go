package layout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/raster"
)

// =============================================================================
// Documents
// =============================================================================

// Document is the token metadata a layout ships in: the visual layout plus
// the defaults needed to render it before every control token is minted.
type Document struct {
	Layout *Layout

	// Audio is the optional stem layout of audio-enabled pieces.
	Audio *AudioLayout

	// UTCOffset is added to the render clock, in seconds.
	UTCOffset int64

	// Unminted holds fallback control tokens keyed by relative token id.
	Unminted map[int64][]int64
}

// AudioLayout selects one stem per layer with the same state machinery as
// image layers.
type AudioLayout struct {
	Layers    []Node
	Mastering Mastering
}

// Mastering is the mastering preset attached to an audio layout. Filters are
// opaque to the renderer and forwarded to the encoder.
type Mastering struct {
	Bitrate                      string   `json:"bitrate,omitempty"`
	Filters                      []string `json:"filters,omitempty"`
	Corrective                   []string `json:"corrective,omitempty"`
	BroadShaping                 []string `json:"broadShaping,omitempty"`
	CompressionThresholdEquation string   `json:"compressionThresholdEquation,omitempty"`
	CompressionEquation          string   `json:"compressionEquation,omitempty"`
	Limiter                      []string `json:"limiter,omitempty"`
}

type rawDocument struct {
	Layout     json.RawMessage `json:"layout"`
	AudioRaw   *rawAudio       `json:"audio-layout"`
	Attributes *struct {
		UTCOffset *int64 `json:"default_utc_offset"`
		Timezone  *struct {
			UTCOffset *int64 `json:"default_utc_offset"`
		} `json:"timezone"`
		Unminted map[string][]json.Number `json:"unminted-token-values"`
	} `json:"async-attributes"`
}

type rawAudio struct {
	Layers    []json.RawMessage `json:"layers"`
	Mastering Mastering         `json:"mastering"`
}

// ParseDocument parses token metadata JSON.
func ParseDocument(data []byte) (*Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLayout, err, "decode document")
	}
	if len(raw.Layout) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidLayout, "document has no layout")
	}

	l, err := Parse(raw.Layout)
	if err != nil {
		return nil, err
	}
	doc := &Document{Layout: l, Unminted: map[int64][]int64{}}

	if a := raw.Attributes; a != nil {
		switch {
		case a.UTCOffset != nil:
			doc.UTCOffset = *a.UTCOffset
		case a.Timezone != nil && a.Timezone.UTCOffset != nil:
			doc.UTCOffset = *a.Timezone.UTCOffset
		}
		for k, vals := range a.Unminted {
			id, err := strconv.ParseInt(k, 10, 64)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidLayout, err, "unminted token id %q", k)
			}
			tok := make([]int64, len(vals))
			for i, v := range vals {
				n, err := numberToInt(v)
				if err != nil {
					return nil, errors.Wrap(errors.ErrCodeInvalidLayout, err, "unminted token %d value %d", id, i)
				}
				tok[i] = n
			}
			doc.Unminted[id] = tok
		}
	}

	if raw.AudioRaw != nil {
		audio := &AudioLayout{Mastering: raw.AudioRaw.Mastering}
		for i, rl := range raw.AudioRaw.Layers {
			n, err := parseNode(rl)
			if err != nil {
				return nil, fmt.Errorf("audio layer %d: %w", i, err)
			}
			audio.Layers = append(audio.Layers, n)
		}
		doc.Audio = audio
	}
	return doc, nil
}

// =============================================================================
// Layouts
// =============================================================================

type rawLayout struct {
	Version int               `json:"version"`
	Layers  []json.RawMessage `json:"layers"`
}

// Parse parses and validates a layout from JSON.
func Parse(data []byte) (*Layout, error) {
	var raw rawLayout
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLayout, err, "decode layout")
	}
	l := &Layout{Version: raw.Version, Layers: make([]Node, 0, len(raw.Layers))}
	if l.Version == 0 {
		l.Version = 1
	}
	for i, rl := range raw.Layers {
		n, err := parseNode(rl)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		l.Layers = append(l.Layers, n)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// ParseYAML parses a layout written as YAML with the JSON key names.
func ParseYAML(data []byte) (*Layout, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLayout, err, "decode yaml layout")
	}
	js, err := json.Marshal(normalizeYAML(v))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLayout, err, "convert yaml layout")
	}
	return Parse(js)
}

// normalizeYAML converts non-string mapping keys so the tree can be
// re-encoded as JSON.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}

// =============================================================================
// Layers
// =============================================================================

type rawLayer struct {
	ID               flexString      `json:"id"`
	States           json.RawMessage `json:"states"`
	URI              string          `json:"uri"`
	Width            float64         `json:"width"`
	Height           float64         `json:"height"`
	Scale            *rawVector      `json:"scale"`
	FixedRotation    json.RawMessage `json:"fixed-rotation"`
	OrbitRotation    json.RawMessage `json:"orbit-rotation"`
	Mirror           *rawVector      `json:"mirror"`
	Anchor           flexString      `json:"anchor"`
	FixedPosition    *rawVector      `json:"fixed-position"`
	RelativePosition *rawVector      `json:"relative-position"`
	Visible          json.RawMessage `json:"visible"`
	Color            *rawColor       `json:"color"`
	BlendMode        string          `json:"blendMode"`
	Text             *rawText        `json:"text"`
}

type rawVector struct {
	X json.RawMessage `json:"x"`
	Y json.RawMessage `json:"y"`
}

type rawColor struct {
	Red        json.RawMessage `json:"red"`
	Green      json.RawMessage `json:"green"`
	Blue       json.RawMessage `json:"blue"`
	Hue        json.RawMessage `json:"hue"`
	Brightness json.RawMessage `json:"brightness"`
	Saturation json.RawMessage `json:"saturation"`
	Alpha      json.RawMessage `json:"alpha"`
	Opacity    json.RawMessage `json:"opacity"`
	Multiply   bool            `json:"multiply"`
	HardLight  bool            `json:"hardlight"`
	Lighten    bool            `json:"lighten"`
	Overlay    bool            `json:"overlay"`
	Difference bool            `json:"difference"`
	Exclusion  bool            `json:"exclusion"`
	Screen     bool            `json:"screen"`
}

type rawText struct {
	Font     string `json:"font"`
	Text     string `json:"text"`
	Position struct {
		X         json.RawMessage `json:"x"`
		Y         json.RawMessage `json:"y"`
		Alignment string          `json:"horizontal-alignment"`
	} `json:"position"`
}

type rawStates struct {
	Options []json.RawMessage `json:"options"`
}

func parseNode(data json.RawMessage) (Node, error) {
	var raw rawLayer
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLayout, err, "decode layer")
	}

	if len(raw.States) > 0 && string(raw.States) != "null" {
		return parseStateNode(string(raw.ID), raw.States)
	}

	leaf := &Leaf{
		ID:     string(raw.ID),
		Asset:  raw.URI,
		Width:  int(math.Round(raw.Width)),
		Height: int(math.Round(raw.Height)),
		Anchor: string(raw.Anchor),
	}

	var err error
	if leaf.BlendMode, err = raster.ParseBlendMode(raw.BlendMode); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLayout, err, "layer %q", leaf.ID)
	}
	if leaf.Scale, err = parseVector(raw.Scale); err != nil {
		return nil, fmt.Errorf("scale: %w", err)
	}
	if leaf.Mirror, err = parseVector(raw.Mirror); err != nil {
		return nil, fmt.Errorf("mirror: %w", err)
	}
	if leaf.FixedPosition, err = parseVector(raw.FixedPosition); err != nil {
		return nil, fmt.Errorf("fixed-position: %w", err)
	}
	if leaf.RelativePosition, err = parseVector(raw.RelativePosition); err != nil {
		return nil, fmt.Errorf("relative-position: %w", err)
	}
	if leaf.FixedRotation, err = parseRotation(raw.FixedRotation); err != nil {
		return nil, fmt.Errorf("fixed-rotation: %w", err)
	}
	if leaf.OrbitRotation, err = parseOptional(raw.OrbitRotation); err != nil {
		return nil, fmt.Errorf("orbit-rotation: %w", err)
	}
	if leaf.Visible, err = parseOptional(raw.Visible); err != nil {
		return nil, fmt.Errorf("visible: %w", err)
	}
	if leaf.Color, err = parseColor(raw.Color); err != nil {
		return nil, fmt.Errorf("color: %w", err)
	}
	if raw.Text != nil {
		t := &Text{
			Font:    raw.Text.Font,
			Content: raw.Text.Text,
			CenterH: raw.Text.Position.Alignment == "center",
		}
		if t.X, err = ParseProperty(raw.Text.Position.X); err != nil {
			return nil, fmt.Errorf("text x: %w", err)
		}
		if t.Y, err = ParseProperty(raw.Text.Position.Y); err != nil {
			return nil, fmt.Errorf("text y: %w", err)
		}
		leaf.Text = t
	}
	return leaf, nil
}

func parseStateNode(id string, data json.RawMessage) (*StateNode, error) {
	var states rawStates
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLayout, err, "decode states of %q", id)
	}
	sel, err := ParseProperty(data)
	if err != nil {
		return nil, fmt.Errorf("states of %q: %w", id, err)
	}
	s := &StateNode{ID: id, Selector: sel, Options: make([]Node, 0, len(states.Options))}
	for i, opt := range states.Options {
		n, err := parseNode(opt)
		if err != nil {
			return nil, fmt.Errorf("option %d of %q: %w", i, id, err)
		}
		s.Options = append(s.Options, n)
	}
	return s, nil
}

func parseVector(raw *rawVector) (*Vector, error) {
	if raw == nil {
		return nil, nil
	}
	x, err := ParseProperty(raw.X)
	if err != nil {
		return nil, fmt.Errorf("x: %w", err)
	}
	y, err := ParseProperty(raw.Y)
	if err != nil {
		return nil, fmt.Errorf("y: %w", err)
	}
	return &Vector{X: x, Y: y}, nil
}

func parseRotation(data json.RawMessage) (*Rotation, error) {
	if isAbsent(data) {
		return nil, nil
	}
	angle, err := ParseProperty(data)
	if err != nil {
		return nil, err
	}
	r := &Rotation{Angle: angle}

	var fields map[string]json.RawMessage
	if json.Unmarshal(data, &fields) == nil {
		if m, ok := fields["multiplier"]; ok {
			mult, err := ParseProperty(m)
			if err != nil {
				return nil, fmt.Errorf("multiplier: %w", err)
			}
			r.Multiplier = &mult
		}
	}
	return r, nil
}

func parseColor(raw *rawColor) (*Color, error) {
	if raw == nil {
		return nil, nil
	}
	c := &Color{
		Multiply:   raw.Multiply,
		HardLight:  raw.HardLight,
		Lighten:    raw.Lighten,
		Overlay:    raw.Overlay,
		Difference: raw.Difference,
		Exclusion:  raw.Exclusion,
		Screen:     raw.Screen,
	}
	for _, f := range []struct {
		name string
		data json.RawMessage
		dst  **Property
	}{
		{"red", raw.Red, &c.Red},
		{"green", raw.Green, &c.Green},
		{"blue", raw.Blue, &c.Blue},
		{"hue", raw.Hue, &c.Hue},
		{"brightness", raw.Brightness, &c.Brightness},
		{"saturation", raw.Saturation, &c.Saturation},
		{"alpha", raw.Alpha, &c.Alpha},
		{"opacity", raw.Opacity, &c.Opacity},
	} {
		p, err := parseOptional(f.data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = p
	}
	return c, nil
}

// =============================================================================
// Properties
// =============================================================================

func isAbsent(data json.RawMessage) bool {
	d := bytes.TrimSpace(data)
	return len(d) == 0 || string(d) == "null"
}

func parseOptional(data json.RawMessage) (*Property, error) {
	if isAbsent(data) {
		return nil, nil
	}
	p, err := ParseProperty(data)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type rawLeverRef struct {
	TokenID json.Number `json:"tokenId"`
	LeverID json.Number `json:"leverId"`
}

type rawHandler struct {
	Type     string          `json:"type"`
	MaxBound json.Number     `json:"max_bound_inclusive"`
	Rules    [][]json.Number `json:"rules"`
}

// ParseProperty parses one dynamic property. Objects are matched against the
// known sources in a fixed precedence order: lever, price, random, combo,
// time. Absent values and objects matching no source parse as
// [SourceUnknown], which resolves to 0 rather than failing.
func ParseProperty(data json.RawMessage) (Property, error) {
	d := bytes.TrimSpace(data)
	if isAbsent(d) {
		return Property{Source: SourceUnknown}, nil
	}

	switch d[0] {
	case '{':
		return parsePropertyObject(d)
	case '"':
		var s string
		if err := json.Unmarshal(d, &s); err != nil {
			return Property{}, errors.Wrap(errors.ErrCodeInvalidLayout, err, "decode property")
		}
		n, err := numberToInt(json.Number(strings.TrimSpace(s)))
		if err != nil {
			return Property{Source: SourceUnknown}, nil
		}
		return Literal(n), nil
	case 't':
		return Literal(1), nil
	case 'f':
		return Literal(0), nil
	default:
		n, err := numberToInt(json.Number(d))
		if err != nil {
			return Property{}, errors.Wrap(errors.ErrCodeInvalidLayout, err, "decode property %s", d)
		}
		return Literal(n), nil
	}
}

func parsePropertyObject(d []byte) (Property, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(d, &fields); err != nil {
		return Property{}, errors.Wrap(errors.ErrCodeInvalidLayout, err, "decode property")
	}

	if tok, ok := fields["token-id"]; ok {
		ref, err := parseLeverRef(tok, fields["lever-id"])
		if err != nil {
			return Property{}, err
		}
		return Property{Source: SourceLever, Lever: ref}, nil
	}

	if raw, ok := fields["currency_price"]; ok {
		var v struct {
			Handler rawHandler `json:"handler"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return Property{}, errors.Wrap(errors.ErrCodeInvalidLayout, err, "decode currency_price")
		}
		h, err := v.Handler.handler()
		if err != nil {
			return Property{}, err
		}
		return PriceProperty(h), nil
	}

	if raw, ok := fields["random"]; ok {
		var v struct {
			Max     json.Number `json:"max_value_inclusive"`
			Handler rawHandler  `json:"handler"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return Property{}, errors.Wrap(errors.ErrCodeInvalidLayout, err, "decode random")
		}
		max, err := numberToInt(v.Max)
		if err != nil {
			return Property{}, errors.Wrap(errors.ErrCodeInvalidLayout, err, "random max_value_inclusive")
		}
		h, err := v.Handler.handler()
		if err != nil {
			return Property{}, err
		}
		return RandomProperty(max, h), nil
	}

	if raw, ok := fields["combo_layer"]; ok {
		var v struct {
			Tokens  []rawLeverRef `json:"tokens"`
			Handler rawHandler    `json:"handler"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return Property{}, errors.Wrap(errors.ErrCodeInvalidLayout, err, "decode combo_layer")
		}
		refs := make([]LeverRef, 0, len(v.Tokens))
		for _, t := range v.Tokens {
			ref, err := parseLeverRef(json.RawMessage(t.TokenID), json.RawMessage(t.LeverID))
			if err != nil {
				return Property{}, err
			}
			refs = append(refs, ref)
		}
		h, err := v.Handler.handler()
		if err != nil {
			return Property{}, err
		}
		return ComboProperty(h, refs...), nil
	}

	if raw, ok := fields["time"]; ok {
		var v struct {
			Type    string     `json:"type"`
			Handler rawHandler `json:"handler"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return Property{}, errors.Wrap(errors.ErrCodeInvalidLayout, err, "decode time")
		}
		h, err := v.Handler.handler()
		if err != nil {
			return Property{}, err
		}
		return TimeProperty(TimeUnit(v.Type), h), nil
	}

	return Property{Source: SourceUnknown}, nil
}

func parseLeverRef(tokenID, leverID json.RawMessage) (LeverRef, error) {
	tok, err := numberToInt(json.Number(bytes.TrimSpace(tokenID)))
	if err != nil {
		return LeverRef{}, errors.Wrap(errors.ErrCodeInvalidLayout, err, "token-id %s", tokenID)
	}
	lever, err := numberToInt(json.Number(bytes.TrimSpace(leverID)))
	if err != nil {
		return LeverRef{}, errors.Wrap(errors.ErrCodeInvalidLayout, err, "lever-id %s", leverID)
	}
	if lever < 0 {
		return LeverRef{}, errors.New(errors.ErrCodeInvalidLayout, "lever-id %d is negative", lever)
	}
	if lever > MaxLeverID {
		return LeverRef{}, errors.New(errors.ErrCodeInvalidLayout, "lever-id %d exceeds %d", lever, MaxLeverID)
	}
	return LeverRef{TokenID: tok, LeverID: int(lever)}, nil
}

func (h rawHandler) handler() (Handler, error) {
	switch h.Type {
	case "MODULO":
		max, err := numberToInt(h.MaxBound)
		if err != nil {
			return Handler{}, errors.Wrap(errors.ErrCodeInvalidLayout, err, "max_bound_inclusive")
		}
		return Modulo(max), nil
	case "CUSTOM":
		rules := make([]Rule, 0, len(h.Rules))
		for i, r := range h.Rules {
			if len(r) != 3 {
				return Handler{}, errors.New(errors.ErrCodeInvalidLayout, "custom rule %d has %d fields, want 3", i, len(r))
			}
			var vals [3]int64
			for j := range r {
				n, err := numberToInt(r[j])
				if err != nil {
					return Handler{}, errors.Wrap(errors.ErrCodeInvalidLayout, err, "custom rule %d", i)
				}
				vals[j] = n
			}
			rules = append(rules, Rule{Min: vals[0], Max: vals[1], Output: vals[2]})
		}
		return Custom(rules...), nil
	default:
		return Handler{Kind: HandlerNone}, nil
	}
}

// numberToInt converts a JSON number to an integer, rounding fractions half
// away from zero.
func numberToInt(n json.Number) (int64, error) {
	s := strings.TrimSpace(string(n))
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite number %s", s)
	}
	f = math.Round(f)
	// 2^63 is the first float64 outside int64.
	if f >= 1<<63 || f < -(1<<63) {
		return 0, fmt.Errorf("number %s out of range", s)
	}
	return int64(f), nil
}

// flexString accepts ids written as strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	d := bytes.TrimSpace(data)
	if len(d) == 0 || string(d) == "null" {
		*f = ""
		return nil
	}
	if d[0] == '"' {
		var s string
		if err := json.Unmarshal(d, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(d)
	return nil
}
