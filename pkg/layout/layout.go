package layout

import (
	"github.com/matzehuels/strata/pkg/raster"
)

// Layout is an ordered stack of layers, drawn back to front.
type Layout struct {
	// Version selects the orbit-rotation formula; see [OrbitFormula].
	Version int

	// Layers in draw order. Anchors may only point backwards in this slice.
	Layers []Node
}

// Node is a layer in a layout: a [*StateNode] or a [*Leaf].
//
// The set of implementations is closed; consumers type-switch on the two
// concrete types.
type Node interface {
	// NodeID returns the layer id, which may be empty for state options.
	NodeID() string

	node()
}

// StateNode is a layer whose concrete variant is picked at render time.
// Selector resolves to an index into Options; options may themselves be
// state nodes.
type StateNode struct {
	ID       string
	Selector Property
	Options  []Node
}

// NodeID implements [Node].
func (s *StateNode) NodeID() string { return s.ID }
func (*StateNode) node()            {}

// Leaf is a concrete layer: an image asset, a blank canvas of fixed size, or
// a text node. Every pointer field is optional.
type Leaf struct {
	ID string

	// Asset is the opaque content reference handed to the asset store.
	Asset string

	// Width and Height size a blank canvas when Asset is empty.
	Width, Height int

	Scale            *Vector
	FixedRotation    *Rotation
	OrbitRotation    *Property
	Mirror           *Vector
	Anchor           string
	FixedPosition    *Vector
	RelativePosition *Vector
	Visible          *Property
	Color            *Color
	BlendMode        raster.BlendMode
	Text             *Text
}

// NodeID implements [Node].
func (l *Leaf) NodeID() string { return l.ID }
func (*Leaf) node()            {}

// IsText reports whether the leaf draws text instead of an image.
func (l *Leaf) IsText() bool { return l.Text != nil }

// IsDrawable reports whether the leaf produces pixels at all. Leaves with
// neither an asset nor a size only carry audio and are skipped by the image
// renderer.
func (l *Leaf) IsDrawable() bool {
	return l.Text != nil || l.Asset != "" || (l.Width > 0 && l.Height > 0)
}

// Vector is a pair of dynamic properties, used for positions, scale and
// mirror flags.
type Vector struct {
	X, Y Property
}

// Rotation is a fixed rotation in degrees with an optional multiplier.
type Rotation struct {
	Angle      Property
	Multiplier *Property
}

// Color is the set of colour operations applied to a leaf. Operations are
// applied in the order the fields are declared.
type Color struct {
	Red, Green, Blue *Property
	Hue              *Property
	Brightness       *Property
	Saturation       *Property
	Alpha            *Property
	Opacity          *Property

	Multiply   bool
	HardLight  bool
	Lighten    bool
	Overlay    bool
	Difference bool
	Exclusion  bool
	Screen     bool
}

// Mode returns the blend mode selected by the colour flags, starting from
// base. Flags are checked in a fixed sequence and the last one set wins.
func (c *Color) Mode(base raster.BlendMode) raster.BlendMode {
	if c == nil {
		return base
	}
	mode := base
	for _, f := range []struct {
		set  bool
		mode raster.BlendMode
	}{
		{c.Multiply, raster.BlendMultiply},
		{c.HardLight, raster.BlendHardLight},
		{c.Lighten, raster.BlendLighten},
		{c.Overlay, raster.BlendOverlay},
		{c.Difference, raster.BlendDifference},
		{c.Exclusion, raster.BlendExclusion},
		{c.Screen, raster.BlendScreen},
	} {
		if f.set {
			mode = f.mode
		}
	}
	return mode
}

// Text is a text node drawn with a named font.
type Text struct {
	Font    string
	Content string
	X, Y    Property

	// CenterH centers the text horizontally on X.
	CenterH bool
}

// OrbitFormula names the rotated-Y formula used for orbit rotation.
type OrbitFormula int

const (
	// OrbitRotatedX computes the rotated Y from the already-rotated X.
	OrbitRotatedX OrbitFormula = iota
	// OrbitOriginalX computes the rotated Y from the pre-rotation X.
	OrbitOriginalX
)

// OrbitFormula returns the orbit formula for the layout version. Version 1
// layouts (and unversioned ones, which parse as 1) compute the rotated Y
// from the already rotated X, a quirk of the first renderer that existing
// version 1 art was authored against. Later versions use the pre-rotation
// X, which is the correct rotation.
func (l *Layout) OrbitFormula() OrbitFormula {
	if l.Version <= 1 {
		return OrbitRotatedX
	}
	return OrbitOriginalX
}

// Walk calls fn for every node in the layout, depth first, passing the index
// of the top-level layer the node belongs to. Walk stops at the first error.
func (l *Layout) Walk(fn func(layer int, n Node) error) error {
	for i, n := range l.Layers {
		if err := walkNode(n, func(n Node) error { return fn(i, n) }); err != nil {
			return err
		}
	}
	return nil
}

// Assets returns every distinct asset reference in the layout, in first-seen
// order. The renderer only fetches the active ones; this is the upper bound.
// It fails like [Layout.Walk] on a state with an empty option.
func (l *Layout) Assets() ([]string, error) {
	seen := make(map[string]bool)
	var refs []string
	err := l.Walk(func(_ int, n Node) error {
		if leaf, ok := n.(*Leaf); ok && leaf.Asset != "" && !seen[leaf.Asset] {
			seen[leaf.Asset] = true
			refs = append(refs, leaf.Asset)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}
