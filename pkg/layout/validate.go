package layout

import (
	"github.com/matzehuels/strata/pkg/errors"
)

// Validate checks the structural invariants the renderer depends on:
//   - top-level layer ids are unique
//   - every anchor names a top-level layer that appears earlier in layout
//     order, which also rules out self and cyclic anchors
//   - a leaf does not combine text with an asset
//   - custom handler rules have ordered bounds
//
// Layouts returned by [Parse] are already validated.
func (l *Layout) Validate() error {
	if l == nil {
		return errors.New(errors.ErrCodeInvalidLayout, "layout is nil")
	}

	seen := make(map[string]int, len(l.Layers))
	for i, n := range l.Layers {
		if n == nil {
			return errors.New(errors.ErrCodeInvalidLayout, "layer %d is empty", i)
		}

		err := walkNode(n, func(n Node) error {
			switch t := n.(type) {
			case *StateNode:
				return validateProperty(t.Selector, t.ID)
			case *Leaf:
				return validateLeaf(t, seen)
			}
			return nil
		})
		if err != nil {
			return err
		}

		if id := n.NodeID(); id != "" {
			if prev, dup := seen[id]; dup {
				return errors.New(errors.ErrCodeInvalidLayout, "layer id %q used by layers %d and %d", id, prev, i)
			}
			seen[id] = i
		}
	}
	return nil
}

func walkNode(n Node, fn func(Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	if s, ok := n.(*StateNode); ok {
		for _, opt := range s.Options {
			if opt == nil {
				return errors.New(errors.ErrCodeInvalidLayout, "state %q has an empty option", s.ID)
			}
			if err := walkNode(opt, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateLeaf(leaf *Leaf, earlier map[string]int) error {
	if leaf.Anchor != "" {
		if _, ok := earlier[leaf.Anchor]; !ok {
			return errors.New(errors.ErrCodeInvalidAnchor,
				"layer %q anchors to %q, which is not an earlier layer", leaf.ID, leaf.Anchor)
		}
	}
	if leaf.Text != nil && leaf.Asset != "" {
		return errors.New(errors.ErrCodeInvalidLayout, "layer %q has both text and an asset", leaf.ID)
	}

	for _, p := range leafProperties(leaf) {
		if err := validateProperty(*p, leaf.ID); err != nil {
			return err
		}
	}
	return nil
}

func validateProperty(p Property, owner string) error {
	if p.Source == SourceRandom && p.Max < 0 {
		return errors.New(errors.ErrCodeInvalidLayout, "layer %q: random max %d is negative", owner, p.Max)
	}
	if p.Handler.Kind == HandlerCustom {
		for i, r := range p.Handler.Rules {
			if r.Min > r.Max {
				return errors.New(errors.ErrCodeInvalidLayout,
					"layer %q: custom rule %d has min %d > max %d", owner, i, r.Min, r.Max)
			}
		}
	}
	return nil
}

// leafProperties lists every property of a leaf in render visitation order.
func leafProperties(leaf *Leaf) []*Property {
	var ps []*Property
	add := func(p *Property) {
		if p != nil {
			ps = append(ps, p)
		}
	}
	addVec := func(v *Vector) {
		if v != nil {
			ps = append(ps, &v.X, &v.Y)
		}
	}

	add(leaf.Visible)
	addVec(leaf.Scale)
	if leaf.FixedRotation != nil {
		add(&leaf.FixedRotation.Angle)
		add(leaf.FixedRotation.Multiplier)
	}
	addVec(leaf.Mirror)
	addVec(leaf.FixedPosition)
	addVec(leaf.RelativePosition)
	add(leaf.OrbitRotation)
	if c := leaf.Color; c != nil {
		add(c.Red)
		add(c.Green)
		add(c.Blue)
		add(c.Hue)
		add(c.Brightness)
		add(c.Saturation)
		add(c.Alpha)
		add(c.Opacity)
	}
	if t := leaf.Text; t != nil {
		add(&t.X)
		add(&t.Y)
	}
	return ps
}
