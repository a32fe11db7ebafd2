package engine

import (
	"context"
	"image"
	"math"

	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/layout"
	"github.com/matzehuels/strata/pkg/raster"
)

// Placement is where a layer was drawn.
type Placement struct {
	// Layer is the id of the top-level layer. It is empty for unnamed
	// layers, which cannot be anchored to.
	Layer string `json:"layer,omitempty"`

	// CenterX and CenterY are the layer's center on the canvas. Anchored
	// layers position themselves relative to this point.
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`

	// Width and Height are the layer's bounds after scaling and rotation.
	Width  int `json:"width"`
	Height int `json:"height"`

	// X and Y are the canvas coordinates of the layer's top-left corner.
	X int `json:"x"`
	Y int `json:"y"`
}

// Geometry is the side table of placements written during a render. Each
// drawn layer is stamped once; layers that were skipped (invisible, zero
// scale, not drawable) have no entry.
type Geometry struct {
	byID  map[string]int
	order []Placement
}

func newGeometry() *Geometry {
	return &Geometry{byID: make(map[string]int)}
}

func (g *Geometry) stamp(pl Placement) {
	if pl.Layer != "" {
		g.byID[pl.Layer] = len(g.order)
	}
	g.order = append(g.order, pl)
}

// Lookup returns the placement of a top-level layer.
func (g *Geometry) Lookup(id string) (Placement, bool) {
	i, ok := g.byID[id]
	if !ok {
		return Placement{}, false
	}
	return g.order[i], true
}

// Len returns the number of stamped layers.
func (g *Geometry) Len() int { return len(g.order) }

// Placements returns every placement in draw order.
func (g *Geometry) Placements() []Placement {
	out := make([]Placement, len(g.order))
	copy(out, g.order)
	return out
}

// place applies scale, rotation and mirroring to img and computes the
// leaf's placement. ok is false when the layer scales to nothing and must not
// be drawn.
func (p *pass) place(ctx context.Context, layerID string, leaf *layout.Leaf, img image.Image) (image.Image, Placement, bool, error) {
	res := p.res
	w, h := raster.Size(img)

	if s := leaf.Scale; s != nil {
		sx, err := res.Resolve(ctx, s.X, "scale x")
		if err != nil {
			return nil, Placement{}, false, err
		}
		sy, err := res.Resolve(ctx, s.Y, "scale y")
		if err != nil {
			return nil, Placement{}, false, err
		}
		if sx == 0 || sy == 0 {
			p.logger.Debug("zero scale, skipping", "id", layerID)
			return nil, Placement{}, false, nil
		}
		w = int(math.Round(float64(w) * float64(sx) / 100))
		h = int(math.Round(float64(h) * float64(sy) / 100))
		img = p.raster.Resize(img, w, h)
	}

	if r := leaf.FixedRotation; r != nil {
		deg, err := res.Resolve(ctx, r.Angle, "fixed rotation")
		if err != nil {
			return nil, Placement{}, false, err
		}
		if r.Multiplier != nil {
			m, err := res.Resolve(ctx, *r.Multiplier, "rotation multiplier")
			if err != nil {
				return nil, Placement{}, false, err
			}
			deg *= m
		}
		img = p.raster.Rotate(img, float64(deg))
		w, h = raster.Size(img)
	}

	if m := leaf.Mirror; m != nil {
		mx, err := res.ResolveBool(ctx, m.X, "mirror x")
		if err != nil {
			return nil, Placement{}, false, err
		}
		my, err := res.ResolveBool(ctx, m.Y, "mirror y")
		if err != nil {
			return nil, Placement{}, false, err
		}
		img = p.raster.Mirror(img, mx, my)
	}

	var x, y float64
	if leaf.Anchor != "" {
		anchor, ok := p.geo.Lookup(leaf.Anchor)
		if !ok {
			return nil, Placement{}, false, errors.New(errors.ErrCodeInvalidAnchor,
				"layer %q anchors to %q, which has not been drawn", layerID, leaf.Anchor)
		}
		x, y = anchor.CenterX, anchor.CenterY
	}

	if fp := leaf.FixedPosition; fp != nil {
		fx, err := res.Resolve(ctx, fp.X, "fixed position x")
		if err != nil {
			return nil, Placement{}, false, err
		}
		fy, err := res.Resolve(ctx, fp.Y, "fixed position y")
		if err != nil {
			return nil, Placement{}, false, err
		}
		x, y = float64(fx), float64(fy)
	} else {
		var rx, ry int64
		if rp := leaf.RelativePosition; rp != nil {
			var err error
			if rx, err = res.Resolve(ctx, rp.X, "relative position x"); err != nil {
				return nil, Placement{}, false, err
			}
			if ry, err = res.Resolve(ctx, rp.Y, "relative position y"); err != nil {
				return nil, Placement{}, false, err
			}
		}
		if leaf.OrbitRotation != nil {
			theta, err := res.Resolve(ctx, *leaf.OrbitRotation, "orbit rotation")
			if err != nil {
				return nil, Placement{}, false, err
			}
			rx, ry = Orbit(rx, ry, theta, p.layout.OrbitFormula())
		}
		x += float64(rx)
		y += float64(ry)
	}

	pl := Placement{
		Layer:   layerID,
		CenterX: x,
		CenterY: y,
		Width:   w,
		Height:  h,
		X:       int(math.Round(x - float64(w)/2)),
		Y:       int(math.Round(y - float64(h)/2)),
	}
	return img, pl, true, nil
}

// Orbit rotates the offset (x, y) by -theta degrees around the origin,
// rounding each component. The rotated Y is computed from the rotated X
// under [layout.OrbitRotatedX] and from the original X otherwise.
func Orbit(x, y, theta int64, formula layout.OrbitFormula) (int64, int64) {
	rad := -float64(theta) * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	fx, fy := float64(x), float64(y)

	rx := math.Round(fx*cos - fy*sin)
	xForY := fx
	if formula == layout.OrbitRotatedX {
		xForY = rx
	}
	ry := math.Round(fy*cos + xForY*sin)
	return int64(rx), int64(ry)
}
