package engine

import (
	"context"

	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/layout"
	"github.com/matzehuels/strata/pkg/measure"
)

// ResolveVariant walks a layer's state tree down to the active leaf. Each
// state node's selector is resolved to an index into its options. A state
// node without options yields a nil leaf and no error.
func ResolveVariant(ctx context.Context, res *measure.Resolver, n layout.Node) (*layout.Leaf, error) {
	for {
		switch t := n.(type) {
		case *layout.Leaf:
			return t, nil
		case *layout.StateNode:
			if len(t.Options) == 0 {
				return nil, nil
			}
			idx, err := res.Resolve(ctx, t.Selector, "layer index")
			if err != nil {
				return nil, err
			}
			if idx < 0 || idx >= int64(len(t.Options)) {
				return nil, errors.New(errors.ErrCodeIndexOutOfRange,
					"layer %q: state index %d out of range [0, %d)", t.ID, idx, len(t.Options))
			}
			n = t.Options[idx]
		default:
			return nil, errors.New(errors.ErrCodeInvalidLayout, "unexpected layer type %T", n)
		}
	}
}

// Visible resolves a leaf's visibility flag. Leaves without one are visible;
// otherwise only a resolved value of 1 is.
func Visible(ctx context.Context, res *measure.Resolver, leaf *layout.Leaf) (bool, error) {
	if leaf.Visible == nil {
		return true, nil
	}
	return res.ResolveBool(ctx, *leaf.Visible, "layer visible")
}
