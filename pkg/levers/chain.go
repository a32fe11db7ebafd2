package levers

import (
	"context"

	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/token"
)

// DefaultLegacyCutoff is the highest token id issued under the first
// contract.
const DefaultLegacyCutoff int64 = 347

// Chain reads from Primary and, for token ids at or below Cutoff that
// Primary does not know, from Legacy.
type Chain struct {
	Primary token.LeverStore
	Legacy  token.LeverStore
	Cutoff  int64
}

// NewChain returns a chain with the default cut-off.
func NewChain(primary, legacy token.LeverStore) *Chain {
	return &Chain{Primary: primary, Legacy: legacy, Cutoff: DefaultLegacyCutoff}
}

// ControlToken implements [token.LeverStore].
func (c *Chain) ControlToken(ctx context.Context, tokenID, block int64) (token.ControlToken, error) {
	t, err := c.Primary.ControlToken(ctx, tokenID, block)
	if err == nil || !errors.Is(err, errors.ErrCodeNotFound) {
		return t, err
	}
	if c.Legacy == nil || tokenID > c.Cutoff {
		return nil, err
	}
	return c.Legacy.ControlToken(ctx, tokenID, block)
}

var _ token.LeverStore = (*Chain)(nil)
