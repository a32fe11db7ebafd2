// Package price provides the price feeds behind PRICE measures.
package price

import (
	"context"
	"encoding/json"

	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/httputil"
	"github.com/matzehuels/strata/pkg/token"
)

// Static always reports the same price.
type Static float64

// CurrentPrice implements [token.PriceFeed].
func (s Static) CurrentPrice(context.Context) (float64, error) { return float64(s), nil }

// HTTP reads the price from a JSON endpoint answering {"price": <number>}.
type HTTP struct {
	URL    string
	Client *httputil.Client
}

// NewHTTP returns a feed polling url.
func NewHTTP(url string) (*HTTP, error) {
	if err := errors.ValidateURL(url); err != nil {
		return nil, err
	}
	return &HTTP{URL: url, Client: httputil.NewClient()}, nil
}

type response struct {
	Price *float64 `json:"price"`
}

// CurrentPrice implements [token.PriceFeed].
func (h *HTTP) CurrentPrice(ctx context.Context) (float64, error) {
	client := h.Client
	if client == nil {
		client = httputil.NewClient()
	}
	body, err := client.Get(ctx, h.URL)
	if err != nil {
		return 0, err
	}
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return 0, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode price response")
	}
	if r.Price == nil {
		return 0, errors.New(errors.ErrCodeInvalidFormat, "price response has no price field")
	}
	return *r.Price, nil
}

var (
	_ token.PriceFeed = Static(0)
	_ token.PriceFeed = (*HTTP)(nil)
)
