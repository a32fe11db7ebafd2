package token

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/matzehuels/strata/pkg/errors"
)

// LeverStore fetches control tokens. Implementations return an error with
// code [errors.ErrCodeNotFound] when the token has not been minted; any
// other error is fatal for the render.
type LeverStore interface {
	ControlToken(ctx context.Context, tokenID, block int64) (ControlToken, error)
}

// PriceFeed returns the current external price.
type PriceFeed interface {
	CurrentPrice(ctx context.Context) (float64, error)
}

// Clock supplies the wall-clock time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system clock.
type SystemClock struct{}

// Now implements [Clock].
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now implements [Clock].
func (c FixedClock) Now() time.Time { return time.Time(c) }

// LatestBlock asks the lever store for the most recent values.
const LatestBlock int64 = -1

// Options configures a [Context].
type Options struct {
	// MasterID is added to every relative token id in the layout.
	MasterID int64

	// Block pins lever reads to a block height. Zero and LatestBlock read
	// the latest values.
	Block int64

	Store  LeverStore
	Prices PriceFeed
	Clock  Clock

	// Offset is added to the clock reading, in seconds.
	Offset int64

	// Fallback holds default tokens for unminted tokens, keyed by
	// relative id.
	Fallback map[int64]ControlToken

	// Prefetched seeds the lever cache, keyed by absolute id.
	Prefetched map[int64]ControlToken

	// Timestamp pins the render timestamp (unix seconds). Zero means
	// "read the clock".
	Timestamp int64
}

// Context is the per-render token state.
type Context struct {
	masterID int64
	block    int64
	store    LeverStore
	prices   PriceFeed
	clock    Clock
	offset   int64
	fallback map[int64]ControlToken

	shared *shared
	rng    *rand.Rand
}

// shared is the part of a context that forks see as well.
type shared struct {
	mu        sync.Mutex
	tokens    map[int64]ControlToken
	timestamp int64
	price     *float64
}

// New creates a context.
func New(opts Options) *Context {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Block == 0 {
		opts.Block = LatestBlock
	}
	tokens := make(map[int64]ControlToken, len(opts.Prefetched))
	for id, t := range opts.Prefetched {
		tokens[id] = t
	}
	return &Context{
		masterID: opts.MasterID,
		block:    opts.Block,
		store:    opts.Store,
		prices:   opts.Prices,
		clock:    opts.Clock,
		offset:   opts.Offset,
		fallback: opts.Fallback,
		shared:   &shared{tokens: tokens, timestamp: opts.Timestamp},
	}
}

// MasterID returns the master token id.
func (c *Context) MasterID() int64 { return c.masterID }

// Block returns the pinned block height, or LatestBlock.
func (c *Context) Block() int64 { return c.block }

// Fork returns a context that shares this one's lever cache, timestamp and
// price reading but has its own random generator, seeded identically. A
// render on the fork draws the same random sequence as a render on c.
func (c *Context) Fork() *Context {
	c.Timestamp()
	f := *c
	f.rng = nil
	return &f
}

// ControlToken returns the control token for a relative token id. The
// first lookup of each absolute id hits the store; later lookups come from
// the cache. Unminted tokens fall back to the fallback table.
func (c *Context) ControlToken(ctx context.Context, relativeID int64) (ControlToken, error) {
	id := relativeID + c.masterID

	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	if t, ok := c.shared.tokens[id]; ok {
		return t, nil
	}

	var t ControlToken
	if c.store != nil {
		var err error
		t, err = c.store.ControlToken(ctx, id, c.block)
		if err != nil && !errors.Is(err, errors.ErrCodeNotFound) {
			return nil, errors.Wrap(errors.ErrCodeLeverUnavailable, err, "fetch token %d", id)
		}
	}
	if t == nil {
		fb, ok := c.fallback[relativeID]
		if !ok {
			return nil, errors.New(errors.ErrCodeLeverUnavailable,
				"token %d (relative %d) is not minted and has no fallback", id, relativeID)
		}
		t = fb
	}
	c.shared.tokens[id] = t
	return t, nil
}

// Lever returns the current value of a lever on a relative token.
func (c *Context) Lever(ctx context.Context, relativeID int64, leverID int) (int64, error) {
	t, err := c.ControlToken(ctx, relativeID)
	if err != nil {
		return 0, err
	}
	v, err := t.Lever(leverID)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInvalidLever, err, "token %d", relativeID+c.masterID)
	}
	return v, nil
}

// Timestamp returns the render timestamp in unix seconds: the clock reading
// plus the offset, read once and cached.
func (c *Context) Timestamp() int64 {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	if c.shared.timestamp == 0 {
		now := c.clock.Now()
		c.shared.timestamp = int64(math.Round(float64(now.UnixMilli())/1000)) + c.offset
	}
	return c.shared.timestamp
}

// Time returns the render timestamp as a UTC time.
func (c *Context) Time() time.Time {
	return time.Unix(c.Timestamp(), 0).UTC()
}

// RandomInt draws a uniform integer in [0, maxInclusive] from the context's
// generator. The generator is seeded from the render timestamp on first use;
// draws must happen in a fixed order for renders to be reproducible.
func (c *Context) RandomInt(maxInclusive int64) int64 {
	if maxInclusive <= 0 {
		return 0
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(uint64(c.Timestamp()), 0))
	}
	// Uint64N draws the same sequence as Int64N and takes MaxInt64+1.
	return int64(c.rng.Uint64N(uint64(maxInclusive) + 1))
}

// Price returns the current price from the feed. The first reading is kept
// for the rest of the render and shared with forks.
func (c *Context) Price(ctx context.Context) (float64, error) {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	if c.shared.price != nil {
		return *c.shared.price, nil
	}
	if c.prices == nil {
		return 0, errors.New(errors.ErrCodeUnsupported, "no price feed configured")
	}
	p, err := c.prices.CurrentPrice(ctx)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeNetwork, err, "read price")
	}
	c.shared.price = &p
	return p, nil
}

// Snapshot returns a copy of the lever cache, keyed by absolute id. It can
// seed [Options.Prefetched] for a later render of the same artifact.
func (c *Context) Snapshot() map[int64]ControlToken {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	out := make(map[int64]ControlToken, len(c.shared.tokens))
	for id, t := range c.shared.tokens {
		out[id] = t
	}
	return out
}
