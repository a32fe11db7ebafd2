package assets

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultPrefetchLimit bounds concurrent downloads.
const DefaultPrefetchLimit = 8

// Prefetch fetches refs concurrently from store, at most limit at a time,
// and returns them as a [Memory] store. The first failure cancels the rest
// and is returned. Duplicate refs are fetched once.
func Prefetch(ctx context.Context, store Store, refs []string, limit int) (Memory, error) {
	if limit <= 0 {
		limit = DefaultPrefetchLimit
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	out := make(Memory, len(refs))
	seen := make(map[string]bool, len(refs))

	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		g.Go(func() error {
			data, err := store.Fetch(ctx, ref)
			if err != nil {
				return err
			}
			mu.Lock()
			out[ref] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
