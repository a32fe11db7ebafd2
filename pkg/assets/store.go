package assets

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/httputil"
)

// Store fetches encoded images by reference.
type Store interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// normalize validates ref and strips the single leading slash that bucket
// layouts carry.
func normalize(ref string) (string, error) {
	if err := errors.ValidateAssetRef(ref); err != nil {
		return "", err
	}
	return strings.TrimPrefix(ref, "/"), nil
}

// DirStore serves assets from a local directory.
type DirStore struct {
	Root string
}

// NewDirStore returns a store rooted at root.
func NewDirStore(root string) *DirStore { return &DirStore{Root: root} }

// Fetch implements [Store].
func (s *DirStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, err := normalize(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.Root, filepath.FromSlash(rel)))
	if os.IsNotExist(err) {
		return nil, errors.New(errors.ErrCodeNotFound, "asset %s not found in %s", ref, s.Root)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "read asset %s", ref)
	}
	return data, nil
}

// HTTPStore fetches assets from a gateway, e.g. an IPFS gateway serving
// content ids below BaseURL.
type HTTPStore struct {
	BaseURL string
	Client  *httputil.Client
}

// NewHTTPStore returns a store for baseURL with the default client.
func NewHTTPStore(baseURL string) (*HTTPStore, error) {
	if err := errors.ValidateURL(baseURL); err != nil {
		return nil, err
	}
	return &HTTPStore{BaseURL: baseURL, Client: httputil.NewClient()}, nil
}

// Fetch implements [Store].
func (s *HTTPStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	rel, err := normalize(ref)
	if err != nil {
		return nil, err
	}
	u, err := httputil.Join(s.BaseURL, rel)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "asset url")
	}
	client := s.Client
	if client == nil {
		client = httputil.NewClient()
	}
	return client.Get(ctx, u)
}

// Memory serves assets from a map. It is the result of [Prefetch] and the
// store tests use.
type Memory map[string][]byte

// Fetch implements [Store].
func (m Memory) Fetch(_ context.Context, ref string) ([]byte, error) {
	data, ok := m[ref]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "asset %s not prefetched", ref)
	}
	return data, nil
}

var (
	_ Store = (*DirStore)(nil)
	_ Store = (*HTTPStore)(nil)
	_ Store = Memory(nil)
)
