package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/strata/pkg/cache"
	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/layout"
	"github.com/matzehuels/strata/pkg/levers"
	"github.com/matzehuels/strata/pkg/token"
)

const testDoc = `{
	"layout": {
		"version": 2,
		"layers": [
			{"id": "Bg", "uri": "bg.png"},
			{"id": "Dot", "states": {"token-id": 0, "lever-id": 0, "options": [
				{"uri": "red.png", "fixed-position": {"x": 4, "y": 4}},
				{"uri": "blue.png", "fixed-position": {"x": 4, "y": 4}}
			]}}
		]
	},
	"audio-layout": {
		"layers": [{"id": "beat", "states": {"token-id": 0, "lever-id": 0, "options": [{"uri": "a.wav"}, {"uri": "b.wav"}]}}]
	},
	"async-attributes": {"unminted-token-values": {"0": [0, 1, 0]}}
}`

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type countingAssets struct {
	mu    sync.Mutex
	files map[string][]byte
	calls map[string]int
}

func (a *countingAssets) Fetch(_ context.Context, ref string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[ref]++
	d, ok := a.files[ref]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "asset %s", ref)
	}
	return d, nil
}

func newTestRunner(t *testing.T) (*Runner, *countingAssets) {
	t.Helper()
	a := &countingAssets{
		files: map[string][]byte{
			"bg.png":   solidPNG(t, 8, 8, color.White),
			"red.png":  solidPNG(t, 2, 2, color.RGBA{255, 0, 0, 255}),
			"blue.png": solidPNG(t, 2, 2, color.RGBA{0, 0, 255, 255}),
		},
		calls: map[string]int{},
	}
	fc, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)

	store := levers.NewMemory(levers.Record{TokenID: 12, Values: []int64{0, 1, 1}})
	return NewRunner(a, store, fc, nil), a
}

func testOptions(t *testing.T, master int64) Options {
	t.Helper()
	doc, err := layout.ParseDocument([]byte(testDoc))
	require.NoError(t, err)
	return Options{Slug: "genesis", MasterID: master, Document: doc, Timestamp: 1_700_000_000}
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestExecuteRendersAndCaches(t *testing.T) {
	ctx := context.Background()
	r, a := newTestRunner(t)

	first, err := r.Execute(ctx, testOptions(t, 12))
	require.NoError(t, err)
	assert.False(t, first.CacheInfo.Hit)
	assert.True(t, first.CacheInfo.Stored)
	assert.Equal(t, "1_4_4", first.TraceKey)
	assert.Equal(t, "image/png", first.ContentType)
	assert.Equal(t, []string{"bg.png", "blue.png"}, first.Plan.Assets)

	img := decodePNG(t, first.Artifact)
	assert.Equal(t, image.Rect(0, 0, 8, 8), img.Bounds())
	r32, _, b32, _ := img.At(4, 4).RGBA()
	assert.Equal(t, uint32(0), r32>>8)
	assert.Equal(t, uint32(255), b32>>8)

	second, err := r.Execute(ctx, testOptions(t, 12))
	require.NoError(t, err)
	assert.True(t, second.CacheInfo.Hit)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, first.Artifact, second.Artifact)
	assert.Equal(t, 1, a.calls["blue.png"], "cache hit skips asset fetches")

	opts := testOptions(t, 12)
	opts.Force = true
	forced, err := r.Execute(ctx, opts)
	require.NoError(t, err)
	assert.False(t, forced.CacheInfo.Hit)
	assert.Equal(t, 2, a.calls["blue.png"])
}

func TestExecuteUsesUnmintedFallback(t *testing.T) {
	r, _ := newTestRunner(t)

	// Token 40 is not in the lever store; relative token 0 falls back to
	// the document's unminted values, which select the red dot.
	res, err := r.Execute(context.Background(), testOptions(t, 40))
	require.NoError(t, err)
	assert.Equal(t, "0_4_4", res.TraceKey)
	assert.Equal(t, []string{"bg.png", "red.png"}, res.Plan.Assets)
}

func TestPeekKeyMatchesExecute(t *testing.T) {
	ctx := context.Background()
	r, a := newTestRunner(t)

	plan, key, err := r.Peek(ctx, testOptions(t, 12))
	require.NoError(t, err)
	assert.Empty(t, a.calls, "peek fetches nothing")

	res, err := r.Execute(ctx, testOptions(t, 12))
	require.NoError(t, err)
	assert.Equal(t, key, res.Key)
	assert.True(t, plan.Trace.Equal(res.Plan.Trace))

	other, _ := newTestRunner(t)
	_, key40, err := other.Peek(ctx, testOptions(t, 40))
	require.NoError(t, err)
	assert.NotEqual(t, key, key40, "different lever state, different key")
}

func TestExecuteWithoutPrefetch(t *testing.T) {
	r, a := newTestRunner(t)
	opts := testOptions(t, 12)
	opts.NoPrefetch = true

	_, err := r.Execute(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, a.calls["bg.png"])
}

func TestExecuteJPEG(t *testing.T) {
	r, _ := newTestRunner(t)
	opts := testOptions(t, 12)
	opts.Format = "jpg"

	res, err := r.Execute(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", res.ContentType)
	assert.Equal(t, []byte{0xFF, 0xD8}, res.Artifact[:2])

	asPNG, err := r.Execute(context.Background(), testOptions(t, 12))
	require.NoError(t, err)
	assert.NotEqual(t, res.Key, asPNG.Key, "format is part of the key")
}

func TestExecuteFailures(t *testing.T) {
	ctx := context.Background()

	r, a := newTestRunner(t)
	delete(a.files, "blue.png")
	_, err := r.Execute(ctx, testOptions(t, 12))
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "missing asset: %v", err)

	r, _ = newTestRunner(t)
	r.Levers = failingLevers{}
	_, err = r.Execute(ctx, testOptions(t, 12))
	assert.True(t, errors.Is(err, errors.ErrCodeLeverUnavailable), "lever store down: %v", err)

	r, _ = newTestRunner(t)
	opts := testOptions(t, 12)
	opts.Document = &layout.Document{Layout: &layout.Layout{Version: 2}}
	_, err = r.Execute(ctx, opts)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidLayout), "empty layout: %v", err)
}

type failingLevers struct{}

func (failingLevers) ControlToken(context.Context, int64, int64) (token.ControlToken, error) {
	return nil, errors.New(errors.ErrCodeNetwork, "rpc unavailable")
}

func TestStems(t *testing.T) {
	r, _ := newTestRunner(t)
	stems, err := r.Stems(context.Background(), testOptions(t, 12))
	require.NoError(t, err)
	assert.Equal(t, []string{"b.wav"}, stems)
}

func TestValidateAndSetDefaults(t *testing.T) {
	doc := &layout.Document{Layout: &layout.Layout{Version: 2}}

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"valid", Options{Slug: "genesis-1", Document: doc}, false},
		{"jpeg", Options{Slug: "g", Document: doc, Format: "jpeg", Quality: 80}, false},
		{"missing slug", Options{Document: doc}, true},
		{"bad slug", Options{Slug: "../x", Document: doc}, true},
		{"missing document", Options{Slug: "g"}, true},
		{"negative master", Options{Slug: "g", Document: doc, MasterID: -1}, true},
		{"bad format", Options{Slug: "g", Document: doc, Format: "gif"}, true},
		{"bad quality", Options{Slug: "g", Document: doc, Format: "jpeg", Quality: 101}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.ValidateAndSetDefaults()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAndSetDefaults() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	o := Options{Slug: "g", Document: doc, Format: "jpeg"}
	if err := o.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}
	if o.Quality != 90 || o.Format != "jpeg" || o.Logger == nil {
		t.Errorf("defaults not applied: %+v", o)
	}
}
