package audio

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/layout"
	"github.com/matzehuels/strata/pkg/levers"
	"github.com/matzehuels/strata/pkg/measure"
	"github.com/matzehuels/strata/pkg/token"
)

func TestEvalArithmetic(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"2", 2},
		{"4.12402+(2-3)", 3.12402},
		{"(-(-3.9)+2)", 5.9},
		{"-1-1", -2},
		{"--1", 1},
		{"+(1)", 1},
		{"((((1))))+.5", 1.5},
		{"10-2-3", 5},
	}
	for _, tt := range tests {
		got, err := EvalArithmetic(tt.expr)
		require.NoError(t, err, tt.expr)
		assert.InDelta(t, tt.want, got, 1e-9, tt.expr)
	}
}

func TestEvalArithmeticRejects(t *testing.T) {
	for _, expr := range []string{
		"",
		"1*2",
		"process.exit()",
		"(1",
		"1)",
		"1..2",
		"1 + 2",
		"-",
		"()",
		strings.Repeat("(", 100) + "1" + strings.Repeat(")", 100),
		strings.Repeat("-", 100) + "1",
	} {
		_, err := EvalArithmetic(expr)
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidExpression), "%q: err = %v", expr, err)
	}
}

func TestCompressionFilter(t *testing.T) {
	tests := []struct {
		name      string
		eq        string
		threshold float64
		maxVol    float64
		want      string
	}{
		{
			"makeup last",
			"acompressor=threshold={threshold}:ratio=2:makeup=(-{maxVolume}+2)",
			0.5, -3.9,
			"acompressor=threshold=0.5:ratio=2:makeup=5.9",
		},
		{
			"makeup followed by options",
			"acompressor=makeup=({maxVolume}+1):threshold={threshold}:ratio=4",
			0.25, 2,
			"acompressor=makeup=3:threshold=0.25:ratio=4",
		},
		{
			"no makeup",
			"acompressor=threshold={threshold}",
			1, 0,
			"acompressor=threshold=1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CompressionFilter(tt.eq, tt.threshold, tt.maxVol)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := CompressionFilter("acompressor=makeup=require('fs')", 0, 0)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidExpression))
}

const audioDoc = `{
	"layout": {"layers": []},
	"audio-layout": {
		"layers": [
			{"id": "drums", "states": {"token-id": 1, "lever-id": 0, "options": [{"uri": "drums-a.wav"}, {"uri": "drums-b.wav"}]}},
			{"id": "bass", "states": {"token-id": 1, "lever-id": 1, "options": [{"uri": "bass-a.mp3"}, {}]}},
			{"id": "keys", "uri": "keys.wav"}
		],
		"mastering": {"bitrate": "320k"}
	}
}`

func testTokens(t *testing.T, bass int64) *token.Context {
	t.Helper()
	return token.New(token.Options{
		MasterID:  100,
		Store:     levers.NewMemory(levers.Record{TokenID: 101, Values: []int64{0, 1, 1, 0, 1, bass}}),
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
	})
}

func TestStems(t *testing.T) {
	doc, err := layout.ParseDocument([]byte(audioDoc))
	require.NoError(t, err)
	require.NotNil(t, doc.Audio)

	res := measure.NewResolver(testTokens(t, 0), nil)
	refs, err := Stems(context.Background(), res, doc.Audio)
	require.NoError(t, err)
	assert.Equal(t, []string{"drums-b.wav", "bass-a.mp3", "keys.wav"}, refs)
	assert.Equal(t, []int64{1, 0}, res.Trace.Values())

	res = measure.NewResolver(testTokens(t, 1), nil)
	refs, err = Stems(context.Background(), res, doc.Audio)
	require.NoError(t, err)
	assert.Equal(t, []string{"drums-b.wav", "keys.wav"}, refs, "empty option skipped")
}

var wavHeader = []byte("RIFF\x24\x00\x00\x00WAVEfmt ")

type memAssets map[string][]byte

func (m memAssets) Fetch(_ context.Context, ref string) ([]byte, error) {
	if d, ok := m[ref]; ok {
		return d, nil
	}
	return nil, errors.New(errors.ErrCodeNotFound, "%s", ref)
}

type recordingEncoder struct {
	sources []Source
	preset  Preset
}

func (e *recordingEncoder) Encode(_ context.Context, sources []Source, preset Preset) (*Artifact, error) {
	e.sources, e.preset = sources, preset
	return &Artifact{Data: []byte("mix"), ContentType: "audio/mpeg"}, nil
}

func TestRendererHDFallback(t *testing.T) {
	doc, err := layout.ParseDocument([]byte(audioDoc))
	require.NoError(t, err)

	assets := memAssets{
		"drums-b.wav": wavHeader,
		"bass-a.mp3":  []byte("ID3\x03\x00"),
		"keys.wav":    wavHeader,
	}
	enc := &recordingEncoder{}
	r := &Renderer{Assets: assets, Encoder: enc}

	art, trace, err := r.Render(context.Background(), doc.Audio, testTokens(t, 0), Preset{HD: true, Title: "Genesis"})
	require.NoError(t, err)
	assert.Equal(t, "mix", string(art.Data))
	assert.Equal(t, 2, trace.Len())
	assert.Len(t, enc.sources, 3)
	assert.False(t, enc.preset.HD, "mp3 stem disables HD")
	assert.Equal(t, "320k", enc.preset.Mastering.Bitrate)

	_, _, err = r.Render(context.Background(), doc.Audio, testTokens(t, 1), Preset{HD: true})
	require.NoError(t, err)
	assert.True(t, enc.preset.HD, "all-WAV stems keep HD")
}

func TestRendererFailures(t *testing.T) {
	doc, err := layout.ParseDocument([]byte(audioDoc))
	require.NoError(t, err)

	r := &Renderer{Assets: memAssets{}, Encoder: &recordingEncoder{}}
	_, _, err = r.Render(context.Background(), doc.Audio, testTokens(t, 0), Preset{})
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "missing stem: %v", err)

	r.Encoder = nil
	_, _, err = r.Render(context.Background(), doc.Audio, testTokens(t, 0), Preset{})
	assert.True(t, errors.Is(err, errors.ErrCodeUnsupported))

	_, _, err = (&Renderer{Encoder: &recordingEncoder{}}).Render(context.Background(), nil, testTokens(t, 0), Preset{})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidLayout))
}
