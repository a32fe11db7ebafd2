package audio

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"

	"github.com/matzehuels/strata/pkg/engine"
	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/layout"
	"github.com/matzehuels/strata/pkg/measure"
	"github.com/matzehuels/strata/pkg/token"
)

// Source is one stem handed to the encoder.
type Source struct {
	Ref  string
	Data []byte
}

// Preset describes the wanted output.
type Preset struct {
	Mastering layout.Mastering
	Title     string
	Artist    string

	// HD asks for a lossless mix. It is only honoured when every source
	// is a WAV file.
	HD bool
}

// Artifact is an encoded mix.
type Artifact struct {
	Data        []byte
	ContentType string
}

// Encoder mixes and masters stems. Implementations wrap an external tool
// such as ffmpeg.
type Encoder interface {
	Encode(ctx context.Context, sources []Source, preset Preset) (*Artifact, error)
}

// AssetStore fetches stems by reference.
type AssetStore interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Stems resolves the active stem of every audio layer, in layer order.
// Layers whose active option has no uri are skipped. Every selector read is
// recorded in res's trace.
func Stems(ctx context.Context, res *measure.Resolver, al *layout.AudioLayout) ([]string, error) {
	if al == nil {
		return nil, nil
	}
	var refs []string
	for i, n := range al.Layers {
		leaf, err := engine.ResolveVariant(ctx, res, n)
		if err != nil {
			return nil, fmt.Errorf("audio layer %d: %w", i, err)
		}
		if leaf == nil || leaf.Asset == "" {
			continue
		}
		refs = append(refs, leaf.Asset)
	}
	return refs, nil
}

// IsWAV reports whether data is a WAV file.
func IsWAV(data []byte) bool {
	return filetype.IsType(data, matchers.TypeWav)
}

// Renderer resolves and encodes audio layouts.
type Renderer struct {
	Assets  AssetStore
	Encoder Encoder
	Logger  *log.Logger
}

// Render resolves the stems of al against tokens, fetches them and encodes
// the mix. An HD request whose sources are not all WAV falls back to the
// lossy preset.
func (r *Renderer) Render(ctx context.Context, al *layout.AudioLayout, tokens *token.Context, preset Preset) (*Artifact, *measure.Trace, error) {
	logger := r.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if al == nil || len(al.Layers) == 0 {
		return nil, nil, errors.New(errors.ErrCodeInvalidLayout, "document has no audio layout")
	}
	if r.Encoder == nil {
		return nil, nil, errors.New(errors.ErrCodeUnsupported, "no audio encoder configured")
	}

	res := measure.NewResolver(tokens, logger)
	refs, err := Stems(ctx, res, al)
	if err != nil {
		return nil, nil, err
	}
	if len(refs) == 0 {
		return nil, nil, errors.New(errors.ErrCodeInvalidLayout, "no active audio stems")
	}

	sources := make([]Source, 0, len(refs))
	allWAV := true
	for _, ref := range refs {
		data, err := r.Assets.Fetch(ctx, ref)
		if err != nil {
			code := errors.GetCode(err)
			if code == "" {
				code = errors.ErrCodeNetwork
			}
			return nil, nil, errors.Wrap(code, err, "fetch stem %s", ref)
		}
		allWAV = allWAV && IsWAV(data)
		sources = append(sources, Source{Ref: ref, Data: data})
	}

	preset.Mastering = al.Mastering
	if preset.HD && !allWAV {
		logger.Info("stems are not all WAV, rendering lossy mix")
		preset.HD = false
	}

	logger.Info("encoding audio", "stems", len(sources), "hd", preset.HD)
	art, err := r.Encoder.Encode(ctx, sources, preset)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeInternal, err, "encode audio")
	}
	return art, res.Trace, nil
}
