package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/strata/pkg/layout"
	"github.com/matzehuels/strata/pkg/pipeline"
)

// loadDocument reads a layout file. JSON files are token metadata when they
// carry a "layout" key and bare layouts otherwise; YAML files are bare
// layouts.
func loadDocument(path string) (*layout.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		l, err := layout.ParseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return bareDocument(l), nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err == nil {
		if _, ok := top["layout"]; ok {
			doc, err := layout.ParseDocument(data)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			return doc, nil
		}
	}
	l, err := layout.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return bareDocument(l), nil
}

func bareDocument(l *layout.Layout) *layout.Document {
	return &layout.Document{Layout: l, Unminted: map[int64][]int64{}}
}

var slugUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// slugFromPath derives an artifact slug from a file name.
func slugFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	slug := strings.Trim(slugUnsafe.ReplaceAllString(base, "-"), "-._")
	if slug == "" {
		return appName
	}
	if len(slug) > 128 {
		slug = slug[:128]
	}
	return slug
}

// =============================================================================
// Token Flags
// =============================================================================

// tokenFlags are the flags shared by every command that resolves a layout.
type tokenFlags struct {
	master    int64
	slug      string
	block     int64
	timestamp int64
	noCache   bool
}

func (f *tokenFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64VarP(&f.master, "master", "m", 0, "master token id")
	cmd.Flags().StringVar(&f.slug, "slug", "", "artifact name (default: file name)")
	cmd.Flags().Int64Var(&f.block, "block", 0, "read levers as of this block (default: latest)")
	cmd.Flags().Int64Var(&f.timestamp, "timestamp", 0, "render time as unix seconds (default: now)")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable caching")
}

// options builds pipeline options for the document at path.
func (f *tokenFlags) options(path string, doc *layout.Document) pipeline.Options {
	slug := f.slug
	if slug == "" {
		slug = slugFromPath(path)
	}
	return pipeline.Options{
		Slug:      slug,
		MasterID:  f.master,
		Block:     f.block,
		Timestamp: f.timestamp,
		Document:  doc,
	}
}
