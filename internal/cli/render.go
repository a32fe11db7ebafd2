package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/strata/pkg/config"
	"github.com/matzehuels/strata/pkg/pipeline"
	"github.com/matzehuels/strata/pkg/raster"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	tokenFlags
	output     string // output file path
	format     string // png or jpeg
	quality    int    // JPEG quality
	force      bool   // re-render even when cached
	noPrefetch bool   // fetch assets during the pass instead of up front
	watch      bool   // re-render when the layout file changes
}

// renderCommand creates the render command.
func (c *CLI) renderCommand() *cobra.Command {
	var opts renderOpts

	cmd := &cobra.Command{
		Use:   "render [layout]",
		Short: "Render a layout to PNG or JPEG",
		Long: `Render a layout to PNG or JPEG.

The layout file is either token metadata (JSON with a "layout" key, plus
optional audio layout and unminted defaults) or a bare layout in JSON or
YAML. Lever values are read from the configured lever store; tokens it does
not know fall back to the metadata's unminted values.

Assets are read from the configured asset source, or from the layout's
directory when none is configured. Rendered images are cached under the
render trace, so re-rendering an unchanged token state is instant.

With --watch the layout is re-rendered every time the file is saved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("format") {
				opts.format = cfg.Render.Format
			}
			if !cmd.Flags().Changed("quality") {
				opts.quality = cfg.Render.Quality
			}
			if _, err := raster.ParseFormat(opts.format); err != nil {
				return err
			}
			if opts.watch {
				return c.watchRender(cmd.Context(), cfg, args[0], opts)
			}
			return c.runRender(cmd.Context(), cfg, args[0], opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: <layout>-<master>.<ext>)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "png", "output format: png, jpeg")
	cmd.Flags().IntVarP(&opts.quality, "quality", "q", raster.DefaultJPEGQuality, "JPEG quality (1-100)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "re-render even when the artifact is cached")
	cmd.Flags().BoolVar(&opts.noPrefetch, "no-prefetch", false, "fetch assets during rendering instead of up front")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "re-render when the layout changes")

	return cmd
}

// runRender renders the layout once and writes the artifact.
func (c *CLI) runRender(ctx context.Context, cfg config.Config, input string, opts renderOpts) error {
	doc, err := loadDocument(input)
	if err != nil {
		return err
	}

	b, err := c.openBackends(ctx, cfg, filepath.Dir(input), opts.noCache)
	if err != nil {
		return err
	}
	defer b.close()
	runner := c.runner(cfg, b)

	popts := opts.options(input, doc)
	popts.Format = opts.format
	popts.Quality = opts.quality
	popts.Force = opts.force
	popts.NoPrefetch = opts.noPrefetch
	popts.Logger = tokenLogger(c.Logger, popts)
	if err := popts.ValidateAndSetDefaults(); err != nil {
		return err
	}

	if t := cfg.Render.Timeout.Duration; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	spin := startSpinner(ctx, c.status, fmt.Sprintf("Rendering %s #%d...", popts.Slug, popts.MasterID))
	res, err := runner.Execute(ctx, popts)
	if err != nil {
		spin.Fail("Render failed")
		return fmt.Errorf("render: %w", err)
	}
	spin.Stop()

	out := outputPath(input, opts.output, popts)
	if err := os.WriteFile(out, res.Artifact, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	printSuccess("Rendered %s", StyleHighlight.Render(popts.Slug))
	printStats(res.Stats, res.CacheInfo.Hit)
	printKeyValue("Trace", res.TraceKey)
	printFile(out)
	return nil
}

// outputPath returns the explicit output or <input>-<master>.<ext> next to
// the input.
func outputPath(input, output string, opts pipeline.Options) string {
	if output != "" {
		return output
	}
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return fmt.Sprintf("%s-%d.%s", base, opts.MasterID, raster.Format(opts.Format).Ext())
}

// watchRender renders on every change to the layout file until ctx is
// cancelled. Render errors are reported and watching continues.
func (c *CLI) watchRender(ctx context.Context, cfg config.Config, input string, opts renderOpts) error {
	// The trace does not change when only asset choices or colours are
	// edited, so cached artifacts would be stale.
	opts.force = true
	printInfo("Watching %s (ctrl+c to stop)", input)
	return watchFile(ctx, input, c.Logger, func() {
		prog := newProgress(c.Logger)
		if err := c.runRender(ctx, cfg, input, opts); err != nil {
			printError("%v", err)
			return
		}
		prog.done("re-rendered", "path", input)
	})
}
