package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/strata/pkg/layout"
)

// visualizeCommand creates the visualize command for diagramming a layout.
func (c *CLI) visualizeCommand() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "visualize [layout]",
		Short: "Draw the state tree of a layout",
		Long: `Draw the state tree of a layout.

Visualize renders the layers, their state selectors and variants as a
Graphviz diagram: DOT source, or SVG rendered with Graphviz. Nothing is
resolved; the diagram shows every variant a token could select.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(format)
			if format != "svg" && format != "dot" {
				return fmt.Errorf("invalid format: %s (must be 'svg' or 'dot')", format)
			}
			return c.runVisualize(cmd.Context(), args[0], format, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: <layout>.<format>)")
	cmd.Flags().StringVarP(&format, "format", "f", "svg", "output format: svg, dot")

	return cmd
}

// runVisualize loads the layout and writes its diagram.
func (c *CLI) runVisualize(ctx context.Context, input, format, output string) error {
	doc, err := loadDocument(input)
	if err != nil {
		return err
	}

	data := []byte(layout.ToDOT(doc.Layout))
	if format == "svg" {
		spin := startSpinner(ctx, c.status, "Rendering diagram...")
		data, err = layout.RenderSVG(ctx, string(data))
		if err != nil {
			spin.Fail("Diagram failed")
			return fmt.Errorf("visualize: %w", err)
		}
		spin.Stop()
	}

	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + "." + format
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	c.Logger.Debug("wrote diagram", "path", output, "bytes", len(data))
	printSuccess("Diagram written")
	printFile(output)
	return nil
}
