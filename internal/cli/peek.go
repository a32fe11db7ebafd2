package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/strata/pkg/engine"
	"github.com/matzehuels/strata/pkg/server"
)

// peekCommand creates the peek command.
func (c *CLI) peekCommand() *cobra.Command {
	var (
		flags  tokenFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "peek [layout]",
		Short: "Resolve a layout without rendering",
		Long: `Resolve a layout without rendering.

Peek resolves every dynamic property exactly as a render would and prints
the render trace, the artifact cache key and the assets a render would
fetch. No asset is downloaded and no pixel is drawn.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, key, err := c.peek(cmd.Context(), args[0], flags)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(server.NewPeekResponse(plan, key))
			}
			printPlan(plan, key)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan as JSON")
	return cmd
}

// peek loads the layout at input and resolves it.
func (c *CLI) peek(ctx context.Context, input string, flags tokenFlags) (*engine.Plan, string, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, "", err
	}
	doc, err := loadDocument(input)
	if err != nil {
		return nil, "", err
	}
	b, err := c.openBackends(ctx, cfg, filepath.Dir(input), true)
	if err != nil {
		return nil, "", err
	}
	defer b.close()

	opts := flags.options(input, doc)
	opts.Format = cfg.Render.Format
	opts.Quality = cfg.Render.Quality
	opts.Logger = tokenLogger(c.Logger, opts)
	plan, key, err := c.runner(cfg, b).Peek(ctx, opts)
	if err != nil {
		return nil, "", fmt.Errorf("peek: %w", err)
	}
	return plan, key, nil
}

func printPlan(plan *engine.Plan, key string) {
	printKeyValue("Trace", plan.Trace.Key())
	printKeyValue("Hash", plan.Trace.Hash())
	printKeyValue("Key", key)
	printKeyValue("Measures", strconv.Itoa(plan.Trace.Len()))
	printKeyValue("Assets", strconv.Itoa(len(plan.Assets)))
	for _, ref := range plan.Assets {
		printFile(ref)
	}
}
