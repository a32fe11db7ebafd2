package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/strata/pkg/audio"
)

// stemsCommand creates the stems command.
func (c *CLI) stemsCommand() *cobra.Command {
	var (
		flags     tokenFlags
		threshold float64
		maxVolume float64
	)

	cmd := &cobra.Command{
		Use:   "stems [metadata]",
		Short: "List the audio stems a token selects",
		Long: `List the audio stems a token selects.

Stems resolves the audio layout of the token metadata against the token's
lever state and prints the stem of every audible layer. When the mastering
preset carries a compression equation, it is printed with the threshold and
measured peak volume filled in and the makeup gain evaluated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}
			if doc.Audio == nil {
				return fmt.Errorf("%s has no audio layout", args[0])
			}
			b, err := c.openBackends(ctx, cfg, filepath.Dir(args[0]), true)
			if err != nil {
				return err
			}
			defer b.close()

			opts := flags.options(args[0], doc)
			opts.Logger = tokenLogger(c.Logger, opts)
			stems, err := c.runner(cfg, b).Stems(ctx, opts)
			if err != nil {
				return fmt.Errorf("stems: %w", err)
			}

			if len(stems) == 0 {
				printInfo("No audible stems")
			} else {
				printSuccess("%d stems", len(stems))
				for _, s := range stems {
					printFile(s)
				}
			}

			if eq := doc.Audio.Mastering.CompressionEquation; eq != "" {
				filter, err := audio.CompressionFilter(eq, threshold, maxVolume)
				if err != nil {
					return err
				}
				printKeyValue("Compression", filter)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "compression threshold")
	cmd.Flags().Float64Var(&maxVolume, "max-volume", 0, "measured peak volume in dB")
	return cmd
}
