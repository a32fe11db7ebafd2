package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/strata/pkg/audio"
)

// evalCommand creates the eval command.
func (c *CLI) evalCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "eval [expression]",
		Short: "Evaluate a mastering arithmetic expression",
		Long: `Evaluate a mastering arithmetic expression.

Only numbers, parentheses and the + and - operators are accepted; this is
the grammar of makeup-gain expressions in mastering presets.`,
		Example: `  strata eval -- "-(-3.5)+2"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := audio.EvalArithmetic(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatFloat(v, 'f', -1, 64))
			return nil
		},
	}
}
