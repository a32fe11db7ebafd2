package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/strata/pkg/layout"
)

// layoutSummary counts the parts of a parsed document.
type layoutSummary struct {
	Version  int
	Layers   int
	States   int
	Leaves   int
	Text     int
	Assets   int
	Audio    int
	Unminted int
}

func summarize(doc *layout.Document) (layoutSummary, error) {
	l := doc.Layout
	refs, err := l.Assets()
	if err != nil {
		return layoutSummary{}, err
	}
	s := layoutSummary{
		Version:  l.Version,
		Layers:   len(l.Layers),
		Assets:   len(refs),
		Unminted: len(doc.Unminted),
	}
	err = l.Walk(func(_ int, n layout.Node) error {
		switch n := n.(type) {
		case *layout.StateNode:
			s.States++
		case *layout.Leaf:
			s.Leaves++
			if n.IsText() {
				s.Text++
			}
		}
		return nil
	})
	if err != nil {
		return layoutSummary{}, err
	}
	if doc.Audio != nil {
		s.Audio = len(doc.Audio.Layers)
	}
	return s, nil
}

// validateCommand creates the validate command.
func (c *CLI) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [layout]",
		Short: "Check a layout and summarize its structure",
		Long: `Check a layout and summarize its structure.

Validate parses the layout and checks the invariants rendering depends on:
known property shapes, in-range selectors and anchors that only point to
earlier layers. Nothing is resolved, so no lever store is needed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}
			if err := doc.Layout.Validate(); err != nil {
				return err
			}

			s, err := summarize(doc)
			if err != nil {
				return err
			}
			printSuccess("Layout %s is valid", StyleHighlight.Render(args[0]))
			printKeyValue("Version", strconv.Itoa(s.Version))
			printKeyValue("Layers", strconv.Itoa(s.Layers))
			printKeyValue("States", strconv.Itoa(s.States))
			printKeyValue("Leaves", strconv.Itoa(s.Leaves))
			printKeyValue("Text", strconv.Itoa(s.Text))
			printKeyValue("Assets", strconv.Itoa(s.Assets))
			if s.Audio > 0 {
				printKeyValue("Audio", strconv.Itoa(s.Audio))
			}
			if s.Unminted > 0 {
				printKeyValue("Unminted", strconv.Itoa(s.Unminted))
			}
			return nil
		},
	}
}
