package cli

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/strata/pkg/engine"
)

// List styles
var (
	listDimStyle = lipgloss.NewStyle().Foreground(colorDim)
)

// inspectCommand creates the inspect command.
func (c *CLI) inspectCommand() *cobra.Command {
	var flags tokenFlags

	cmd := &cobra.Command{
		Use:   "inspect [layout]",
		Short: "Browse a resolved layout interactively",
		Long: `Browse a resolved layout interactively.

Inspect peeks the layout and shows every drawn layer with its position and
size, alongside the render trace and the assets a render would fetch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, key, err := c.peek(cmd.Context(), args[0], flags)
			if err != nil {
				return err
			}
			_, err = tea.NewProgram(NewPlanModel(plan, key), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}

	flags.register(cmd)
	return cmd
}

// =============================================================================
// PlanModel - Interactive plan browser
// =============================================================================

// PlanModel is the bubbletea model for browsing the placements of a plan.
type PlanModel struct {
	Plan       *engine.Plan
	Key        string
	Placements []engine.Placement
	Cursor     int
	Height     int
	Offset     int
}

// NewPlanModel creates a plan browser.
func NewPlanModel(plan *engine.Plan, key string) PlanModel {
	m := PlanModel{Plan: plan, Key: key, Height: 15}
	if plan.Geometry != nil {
		m.Placements = plan.Geometry.Placements()
	}
	return m
}

func (m PlanModel) Init() tea.Cmd {
	return nil
}

func (m PlanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Placements)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "home", "g":
			m.Cursor, m.Offset = 0, 0
		case "end", "G":
			if n := len(m.Placements); n > 0 {
				m.Cursor = n - 1
				m.Offset = max(0, n-m.Height)
			}
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-10, 5)
	}
	return m, nil
}

func (m PlanModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Render Plan"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  q quit"))
	b.WriteString("\n\n")
	b.WriteString(StyleDim.Render("trace ") + StyleValue.Render(m.Plan.Trace.Key()))
	b.WriteString("\n")
	b.WriteString(StyleDim.Render("key   ") + StyleValue.Render(m.Key))
	b.WriteString("\n\n")

	if len(m.Placements) == 0 {
		b.WriteString(listDimStyle.Render("  no layers drawn"))
		b.WriteString("\n")
		return b.String()
	}

	end := min(m.Offset+m.Height, len(m.Placements))
	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		p := m.Placements[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		name := p.Layer
		if name == "" {
			name = "-"
		}
		rows = append(rows, []string{
			cursor,
			strconv.Itoa(i),
			name,
			fmt.Sprintf("%d,%d", p.X, p.Y),
			fmt.Sprintf("%dx%d", p.Width, p.Height),
			fmt.Sprintf("%.0f,%.0f", p.CenterX, p.CenterY),
		})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "#", "Layer", "Origin", "Size", "Center").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if m.Offset+row == m.Cursor {
				return lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
			}
			return lipgloss.NewStyle().Foreground(colorWhite)
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]  %d assets", m.Cursor+1, len(m.Placements), len(m.Plan.Assets))))
	return b.String()
}
