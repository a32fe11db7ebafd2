package layout

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
)

// ToDOT converts a layout's state tree to Graphviz DOT format.
//
// Top-level layers form a left-to-right chain in draw order. State nodes
// fan out to their options, labelled with the option index, and anchors are
// drawn as dashed edges from the anchored leaf back to the layer it follows.
func ToDOT(l *Layout) string {
	w := &dotWriter{ids: make(map[string]string)}
	w.buf.WriteString("digraph layout {\n")
	w.buf.WriteString("  rankdir=LR;\n")
	w.buf.WriteString("  bgcolor=\"transparent\";\n")
	w.buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=12];\n")
	w.buf.WriteString("\n")

	var prev string
	for i, n := range l.Layers {
		name := fmt.Sprintf("L%d", i)
		if id := n.NodeID(); id != "" {
			w.ids[id] = name
		}
		w.node(name, n)
		if prev != "" {
			fmt.Fprintf(&w.buf, "  %q -> %q [color=grey, arrowhead=none];\n", prev, name)
		}
		prev = name
	}

	w.buf.WriteString("\n")
	for _, a := range w.anchors {
		if target, ok := w.ids[a[1]]; ok {
			fmt.Fprintf(&w.buf, "  %q -> %q [style=dashed, color=blue, label=\"anchor\"];\n", a[0], target)
		}
	}
	w.buf.WriteString("}\n")
	return w.buf.String()
}

type dotWriter struct {
	buf     bytes.Buffer
	ids     map[string]string
	anchors [][2]string
}

func (w *dotWriter) node(name string, n Node) {
	switch t := n.(type) {
	case *StateNode:
		label := fmt.Sprintf("%s\nstates: %s", displayID(t.ID), t.Selector)
		fmt.Fprintf(&w.buf, "  %q [label=%q, fillcolor=lightyellow];\n", name, label)
		for i, opt := range t.Options {
			child := fmt.Sprintf("%s_%d", name, i)
			w.node(child, opt)
			fmt.Fprintf(&w.buf, "  %q -> %q [label=\"%d\"];\n", name, child, i)
		}
	case *Leaf:
		fmt.Fprintf(&w.buf, "  %q [label=%q];\n", name, leafLabel(t))
		if t.Anchor != "" {
			w.anchors = append(w.anchors, [2]string{name, t.Anchor})
		}
	}
}

func leafLabel(l *Leaf) string {
	parts := []string{displayID(l.ID)}
	switch {
	case l.Text != nil:
		parts = append(parts, fmt.Sprintf("text %q", l.Text.Content))
	case l.Asset != "":
		parts = append(parts, shorten(l.Asset, 16))
	case l.Width > 0:
		parts = append(parts, fmt.Sprintf("blank %dx%d", l.Width, l.Height))
	}
	if l.Visible != nil {
		parts = append(parts, "visible: "+l.Visible.String())
	}
	if l.BlendMode != "" {
		parts = append(parts, "blend: "+string(l.BlendMode))
	}
	return strings.Join(parts, "\n")
}

func displayID(id string) string {
	if id == "" {
		return "(option)"
	}
	return id
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
