// Package layout defines the declarative description of a layered artwork.
//
// A [Layout] is an ordered list of layers drawn back to front. Each layer is
// a [Node]: either a [*StateNode], which selects one of its options from a
// dynamic property at render time, or a [*Leaf], a concrete image, blank or
// text layer. Leaf properties such as position, rotation, scale and colour
// are [Property] descriptors that name where their value comes from: a
// literal, a control-token lever, a seeded random draw, a lever sum, a
// calendar measure or an external price.
//
// Layouts are immutable once parsed. Render-time state (which option was
// active, where each layer landed) lives in the engine, never here.
//
// # Wire Format
//
// Layouts are read from the JSON documents the minting platform stores:
//
//	{
//	  "version": 2,
//	  "layers": [
//	    {"id": "Bg", "uri": "Qm...", "fixed-position": {"x": 0, "y": 0}},
//	    {"id": "Eyes", "states": {"token-id": 1, "lever-id": 0, "options": [
//	      {"uri": "Qm...", "anchor": "Bg", "relative-position": {"x": 10, "y": 20}},
//	      {"uri": "Qm...", "visible": {"random": {"max_value_inclusive": 3,
//	        "handler": {"type": "MODULO", "max_bound_inclusive": 1}}}}
//	    ]}}
//	  ]
//	}
//
// [Parse] reads a bare layout, [ParseDocument] reads full token metadata
// (layout plus unminted token values, UTC offset and audio layout), and
// [ParseYAML] accepts the same keys written as YAML.
//
// # Validation
//
// [Layout.Validate] enforces the ordering contract the renderer relies on:
// anchors may only name layers that appear earlier in layout order, which
// rules out forward and cyclic anchor chains without building a graph.
package layout
