package layer

import (
	"fmt"
	"io"
	"strings"
)

// TreeWriter renders a layer subtree as an indented depth-first listing.
// It carries no color or styling, just indentation and a plain marker for
// a caller-supplied highlight set.
type TreeWriter struct {
	// Highlight names layer ids to mark with an asterisk, e.g. the layer
	// the CLI's "info" command was invoked against.
	Highlight map[string]bool
}

// Write renders root and every descendant, pre-order, to w.
func (tw TreeWriter) Write(w io.Writer, root *Layer) error {
	return tw.writeNode(w, root, 0)
}

func (tw TreeWriter) writeNode(w io.Writer, l *Layer, depth int) error {
	marker := ""
	if tw.Highlight[l.ID()] {
		marker = " *"
	}
	if _, err := fmt.Fprintf(w, "%s+-- %s%s\n", strings.Repeat("  ", depth), l, marker); err != nil {
		return err
	}

	children, err := l.Children()
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := tw.writeNode(w, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}
