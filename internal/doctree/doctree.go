// Package doctree holds the section outline produced by the format parsers.
package doctree

import "strings"

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Children []*DocNode // Top-level sections
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     // Section heading (empty for leaf text)
	Text     string     // Text content of this node (may be empty for container nodes)
	Page     int        // Source page (0 if N/A)
	Children []*DocNode // Subsections
}

// Text flattens the tree into plain text. Each heading and each text block
// becomes its own paragraph, in document order, separated by blank lines.
func (t *DocTree) Text() string {
	if t == nil {
		return ""
	}
	var paras []string
	var walk func(nodes []*DocNode)
	walk = func(nodes []*DocNode) {
		for _, n := range nodes {
			if s := strings.TrimSpace(n.Title); s != "" {
				paras = append(paras, s)
			}
			if s := strings.TrimSpace(n.Text); s != "" {
				paras = append(paras, s)
			}
			walk(n.Children)
		}
	}
	walk(t.Children)
	return strings.Join(paras, "\n\n")
}
