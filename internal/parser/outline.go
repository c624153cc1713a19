package parser

import (
	"strings"

	"github.com/dgallion1/docrag/internal/doctree"
)

// outline builds a heading hierarchy from a flat stream of headings and
// paragraphs. Text before the first heading stays at the root.
type outline struct {
	title string
	root  *doctree.DocNode
	stack []outlineEntry
	text  strings.Builder
}

type outlineEntry struct {
	node  *doctree.DocNode
	level int
}

func newOutline(title string) *outline {
	root := &doctree.DocNode{Title: title}
	return &outline{
		title: title,
		root:  root,
		stack: []outlineEntry{{node: root, level: 0}},
	}
}

// heading opens a section at level (1 = top), closing deeper or equal ones.
func (o *outline) heading(level int, title string) {
	o.flush()
	node := &doctree.DocNode{Title: title}
	for len(o.stack) > 1 && o.stack[len(o.stack)-1].level >= level {
		o.stack = o.stack[:len(o.stack)-1]
	}
	parent := o.stack[len(o.stack)-1].node
	parent.Children = append(parent.Children, node)
	o.stack = append(o.stack, outlineEntry{node: node, level: level})
}

func (o *outline) paragraph(t string) {
	if t == "" {
		return
	}
	if o.text.Len() > 0 {
		o.text.WriteString("\n\n")
	}
	o.text.WriteString(t)
}

func (o *outline) flush() {
	t := strings.TrimSpace(o.text.String())
	o.text.Reset()
	if t == "" {
		return
	}
	top := o.stack[len(o.stack)-1].node
	if top.Text != "" {
		top.Text += "\n\n" + t
	} else {
		top.Text = t
	}
}

// tree finishes the outline. Root text preceding the first heading becomes
// a leading untitled node.
func (o *outline) tree() *doctree.DocTree {
	o.flush()
	tree := &doctree.DocTree{Title: o.title, Children: o.root.Children}
	if o.root.Text != "" {
		lead := &doctree.DocNode{Text: o.root.Text}
		tree.Children = append([]*doctree.DocNode{lead}, tree.Children...)
	}
	return tree
}

func trimExt(filename string, exts ...string) string {
	lower := strings.ToLower(filename)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return filename[:len(filename)-len(ext)]
		}
	}
	return filename
}
