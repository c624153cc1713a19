package doctree

import "testing"

func TestText_DocumentOrder(t *testing.T) {
	tree := &DocTree{
		Title: "ignored",
		Children: []*DocNode{
			{Title: "Intro", Text: "Hello.", Children: []*DocNode{
				{Title: "Detail", Text: "  Nested text.  "},
			}},
			{Text: "Loose paragraph."},
			{Title: "Empty section"},
		},
	}
	want := "Intro\n\nHello.\n\nDetail\n\nNested text.\n\nLoose paragraph.\n\nEmpty section"
	if got := tree.Text(); got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestText_Empty(t *testing.T) {
	var nilTree *DocTree
	if got := nilTree.Text(); got != "" {
		t.Errorf("nil tree: expected empty, got %q", got)
	}
	if got := (&DocTree{Children: []*DocNode{{Text: "   "}}}).Text(); got != "" {
		t.Errorf("whitespace tree: expected empty, got %q", got)
	}
}
