package parser

import (
	"fmt"
	"strings"
	"testing"
)

func TestCSVParser_Sections(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,city\n")
	for i := 1; i <= 25; i++ {
		fmt.Fprintf(&b, "%d,city%d\n", i, i)
	}

	tree, err := (&CSVParser{}).Parse(strings.NewReader(b.String()), "cities.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Title != "cities" {
		t.Errorf("expected title %q, got %q", "cities", tree.Title)
	}
	if len(tree.Children) != 2 {
		t.Fatalf("expected 2 sections for 25 rows, got %d", len(tree.Children))
	}
	if tree.Children[0].Title != "Rows 2-21" || tree.Children[1].Title != "Rows 22-26" {
		t.Errorf("unexpected section titles %q, %q", tree.Children[0].Title, tree.Children[1].Title)
	}
	first := strings.Split(tree.Children[0].Text, "\n")[0]
	if first != "id: 1, city: city1" {
		t.Errorf("unexpected first row %q", first)
	}
}

func TestCSVParser_RaggedRows(t *testing.T) {
	tree, err := (&CSVParser{}).Parse(strings.NewReader("a,b\n1,2,3\n4\n"), "r.csv")
	if err != nil {
		t.Fatalf("ragged rows should parse: %v", err)
	}
	want := "a: 1, b: 2, 3\na: 4"
	if tree.Children[0].Text != want {
		t.Errorf("got %q, want %q", tree.Children[0].Text, want)
	}
}

func TestCSVParser_HeaderOnly(t *testing.T) {
	tree, err := (&CSVParser{}).Parse(strings.NewReader("a,b\n"), "h.csv")
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Children) != 0 {
		t.Errorf("expected no sections, got %d", len(tree.Children))
	}
}
