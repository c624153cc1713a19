package parser

import (
	"strings"
	"testing"
)

func TestHTMLParser_SectionsAndChrome(t *testing.T) {
	input := `<html><head><title>Guide</title><style>p{}</style></head>
<body>
<nav><p>Home | About</p></nav>
<p>Lead paragraph.</p>
<h2>Install</h2>
<p>Run the installer.</p>
<ul><li>Step one</li><li>Step two</li></ul>
<h3>Linux</h3>
<p>Use the package.</p>
<footer><p>Copyright</p></footer>
</body></html>`

	tree, err := (&HTMLParser{}).Parse(strings.NewReader(input), "guide.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Title != "Guide" {
		t.Errorf("expected title from <title>, got %q", tree.Title)
	}

	text := tree.Text()
	for _, want := range []string{"Lead paragraph.", "Install", "Run the installer.", "Step one", "Linux"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in %q", want, text)
		}
	}
	for _, banned := range []string{"Home | About", "Copyright", "p{}"} {
		if strings.Contains(text, banned) {
			t.Errorf("chrome %q leaked into %q", banned, text)
		}
	}
	if !strings.HasPrefix(text, "Lead paragraph.") {
		t.Errorf("lead text should come first, got %q", text)
	}

	if len(tree.Children) != 2 {
		t.Fatalf("expected lead node and one h2, got %d children", len(tree.Children))
	}
	install := tree.Children[1]
	if install.Title != "Install" || len(install.Children) != 1 || install.Children[0].Title != "Linux" {
		t.Errorf("unexpected section nesting: %+v", install)
	}
}

func TestHeadingLevel(t *testing.T) {
	for tag, want := range map[string]int{"h1": 1, "h6": 6, "h7": 0, "hr": 0, "p": 0} {
		if got := headingLevel(tag); got != want {
			t.Errorf("headingLevel(%q) = %d, want %d", tag, got, want)
		}
	}
}
