// Package chunker splits extracted document text into parents and the
// overlapping children derived from them.
package chunker

import (
	"math"

	"github.com/dgallion1/docrag/internal/chunk"
)

// Config controls splitting. Sizes are in characters.
type Config struct {
	ParentMaxChars       int
	ChildMaxChars        int
	ChildOverlapFraction float64 // share of ChildMaxChars repeated from the previous child
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ParentMaxChars:       2000,
		ChildMaxChars:        400,
		ChildOverlapFraction: 0.1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ParentMaxChars <= 0 {
		c.ParentMaxChars = d.ParentMaxChars
	}
	if c.ChildMaxChars <= 0 {
		c.ChildMaxChars = d.ChildMaxChars
	}
	if c.ChildOverlapFraction < 0 || c.ChildOverlapFraction >= 1 {
		c.ChildOverlapFraction = d.ChildOverlapFraction
	}
	return c
}

// Overlap returns the child overlap in characters.
func (c Config) Overlap() int {
	c = c.withDefaults()
	return int(math.Round(c.ChildOverlapFraction * float64(c.ChildMaxChars)))
}

// Split breaks text into parents with no overlap, then each parent into
// children whose leading Overlap() characters repeat the text just before
// them in the same parent. Child indices run from 0 across the whole
// document. Empty or whitespace-only text yields nothing.
func Split(text, fileName string, cfg Config) ([]chunk.Parent, []chunk.Child) {
	cfg = cfg.withDefaults()
	src := []rune(text)

	var parents []chunk.Parent
	var children []chunk.Child
	for _, sp := range splitSpans(src, 0, len(src), cfg.ParentMaxChars) {
		// The parent id must exist before any child points at it.
		p := chunk.NewParent(string(src[sp.start:sp.end]), fileName)
		parents = append(parents, p)

		for _, text := range childTexts([]rune(p.Content), cfg) {
			children = append(children, chunk.NewChild(len(children), text, p))
		}
	}
	return parents, children
}

// childTexts splits one parent. Pieces are packed against the budget left
// after the overlap, so an overlapped child still fits ChildMaxChars. When
// a separator wider than one rune sits between two pieces, the later piece
// is cut to the room left after the overlap and the separator.
func childTexts(content []rune, cfg Config) []string {
	overlap := cfg.Overlap()
	budget := max(cfg.ChildMaxChars-overlap, 1)

	pending := splitSpans(content, 0, len(content), budget)
	out := make([]string, 0, len(pending))
	prevEnd := -1
	for len(pending) > 0 {
		sp := pending[0]
		pending = pending[1:]

		start := sp.start
		// An oversize token starts its own child with no overlap.
		if prevEnd >= 0 && overlap > 0 && sp.len() <= cfg.ChildMaxChars {
			start = max(prevEnd-overlap, 0)
			if sp.end-start > cfg.ChildMaxChars && sp.start-prevEnd > 1 {
				if head, ok := fitRoom(content, sp, start+cfg.ChildMaxChars-sp.start); ok {
					pending = append(splitSpans(content, head.end, sp.end, budget), pending...)
					sp = head
				}
			}
			start = max(start, sp.end-cfg.ChildMaxChars)
		}
		out = append(out, string(content[start:sp.end]))
		prevEnd = sp.end
	}
	return out
}

// fitRoom returns the leading part of sp that fits room runes, breaking at
// the coarsest boundary available and cutting by character as a last resort.
func fitRoom(content []rune, sp span, room int) (span, bool) {
	if room <= 0 || sp.len() <= room {
		return span{}, false
	}
	parts := splitSpans(content, sp.start, sp.end, room)
	if parts[0].len() > room {
		parts = hardCut(sp.start, sp.end, room)
	}
	return parts[0], true
}
