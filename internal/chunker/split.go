package chunker

import "unicode"

// span is a half-open rune range into the source text.
type span struct {
	start, end int
}

func (s span) len() int { return s.end - s.start }

// Boundary levels, coarse to fine.
const (
	levelParagraph = iota // whitespace run holding a blank line
	levelLine             // whitespace run holding a newline
	levelWord             // any whitespace run
	levelToken            // no whitespace left
)

// spaceless lists scripts written without spaces between words. Tokens in
// these scripts are cut by character; any other token that exceeds the
// bound is kept whole.
var spaceless = []*unicode.RangeTable{
	unicode.Han, unicode.Hiragana, unicode.Katakana,
	unicode.Thai, unicode.Lao, unicode.Khmer, unicode.Myanmar,
}

// splitSpans packs src[start:end] into spans of at most max runes, breaking
// at the coarsest boundary that works. Separators between packed pieces stay
// inside the span; leading and trailing whitespace never does.
func splitSpans(src []rune, start, end, max int) []span {
	return splitLevel(src, start, end, max, levelParagraph)
}

func splitLevel(src []rune, start, end, max, level int) []span {
	start, end = trim(src, start, end)
	if start >= end {
		return nil
	}
	if end-start <= max {
		return []span{{start, end}}
	}
	if level == levelToken {
		if isSpaceless(src[start:end]) {
			return hardCut(start, end, max)
		}
		return []span{{start, end}}
	}

	pieces := cut(src, start, end, level)
	if len(pieces) == 1 {
		return splitLevel(src, start, end, max, level+1)
	}

	var out []span
	var cur span
	have := false
	for _, p := range pieces {
		if p.len() > max {
			if have {
				out = append(out, cur)
				have = false
			}
			out = append(out, splitLevel(src, p.start, p.end, max, level+1)...)
			continue
		}
		if have && p.end-cur.start <= max {
			cur.end = p.end
			continue
		}
		if have {
			out = append(out, cur)
		}
		cur, have = p, true
	}
	if have {
		out = append(out, cur)
	}
	return out
}

// cut returns the pieces of src[start:end] between whitespace runs that count
// as separators at level. Pieces never begin or end with whitespace.
func cut(src []rune, start, end, level int) []span {
	var pieces []span
	pieceStart := start
	i := start
	for i < end {
		if !unicode.IsSpace(src[i]) {
			i++
			continue
		}
		j, newlines := i, 0
		for j < end && unicode.IsSpace(src[j]) {
			if src[j] == '\n' {
				newlines++
			}
			j++
		}
		if separates(newlines, level) {
			if i > pieceStart {
				pieces = append(pieces, span{pieceStart, i})
			}
			pieceStart = j
		}
		i = j
	}
	if pieceStart < end {
		pieces = append(pieces, span{pieceStart, end})
	}
	return pieces
}

func separates(newlines, level int) bool {
	switch level {
	case levelParagraph:
		return newlines >= 2
	case levelLine:
		return newlines >= 1
	default:
		return true
	}
}

func hardCut(start, end, max int) []span {
	var out []span
	for s := start; s < end; s += max {
		out = append(out, span{s, min(s+max, end)})
	}
	return out
}

func isSpaceless(rs []rune) bool {
	for _, r := range rs {
		if unicode.IsOneOf(spaceless, r) {
			return true
		}
	}
	return false
}

func trim(src []rune, start, end int) (int, int) {
	for start < end && unicode.IsSpace(src[start]) {
		start++
	}
	for end > start && unicode.IsSpace(src[end-1]) {
		end--
	}
	return start, end
}
