package suggest

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Strategy picks among repeated occurrences when offsets have drifted.
type Strategy string

const (
	// StrategyFirst takes the first occurrence in the text.
	StrategyFirst Strategy = "first"
	// StrategyNearest takes the occurrence closest to the claimed start.
	StrategyNearest Strategy = "nearest"
)

// ParseStrategy normalizes a strategy name. Unknown values fall back to first.
func ParseStrategy(value string) Strategy {
	if Strategy(strings.ToLower(strings.TrimSpace(value))) == StrategyNearest {
		return StrategyNearest
	}
	return StrategyFirst
}

// Target is what a suggestion claims about its position.
type Target struct {
	ID    string
	Text  string
	Start int
	End   int
}

// Span is a validated half-open rune range.
type Span struct {
	Start int
	End   int
}

// Locator validates or repairs suggestion offsets against the live text.
type Locator struct {
	Strategy Strategy
}

// Locate validates t against fullText with the first-occurrence strategy.
func Locate(fullText string, t Target) (Span, error) {
	return Locator{Strategy: StrategyFirst}.Locate(fullText, t)
}

// Locate returns t's range unchanged when the text at that range matches,
// otherwise the range of an exact occurrence of t.Text. It fails with
// ErrOffsetDrift when no occurrence exists or t.Text is empty.
func (l Locator) Locate(fullText string, t Target) (Span, error) {
	return l.locate(newTextIndex(fullText), t)
}

func (l Locator) locate(idx *textIndex, t Target) (Span, error) {
	if t.Start >= 0 && t.Start < t.End && t.End <= idx.runeLen() && t.Text != "" {
		if idx.slice(t.Start, t.End) == t.Text {
			return Span{Start: t.Start, End: t.End}, nil
		}
	}
	if t.Text == "" {
		return Span{}, rangeError(t.ID, t.Start, t.End, "empty text and offsets do not match", ErrOffsetDrift)
	}

	width := utf8.RuneCountInString(t.Text)
	best := -1
	bestDistance := 0
	for from := 0; from <= len(idx.text); {
		at := strings.Index(idx.text[from:], t.Text)
		if at < 0 {
			break
		}
		start := idx.runeAt(from + at)
		if l.Strategy != StrategyNearest {
			return Span{Start: start, End: start + width}, nil
		}
		distance := abs(start - t.Start)
		if best < 0 || distance < bestDistance {
			best = start
			bestDistance = distance
		}
		_, size := utf8.DecodeRuneInString(idx.text[from+at:])
		from += at + size
	}
	if best < 0 {
		return Span{}, rangeError(t.ID, t.Start, t.End, "text not found in content", ErrOffsetDrift)
	}
	return Span{Start: best, End: best + width}, nil
}

// textIndex maps rune offsets to byte offsets of one text snapshot.
type textIndex struct {
	text    string
	offsets []int
}

func newTextIndex(text string) *textIndex {
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))
	return &textIndex{text: text, offsets: offsets}
}

func (t *textIndex) runeLen() int {
	return len(t.offsets) - 1
}

func (t *textIndex) slice(start, end int) string {
	return t.text[t.offsets[start]:t.offsets[end]]
}

// runeAt converts a byte offset on a rune boundary to a rune offset.
func (t *textIndex) runeAt(byteOffset int) int {
	return sort.SearchInts(t.offsets, byteOffset)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
