package prosemirror

import (
	"sort"
	"strings"
	"unicode/utf16"
)

// Options controls how structure is rendered into flat text.
type Options struct {
	// BlockSeparator is emitted between two text blocks.
	BlockSeparator string
	// HardBreak is emitted for a hardBreak node.
	HardBreak string
}

func DefaultOptions() Options {
	return Options{BlockSeparator: "\n", HardBreak: "\n"}
}

// PositionMap maps every rune of a document's flat text to the ProseMirror
// position of that character.
type PositionMap struct {
	text      strings.Builder
	positions []int
	widths    []int
	runes     int
}

// BuildMap walks doc's leaves in document order.
func BuildMap(doc Node, opts Options) *PositionMap {
	m := &PositionMap{}
	w := walker{m: m, opts: opts}
	pos := 0
	for _, child := range doc.Content {
		pos = w.walk(child, pos)
	}
	return m
}

type walker struct {
	m          *PositionMap
	opts       Options
	seenBlocks bool
}

func (w *walker) walk(n Node, pos int) int {
	switch {
	case n.isText():
		for _, r := range n.Text {
			width := utf16.RuneLen(r)
			if width < 0 {
				width = 1
			}
			w.m.add(r, pos, width)
			pos += width
		}
		return pos
	case n.Type == "hardBreak":
		for i, r := range w.opts.HardBreak {
			width := 0
			if i == 0 {
				width = 1
			}
			w.m.add(r, pos, width)
		}
		return pos + 1
	case n.isLeaf():
		return pos + 1
	}

	if n.isTextblock() {
		if w.seenBlocks {
			for _, r := range w.opts.BlockSeparator {
				w.m.add(r, pos, 0)
			}
		}
		w.seenBlocks = true
	}

	pos++
	for _, child := range n.Content {
		pos = w.walk(child, pos)
	}
	return pos + 1
}

func (m *PositionMap) add(r rune, pos, width int) {
	m.text.WriteRune(r)
	m.positions = append(m.positions, pos)
	m.widths = append(m.widths, width)
	m.runes++
}

// Text returns the flat plain text.
func (m *PositionMap) Text() string {
	return m.text.String()
}

// Len is the rune length of the flat text.
func (m *PositionMap) Len() int {
	return m.runes
}

// Position returns the ProseMirror position of flat rune i.
func (m *PositionMap) Position(i int) (int, bool) {
	if i < 0 || i >= m.runes {
		return 0, false
	}
	return m.positions[i], true
}

// MapRange converts the flat range [start, end) to a ProseMirror range. The
// end maps to one past the last covered character. Empty or out-of-bounds
// ranges report ok=false.
func (m *PositionMap) MapRange(start, end int) (from, to int, ok bool) {
	if start < 0 || end > m.runes || start >= end {
		return 0, 0, false
	}
	from = m.positions[start]
	to = m.positions[end-1] + m.widths[end-1]
	if to <= from {
		return 0, 0, false
	}
	return from, to, true
}

// ToFlat converts a ProseMirror position to the flat offset of the first
// character at or after it. Positions past the last character map to Len.
func (m *PositionMap) ToFlat(pos int) int {
	return sort.SearchInts(m.positions, pos)
}
