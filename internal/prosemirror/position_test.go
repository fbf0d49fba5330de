package prosemirror

import "testing"

func TestBuildMapParagraphs(t *testing.T) {
	m := BuildMap(Paragraphs("Hello", "World"), DefaultOptions())

	if got := m.Text(); got != "Hello\nWorld" {
		t.Fatalf("expected flat text %q, got %q", "Hello\nWorld", got)
	}
	if m.Len() != 11 {
		t.Fatalf("expected length 11, got %d", m.Len())
	}

	tests := []struct {
		start, end int
		from, to   int
		ok         bool
	}{
		{0, 5, 1, 6, true},
		{6, 11, 8, 13, true},
		{0, 11, 1, 13, true},
		{1, 3, 2, 4, true},
		{5, 6, 0, 0, false},
		{-1, 2, 0, 0, false},
		{3, 3, 0, 0, false},
		{4, 2, 0, 0, false},
		{8, 12, 0, 0, false},
	}
	for _, tt := range tests {
		from, to, ok := m.MapRange(tt.start, tt.end)
		if ok != tt.ok || from != tt.from || to != tt.to {
			t.Errorf("MapRange(%d,%d) = (%d,%d,%v), want (%d,%d,%v)", tt.start, tt.end, from, to, ok, tt.from, tt.to, tt.ok)
		}
	}
}

func TestBuildMapMonotonic(t *testing.T) {
	raw := []byte(`{"type":"doc","content":[
		{"type":"heading","attrs":{"level":1},"content":[{"type":"text","text":"Title"}]},
		{"type":"bulletList","content":[
			{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"one"}]}]},
			{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"two","marks":[{"type":"bold"}]}]}]}
		]},
		{"type":"horizontalRule"},
		{"type":"paragraph","content":[{"type":"text","text":"a"},{"type":"hardBreak"},{"type":"text","text":"b😀c"}]}
	]}`)
	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m := BuildMap(doc, DefaultOptions())

	if got, want := m.Text(), "Title\none\ntwo\na\nb😀c"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	prev := -1
	for i := 0; i < m.Len(); i++ {
		pos, ok := m.Position(i)
		if !ok {
			t.Fatalf("Position(%d) not ok", i)
		}
		if pos < prev {
			t.Fatalf("position map decreases at %d: %d < %d", i, pos, prev)
		}
		prev = pos
	}

	// The heading ends at 7; bulletList, listItem and paragraph each open one level.
	if from, to, ok := m.MapRange(6, 9); !ok || from != 10 || to != 13 {
		t.Fatalf("expected \"one\" at [10,13), got [%d,%d) ok=%v", from, to, ok)
	}
	// The emoji is two UTF-16 units wide.
	last := m.Len()
	if from, to, ok := m.MapRange(last-2, last); !ok || to-from != 3 {
		t.Fatalf("expected emoji plus one char to span 3 positions, got [%d,%d) ok=%v", from, to, ok)
	}
}

func TestHardBreak(t *testing.T) {
	doc := Node{Type: "doc", Content: []Node{{Type: "paragraph", Content: []Node{
		{Type: "text", Text: "a"},
		{Type: "hardBreak"},
		{Type: "text", Text: "b"},
	}}}}
	m := BuildMap(doc, Options{BlockSeparator: "\n\n", HardBreak: " / "})

	if got := m.Text(); got != "a / b" {
		t.Fatalf("expected %q, got %q", "a / b", got)
	}
	if from, to, ok := m.MapRange(4, 5); !ok || from != 3 || to != 4 {
		t.Fatalf("expected b at [3,4), got [%d,%d) ok=%v", from, to, ok)
	}
	if from, to, ok := m.MapRange(0, 5); !ok || from != 1 || to != 4 {
		t.Fatalf("expected whole text at [1,4), got [%d,%d) ok=%v", from, to, ok)
	}
}

func TestToFlat(t *testing.T) {
	m := BuildMap(Paragraphs("Hello", "World"), DefaultOptions())
	tests := map[int]int{0: 0, 1: 0, 3: 2, 7: 5, 8: 6, 12: 10, 13: 11, 100: 11}
	for pos, want := range tests {
		if got := m.ToFlat(pos); got != want {
			t.Errorf("ToFlat(%d) = %d, want %d", pos, got, want)
		}
	}
}

func TestParseRejectsNonDoc(t *testing.T) {
	if _, err := Parse([]byte(`{"type":"paragraph"}`)); err == nil {
		t.Fatal("expected error for non-doc root")
	}
	if _, err := Parse([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}
