package suggest

import (
	"errors"
	"reflect"
	"testing"
)

func TestOnTextRemoved(t *testing.T) {
	tests := []struct {
		name      string
		input     Suggestion
		from, to  int
		wantStart int
		wantEnd   int
		wantText  string
		dropped   bool
	}{
		{name: "entirely after shifts", input: Suggestion{Text: "fghij", Start: 20, End: 25}, from: 10, to: 15, wantStart: 15, wantEnd: 20, wantText: "fghij"},
		{name: "fully inside invalidates", input: Suggestion{Text: "abcde", Start: 10, End: 15}, from: 8, to: 20, dropped: true},
		{name: "exactly removed invalidates", input: Suggestion{Text: "abcde", Start: 10, End: 15}, from: 10, to: 15, dropped: true},
		{name: "spanning removal invalidates", input: Suggestion{Text: "abcdefghij", Start: 5, End: 15}, from: 8, to: 10, dropped: true},
		{name: "tail clipped", input: Suggestion{Text: "abcdefg", Start: 5, End: 12}, from: 10, to: 15, wantStart: 5, wantEnd: 10, wantText: "abcde"},
		{name: "head clipped", input: Suggestion{Text: "ABCDEFGH", Start: 12, End: 20}, from: 10, to: 15, wantStart: 10, wantEnd: 15, wantText: "DEFGH"},
		{name: "entirely before unchanged", input: Suggestion{Text: "abcde", Start: 0, End: 5}, from: 5, to: 9, wantStart: 0, wantEnd: 5, wantText: "abcde"},
		{name: "touching end shifts", input: Suggestion{Text: "xy", Start: 9, End: 11}, from: 5, to: 9, wantStart: 5, wantEnd: 7, wantText: "xy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			item := tt.input
			item.ID = "s"
			item.Category = CategoryGrammar
			e.ReplaceAll([]Suggestion{item})
			before := e.Revision()

			result, err := e.OnTextRemoved(tt.from, tt.to, "")
			if err != nil {
				t.Fatalf("OnTextRemoved: %v", err)
			}
			if result.Revision != before+1 {
				t.Fatalf("expected revision bump, got %d -> %d", before, result.Revision)
			}

			got, ok := e.Get("s")
			if tt.dropped {
				if ok {
					t.Fatalf("expected suggestion to be dropped, got %+v", got)
				}
				if !reflect.DeepEqual(result.Invalidated, []string{"s"}) {
					t.Fatalf("expected s invalidated, got %v", result.Invalidated)
				}
				if len(e.Suggestions()) != 0 {
					t.Fatal("expected empty active view")
				}
				return
			}
			if !ok {
				t.Fatal("suggestion unexpectedly dropped")
			}
			if got.Start != tt.wantStart || got.End != tt.wantEnd || got.Text != tt.wantText {
				t.Fatalf("expected [%d,%d) %q, got [%d,%d) %q", tt.wantStart, tt.wantEnd, tt.wantText, got.Start, got.End, got.Text)
			}
		})
	}
}

func TestOnTextRemovedSkipsTerminal(t *testing.T) {
	e := newTestEngine(t)
	e.ReplaceAll([]Suggestion{
		{ID: "done", Text: "fghij", Start: 20, End: 25, Category: CategoryGrammar},
		{ID: "open", Text: "klmno", Start: 30, End: 35, Category: CategoryGrammar},
	})
	if _, err := e.SetStatus("done", StatusAccepted); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if _, err := e.OnTextRemoved(0, 5, "abcde"); err != nil {
		t.Fatalf("OnTextRemoved: %v", err)
	}

	done, _ := e.Get("done")
	if done.Start != 20 {
		t.Fatalf("expected accepted suggestion untouched, got start %d", done.Start)
	}
	open, _ := e.Get("open")
	if open.Start != 25 || open.End != 30 {
		t.Fatalf("expected pending suggestion shifted to [25,30), got [%d,%d)", open.Start, open.End)
	}
}

func TestOnTextRemovedRejectsBadRange(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.OnTextRemoved(5, 2, ""); !errors.Is(err, ErrMalformedRange) {
		t.Fatalf("expected ErrMalformedRange, got %v", err)
	}
	if _, err := e.OnTextRemoved(-1, 2, ""); !errors.Is(err, ErrMalformedRange) {
		t.Fatalf("expected ErrMalformedRange, got %v", err)
	}
	rev := e.Revision()
	if _, err := e.OnTextRemoved(3, 3, ""); err != nil || e.Revision() != rev {
		t.Fatalf("expected empty removal to be a no-op, got %v", err)
	}
}

func TestOnTextInsertedInvalidatesBatch(t *testing.T) {
	e := newTestEngine(t)
	e.ReplaceAll([]Suggestion{
		{ID: "a", Text: "abc", Start: 0, End: 3, Category: CategoryGrammar},
		{ID: "b", Text: "xyz", Start: 40, End: 43, Category: CategoryStyle},
	})

	result, err := e.OnTextInserted(20, "new words")
	if err != nil {
		t.Fatalf("OnTextInserted: %v", err)
	}
	if !result.NeedsRefresh {
		t.Fatal("expected NeedsRefresh")
	}
	if len(result.Invalidated) != 2 {
		t.Fatalf("expected both suggestions invalidated, got %v", result.Invalidated)
	}
	if len(e.AllSuggestions()) != 0 || len(e.Suggestions()) != 0 {
		t.Fatal("expected empty registry after insertion")
	}
}

func TestApplyEditReplace(t *testing.T) {
	e := newTestEngine(t)
	e.ReplaceAll([]Suggestion{{ID: "a", Text: "abc", Start: 10, End: 13, Category: CategoryGrammar}})
	rev := e.Revision()

	result, err := e.ApplyEdit(Edit{From: 0, To: 2, Removed: "xx", Inserted: "y"})
	if err != nil {
		t.Fatalf("ApplyEdit: %v", err)
	}
	if !result.NeedsRefresh || !reflect.DeepEqual(result.Shifted, []string{"a"}) {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Revision != rev+2 {
		t.Fatalf("expected two revision bumps, got %d -> %d", rev, result.Revision)
	}
	if len(e.AllSuggestions()) != 0 {
		t.Fatal("expected insertion half to clear the batch")
	}
}
