package suggest

import (
	"slices"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffEdits derives the edits that turn before into after. Offsets are rune
// offsets into before; a deletion immediately followed by an insertion is
// reported as one replace edit.
func DiffEdits(before, after string) []Edit {
	if before == after {
		return nil
	}
	diffs := diffmatchpatch.New().DiffMain(before, after, false)

	edits := make([]Edit, 0)
	pos := 0
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			pos += n
		case diffmatchpatch.DiffDelete:
			edits = append(edits, Edit{From: pos, To: pos + n, Removed: d.Text})
			pos += n
		case diffmatchpatch.DiffInsert:
			if last := len(edits) - 1; last >= 0 && edits[last].To == pos && edits[last].Inserted == "" {
				edits[last].Inserted = d.Text
				continue
			}
			edits = append(edits, Edit{From: pos, To: pos, Inserted: d.Text})
		}
	}
	return edits
}

// ApplyEdits applies edits expressed against one snapshot of the text.
// Deletions run from the end of the text backwards so earlier offsets stay
// valid; any insertion then invalidates the whole batch.
func (e *Engine) ApplyEdits(edits []Edit) (EditResult, error) {
	ordered := slices.Clone(edits)
	slices.SortStableFunc(ordered, func(a, b Edit) int { return b.From - a.From })

	result := EditResult{Revision: e.Revision()}
	inserted := Edit{From: -1}
	for _, ed := range ordered {
		if ed.To != ed.From || ed.From < 0 {
			removed, err := e.OnTextRemoved(ed.From, ed.To, ed.Removed)
			if err != nil {
				return result, err
			}
			result.merge(removed)
		}
		if ed.Inserted != "" && inserted.From < 0 {
			inserted = ed
		}
	}
	if inserted.From >= 0 {
		res, err := e.OnTextInserted(inserted.From, inserted.Inserted)
		if err != nil {
			return result, err
		}
		result.merge(res)
	}
	return result, nil
}

// Resync diffs the previous text against the new text and applies the edits.
func (e *Engine) Resync(before, after string) (EditResult, error) {
	return e.ApplyEdits(DiffEdits(before, after))
}
