package suggest

import (
	"fmt"
	"unicode/utf8"
)

// Edit is one change of the flat text: the runes [From, To) were replaced
// by Inserted. A pure insertion has From == To.
type Edit struct {
	From     int    `json:"from"`
	To       int    `json:"to"`
	Removed  string `json:"removedText,omitempty"`
	Inserted string `json:"insertedText,omitempty"`
}

// EditResult lists what an edit did to the pending suggestions.
type EditResult struct {
	Shifted      []string `json:"shifted"`
	Clipped      []string `json:"clipped"`
	Invalidated  []string `json:"invalidated"`
	NeedsRefresh bool     `json:"needsRefresh"`
	Revision     uint64   `json:"revision"`
}

func (r *EditResult) merge(o EditResult) {
	r.Shifted = append(r.Shifted, o.Shifted...)
	r.Clipped = append(r.Clipped, o.Clipped...)
	r.Invalidated = append(r.Invalidated, o.Invalidated...)
	r.NeedsRefresh = r.NeedsRefresh || o.NeedsRefresh
	if o.Revision > r.Revision {
		r.Revision = o.Revision
	}
}

// OnTextRemoved adjusts pending suggestions after the flat runes [from, to)
// were deleted. Suggestions inside the removal or spanning it are
// invalidated and dropped; clipped ones keep their surviving characters;
// later ones shift left.
func (e *Engine) OnTextRemoved(from, to int, removed string) (EditResult, error) {
	if from < 0 || to < from {
		return EditResult{}, fmt.Errorf("%w: removal [%d,%d)", ErrMalformedRange, from, to)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if from == to {
		return EditResult{Revision: e.revision}, nil
	}
	if removed != "" && utf8.RuneCountInString(removed) != to-from {
		e.logger.Debug("removed text length differs from range", "from", from, "to", to, "removed", utf8.RuneCountInString(removed))
	}

	width := to - from
	result := EditResult{}
	for i := range e.all {
		s := &e.all[i]
		if s.Status != StatusPending {
			continue
		}
		switch {
		case s.End <= from:
			// entirely before
		case s.Start >= to:
			s.Start -= width
			s.End -= width
			result.Shifted = append(result.Shifted, s.ID)
		case s.Start >= from && s.End <= to:
			s.Status = StatusInvalidated
			result.Invalidated = append(result.Invalidated, s.ID)
		case s.Start < from && s.End > to:
			s.Status = StatusInvalidated
			result.Invalidated = append(result.Invalidated, s.ID)
		case s.Start < from:
			s.Text = runeSlice(s.Text, 0, from-s.Start)
			s.End = from
			result.Clipped = append(result.Clipped, s.ID)
		default:
			s.Text = runeSlice(s.Text, to-s.Start, utf8.RuneCountInString(s.Text))
			s.Start = from
			s.End -= width
			result.Clipped = append(result.Clipped, s.ID)
		}
	}

	e.dropInvalidatedLocked()
	e.revision++
	e.refilterLocked()
	result.Revision = e.revision

	e.logger.Debug("text removed", "from", from, "to", to,
		"shifted", len(result.Shifted), "clipped", len(result.Clipped), "invalidated", len(result.Invalidated))
	return result, nil
}

// OnTextInserted handles a pure insertion at flat offset at. Insertions are
// never shifted around: the whole batch is dropped and the caller must
// request a new one.
func (e *Engine) OnTextInserted(at int, text string) (EditResult, error) {
	if at < 0 {
		return EditResult{}, fmt.Errorf("%w: insertion at %d", ErrMalformedRange, at)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if text == "" {
		return EditResult{Revision: e.revision}, nil
	}

	result := EditResult{NeedsRefresh: true}
	for _, s := range e.all {
		if s.Status == StatusPending {
			result.Invalidated = append(result.Invalidated, s.ID)
		}
	}
	e.all = nil
	e.revision++
	e.refilterLocked()
	result.Revision = e.revision

	e.logger.Debug("text inserted, batch invalidated", "at", at, "invalidated", len(result.Invalidated))
	return result, nil
}

// ApplyEdit applies the deletion half of ed first and then its insertion.
func (e *Engine) ApplyEdit(ed Edit) (EditResult, error) {
	result := EditResult{}
	if ed.From < 0 || ed.To != ed.From {
		removed, err := e.OnTextRemoved(ed.From, ed.To, ed.Removed)
		if err != nil {
			return EditResult{}, err
		}
		result.merge(removed)
	}
	if ed.Inserted != "" {
		inserted, err := e.OnTextInserted(ed.From, ed.Inserted)
		if err != nil {
			return EditResult{}, err
		}
		result.merge(inserted)
	}
	if result.Revision == 0 {
		result.Revision = e.Revision()
	}
	return result, nil
}

func runeSlice(s string, start, end int) string {
	runes := []rune(s)
	start = clamp(start, 0, len(runes))
	end = clamp(end, start, len(runes))
	return string(runes[start:end])
}
