package suggest

// Mapper converts flat text ranges into structured document positions.
type Mapper interface {
	MapRange(start, end int) (from, to int, ok bool)
}

// Decoration is the rendering instruction for one active suggestion.
type Decoration struct {
	From         int      `json:"from"`
	To           int      `json:"to"`
	Start        int      `json:"start"`
	End          int      `json:"end"`
	Category     Category `json:"type"`
	SuggestionID string   `json:"suggestionId"`
	Priority     int      `json:"priority"`
}

// Decorations maps the active view through m in priority order. Ranges the
// mapper rejects are skipped.
func (e *Engine) Decorations(m Mapper) []Decoration {
	active := e.Suggestions()
	out := make([]Decoration, 0, len(active))
	for _, s := range active {
		from, to, ok := m.MapRange(s.Start, s.End)
		if !ok {
			err := rangeError(s.ID, s.Start, s.End, "range outside document", ErrMalformedRange)
			e.logger.Debug("decoration skipped", "err", err)
			continue
		}
		out = append(out, Decoration{
			From:         from,
			To:           to,
			Start:        s.Start,
			End:          s.End,
			Category:     s.Category,
			SuggestionID: s.ID,
			Priority:     s.Priority,
		})
	}
	return out
}
