package suggest

import "fmt"

// State is the persisted form of an engine.
type State struct {
	Revision    uint64   `msgpack:"revision"`
	Mode        Mode     `msgpack:"mode"`
	Toggles     Toggles  `msgpack:"toggles"`
	Suggestions []Record `msgpack:"suggestions"`
}

// State snapshots the engine for persistence.
func (e *Engine) State() (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, err := Records(e.all)
	if err != nil {
		return State{}, fmt.Errorf("snapshot engine: %w", err)
	}
	return State{
		Revision:    e.revision,
		Mode:        e.mode,
		Toggles:     e.toggles.Clone(),
		Suggestions: records,
	}, nil
}

// Restore replaces the engine's contents with st. Statuses are kept as
// stored; invalidated suggestions are not restored.
func (e *Engine) Restore(st State) error {
	items, err := FromRecords(st.Suggestions)
	if err != nil {
		return fmt.Errorf("restore engine: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.all = items
	e.dropInvalidatedLocked()
	e.revision = st.Revision
	if st.Mode != "" {
		e.mode = st.Mode
	}
	if st.Toggles != nil {
		e.toggles = st.Toggles.Clone()
	}
	e.refilterLocked()
	return nil
}
