package suggest

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
)

// Options configures a new Engine.
type Options struct {
	Mode     Mode
	Toggles  Toggles
	Strategy Strategy
	Logger   *log.Logger
}

// Engine is the suggestion registry of one document. It is safe for
// concurrent use.
type Engine struct {
	mu       sync.Mutex
	logger   *log.Logger
	locator  Locator
	toggles  Toggles
	mode     Mode
	revision uint64

	all       []Suggestion
	active    []Suggestion
	analytics Analytics
}

// Ingestion reports the outcome of a batch replacement.
type Ingestion struct {
	Kept     int           `json:"kept"`
	Repaired []string      `json:"repaired"`
	Dropped  []*RangeError `json:"-"`
}

// Transition is one status change caused by SetStatus.
type Transition struct {
	ID    string `json:"id"`
	From  Status `json:"from"`
	To    Status `json:"to"`
	Cause string `json:"cause,omitempty"`
}

// New creates an empty engine.
func New(opts Options) *Engine {
	mode := opts.Mode
	if mode == "" {
		mode = ModeBalanced
	}
	toggles := opts.Toggles
	if toggles == nil {
		toggles = DefaultToggles()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyFirst
	}
	e := &Engine{
		logger:  logger,
		locator: Locator{Strategy: strategy},
		toggles: toggles.Clone(),
		mode:    mode,
	}
	e.refilterLocked()
	return e
}

// Load discards every suggestion because a new document (or a new version
// of it) was loaded. It returns the new revision.
func (e *Engine) Load() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = nil
	e.revision++
	e.refilterLocked()
	return e.revision
}

// Revision identifies the content snapshot the registry is keyed to. It
// changes on every load and every reported edit.
func (e *Engine) Revision() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.revision
}

// Ingest validates every record of batch against fullText with the Text
// Locator and replaces the registry with the survivors. The batch must have
// been requested at revision; otherwise ErrStaleBatch is returned and the
// registry is left unchanged.
func (e *Engine) Ingest(fullText string, revision uint64, batch []Suggestion) (Ingestion, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if revision != e.revision {
		return Ingestion{}, fmt.Errorf("%w: requested at revision %d, current %d", ErrStaleBatch, revision, e.revision)
	}

	idx := newTextIndex(fullText)
	report := Ingestion{}
	located := make([]Suggestion, 0, len(batch))
	for _, item := range batch {
		item = item.Clone()
		if item.ID == "" {
			item.ID = item.derivedID()
		}
		if item.Start >= item.End {
			report.Dropped = append(report.Dropped, rangeError(item.ID, item.Start, item.End, "empty or inverted range", ErrMalformedRange))
			continue
		}
		span, err := e.locator.locate(idx, Target{ID: item.ID, Text: item.Text, Start: item.Start, End: item.End})
		if err != nil {
			var rangeErr *RangeError
			if errors.As(err, &rangeErr) {
				report.Dropped = append(report.Dropped, rangeErr)
			}
			continue
		}
		if span.Start != item.Start || span.End != item.End {
			report.Repaired = append(report.Repaired, item.ID)
			item.Start, item.End = span.Start, span.End
		}
		located = append(located, item)
	}
	return e.replaceAllLocked(located, report), nil
}

// ReplaceAll discards the previous batch and installs batch as pending
// suggestions. Records with an empty or negative range and duplicates are
// dropped. Calling it twice with the same input yields the same views.
func (e *Engine) ReplaceAll(batch []Suggestion) Ingestion {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.replaceAllLocked(batch, Ingestion{})
}

func (e *Engine) replaceAllLocked(batch []Suggestion, report Ingestion) Ingestion {
	seenIDs := make(map[string]struct{}, len(batch))
	seenSpans := make(map[string]struct{}, len(batch))
	next := make([]Suggestion, 0, len(batch))

	for _, raw := range batch {
		item := raw.Clone()
		item.Confidence = normalizeConfidence(item.Confidence)
		if item.ID == "" {
			item.ID = item.derivedID()
		}
		if item.Start < 0 || item.Start >= item.End {
			report.Dropped = append(report.Dropped, rangeError(item.ID, item.Start, item.End, "start must be non-negative and before end", ErrMalformedRange))
			continue
		}
		if _, ok := seenIDs[item.ID]; ok {
			report.Dropped = append(report.Dropped, rangeError(item.ID, item.Start, item.End, "id already in batch", ErrDuplicateSuggestion))
			continue
		}
		fingerprint := item.fingerprint()
		if _, ok := seenSpans[fingerprint]; ok {
			report.Dropped = append(report.Dropped, rangeError(item.ID, item.Start, item.End, "same category, range and text already in batch", ErrDuplicateSuggestion))
			continue
		}
		seenIDs[item.ID] = struct{}{}
		seenSpans[fingerprint] = struct{}{}

		if item.Payload == nil || item.Payload.Category() != item.Category {
			item.Payload, _ = DecodePayload(item.Category, nil)
		}
		item.Status = StatusPending
		next = append(next, item)
	}

	e.all = next
	e.refilterLocked()
	report.Kept = len(next)

	for _, dropped := range report.Dropped {
		e.logger.Debug("suggestion dropped", "id", dropped.ID, "start", dropped.Start, "end", dropped.End, "reason", dropped.Reason)
	}
	if len(report.Repaired) > 0 {
		e.logger.Debug("suggestion offsets repaired", "count", len(report.Repaired))
	}
	return report
}

// SetStatus moves suggestion id to a terminal status. Accepting cascades:
// every other pending suggestion that overlaps it or is linked to it through
// ConflictsWith becomes ignored, whatever the conflict resolution mode.
// Unknown ids and suggestions already in a terminal status are left alone.
func (e *Engine) SetStatus(id string, status Status) ([]Transition, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("%w: cannot move a suggestion to %q", ErrInvalidStatus, status)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexLocked(id)
	if i < 0 || e.all[i].Status.Terminal() {
		return nil, nil
	}

	target := e.all[i]
	transitions := []Transition{{ID: id, From: target.Status, To: status}}
	if status == StatusAccepted {
		for j := range e.all {
			if j == i || e.all[j].Status != StatusPending {
				continue
			}
			if competes(target, e.all[j]) {
				transitions = append(transitions, Transition{ID: e.all[j].ID, From: StatusPending, To: StatusIgnored, Cause: id})
				e.all[j].Status = StatusIgnored
			}
		}
	}
	e.all[i].Status = status

	e.dropInvalidatedLocked()
	e.refilterLocked()
	e.logger.Debug("suggestion status changed", "id", id, "status", status, "cascaded", len(transitions)-1)
	return transitions, nil
}

// Conflicts lists the pending suggestions that accepting id would ignore.
func (e *Engine) Conflicts(id string) []Suggestion {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexLocked(id)
	if i < 0 {
		return nil
	}
	target := e.all[i]
	out := make([]Suggestion, 0)
	for j, item := range e.all {
		if j == i || item.Status != StatusPending {
			continue
		}
		if competes(target, item) {
			out = append(out, item.Clone())
		}
	}
	return out
}

// Refilter recomputes priorities and the active view from the full batch,
// the toggles and the mode. It never changes a status.
func (e *Engine) Refilter() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refilterLocked()
}

func (e *Engine) refilterLocked() {
	for i := range e.all {
		e.all[i].Priority = Priority(e.all[i], e.mode)
	}

	active := make([]Suggestion, 0, len(e.all))
	for _, item := range e.all {
		if item.Status == StatusPending && e.toggles.Enabled(item.Category) {
			active = append(active, item.Clone())
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return a.ID < b.ID
	})
	e.active = active
	e.analytics = computeAnalytics(e.all, active)
}

// SetToggles replaces the category toggles and refilters.
func (e *Engine) SetToggles(toggles Toggles) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.toggles = toggles.Clone()
	e.refilterLocked()
}

// SetMode changes the conflict resolution mode and refilters.
func (e *Engine) SetMode(mode Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = mode
	e.refilterLocked()
}

func (e *Engine) Toggles() Toggles {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.toggles.Clone()
}

func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Suggestions returns the active view.
func (e *Engine) Suggestions() []Suggestion {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneAll(e.active)
}

// AllSuggestions returns every suggestion of the batch, unfiltered.
func (e *Engine) AllSuggestions() []Suggestion {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneAll(e.all)
}

// Get returns one suggestion by id.
func (e *Engine) Get(id string) (Suggestion, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.indexLocked(id)
	if i < 0 {
		return Suggestion{}, false
	}
	return e.all[i].Clone(), true
}

func (e *Engine) Analytics() Analytics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.analytics.clone()
}

func (e *Engine) indexLocked(id string) int {
	return slices.IndexFunc(e.all, func(s Suggestion) bool { return s.ID == id })
}

func (e *Engine) dropInvalidatedLocked() int {
	before := len(e.all)
	e.all = slices.DeleteFunc(e.all, func(s Suggestion) bool { return s.Status == StatusInvalidated })
	return before - len(e.all)
}

func cloneAll(items []Suggestion) []Suggestion {
	out := make([]Suggestion, 0, len(items))
	for _, item := range items {
		out = append(out, item.Clone())
	}
	return out
}
