// Package suggest locates, ranks and tracks inline writing suggestions over
// the flat plain text of a rich-text document.
//
// The Engine owns one document's batch of suggestions. It repairs drifted
// offsets, filters by category toggles, orders by priority, cascades
// acceptance to competing suggestions and recalculates offsets when text is
// removed. All offsets are rune indices into the flat text.
package suggest

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/google/uuid"
)

var suggestionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://inkline.dev/suggestions"))

// Category classifies a suggestion.
type Category string

const (
	CategoryGrammar        Category = "grammar"
	CategorySpelling       Category = "spelling"
	CategoryStyle          Category = "style"
	CategoryDemonetization Category = "demonetization"
	CategorySlang          Category = "slang"
	CategoryToneRewrite    Category = "tone-rewrite"
	CategoryEngagement     Category = "engagement"
	CategorySEO            Category = "seo"
	CategoryPlatform       Category = "platform"
)

// Categories lists every category the engine knows a weight and payload for.
func Categories() []Category {
	return []Category{
		CategoryGrammar,
		CategorySpelling,
		CategoryStyle,
		CategoryDemonetization,
		CategorySlang,
		CategoryToneRewrite,
		CategoryEngagement,
		CategorySEO,
		CategoryPlatform,
	}
}

// Known reports whether c is one of Categories.
func (c Category) Known() bool {
	return slices.Contains(Categories(), c)
}

// Status tracks the lifecycle of a suggestion.
type Status string

const (
	StatusPending     Status = "pending"
	StatusAccepted    Status = "accepted"
	StatusIgnored     Status = "ignored"
	StatusInvalidated Status = "invalidated"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusIgnored, StatusInvalidated:
		return true
	default:
		return false
	}
}

// ParseStatus normalizes a status string.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusPending, StatusAccepted, StatusIgnored, StatusInvalidated:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, value)
	}
}

// Mode selects how conflicting categories are ranked.
type Mode string

const (
	ModeBalanced     Mode = "balanced"
	ModeGrammarFirst Mode = "grammar-first"
	ModeToneFirst    Mode = "tone-first"
	ModeUserChoice   Mode = "user-choice"
)

// ParseMode normalizes a conflict resolution mode. An empty value is balanced.
func ParseMode(value string) (Mode, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(value)))
	switch mode {
	case "":
		return ModeBalanced, nil
	case ModeBalanced, ModeGrammarFirst, ModeToneFirst, ModeUserChoice:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown conflict resolution mode %q", value)
	}
}

// Toggles enables or disables categories. Categories without an entry are
// always enabled.
type Toggles map[Category]bool

// DefaultToggles enables every category that has a feature toggle.
// Platform adaptation has none and therefore always shows.
func DefaultToggles() Toggles {
	return Toggles{
		CategoryGrammar:        true,
		CategorySpelling:       true,
		CategoryStyle:          true,
		CategoryDemonetization: true,
		CategorySlang:          true,
		CategoryToneRewrite:    true,
		CategoryEngagement:     true,
		CategorySEO:            true,
	}
}

// Enabled reports whether suggestions of category c may be shown.
func (t Toggles) Enabled(c Category) bool {
	enabled, ok := t[c]
	return !ok || enabled
}

// Clone returns an independent copy.
func (t Toggles) Clone() Toggles {
	out := make(Toggles, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Suggestion is a flagged span of flat text with a proposed fix.
type Suggestion struct {
	ID            string
	Text          string
	Start         int
	End           int
	Message       string
	Category      Category
	Alternatives  []string
	Confidence    *float64
	Status        Status
	Priority      int
	ConflictsWith []string
	Payload       Payload
}

// Overlaps reports whether the half-open ranges of s and o intersect.
func (s Suggestion) Overlaps(o Suggestion) bool {
	return s.Start < o.End && o.Start < s.End
}

// ConflictsWithID reports whether id is listed as an explicit conflict.
func (s Suggestion) ConflictsWithID(id string) bool {
	return slices.Contains(s.ConflictsWith, id)
}

// Clone returns a copy that shares no slices with s.
func (s Suggestion) Clone() Suggestion {
	out := s
	out.Alternatives = slices.Clone(s.Alternatives)
	out.ConflictsWith = slices.Clone(s.ConflictsWith)
	if s.Confidence != nil {
		c := *s.Confidence
		out.Confidence = &c
	}
	return out
}

func (s Suggestion) confidence() float64 {
	if s.Confidence == nil || math.IsNaN(*s.Confidence) {
		return 0.5
	}
	return min(max(*s.Confidence, 0), 1)
}

func (s Suggestion) fingerprint() string {
	return fmt.Sprintf("%s|%d|%d|%s", s.Category, s.Start, s.End, s.Text)
}

// derivedID names an id-less suggestion after its category, range and text,
// so the same record always gets the same id.
func (s Suggestion) derivedID() string {
	return uuid.NewSHA1(suggestionNamespace, []byte(s.fingerprint())).String()
}

// normalizeConfidence clamps c into [0,1]. NaN counts as absent.
func normalizeConfidence(c *float64) *float64 {
	if c == nil || math.IsNaN(*c) {
		return nil
	}
	v := min(max(*c, 0), 1)
	return &v
}

// Record is the flat wire form of a Suggestion used for JSON and msgpack.
type Record struct {
	ID            string          `json:"id" msgpack:"id"`
	Text          string          `json:"text" msgpack:"text"`
	Start         int             `json:"start" msgpack:"start"`
	End           int             `json:"end" msgpack:"end"`
	Message       string          `json:"message" msgpack:"message"`
	Type          Category        `json:"type" msgpack:"type"`
	Alternatives  []string        `json:"alternatives,omitempty" msgpack:"alternatives,omitempty"`
	Confidence    *float64        `json:"confidence,omitempty" msgpack:"confidence,omitempty"`
	Status        Status          `json:"status,omitempty" msgpack:"status,omitempty"`
	Priority      int             `json:"priority,omitempty" msgpack:"priority,omitempty"`
	ConflictsWith []string        `json:"conflictsWith,omitempty" msgpack:"conflicts_with,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// Record converts s to its wire form.
func (s Suggestion) Record() (Record, error) {
	record := Record{
		ID:            s.ID,
		Text:          s.Text,
		Start:         s.Start,
		End:           s.End,
		Message:       s.Message,
		Type:          s.Category,
		Alternatives:  s.Alternatives,
		Confidence:    s.Confidence,
		Status:        s.Status,
		Priority:      s.Priority,
		ConflictsWith: s.ConflictsWith,
	}
	if s.Payload != nil {
		raw, err := encodePayload(s.Payload)
		if err != nil {
			return Record{}, fmt.Errorf("encode payload %s: %w", s.ID, err)
		}
		record.Payload = raw
	}
	return record, nil
}

// Suggestion converts a wire record, decoding the payload by category.
func (r Record) Suggestion() (Suggestion, error) {
	payload, err := DecodePayload(r.Type, r.Payload)
	if err != nil {
		return Suggestion{}, fmt.Errorf("decode payload %s: %w", r.ID, err)
	}
	return Suggestion{
		ID:            r.ID,
		Text:          r.Text,
		Start:         r.Start,
		End:           r.End,
		Message:       r.Message,
		Category:      r.Type,
		Alternatives:  r.Alternatives,
		Confidence:    r.Confidence,
		Status:        r.Status,
		Priority:      r.Priority,
		ConflictsWith: r.ConflictsWith,
		Payload:       payload,
	}, nil
}

func (s Suggestion) MarshalJSON() ([]byte, error) {
	record, err := s.Record()
	if err != nil {
		return nil, err
	}
	return json.Marshal(record)
}

func (s *Suggestion) UnmarshalJSON(data []byte) error {
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return err
	}
	decoded, err := record.Suggestion()
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

// Records converts a slice of suggestions to wire records.
func Records(items []Suggestion) ([]Record, error) {
	out := make([]Record, 0, len(items))
	for _, item := range items {
		record, err := item.Record()
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

// FromRecords converts wire records back to suggestions.
func FromRecords(records []Record) ([]Suggestion, error) {
	out := make([]Suggestion, 0, len(records))
	for _, record := range records {
		item, err := record.Suggestion()
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
