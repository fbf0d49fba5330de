package store

import (
	"encoding/json"
	"time"
)

type Document struct {
	ID        string
	Title     string
	Content   json.RawMessage
	PlainText string
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentSettings holds the suggestion preferences of one document.
type DocumentSettings struct {
	DocumentID string
	Mode       string
	Toggles    map[string]bool
	UpdatedAt  time.Time
}

// Decision is one entry of the append-only suggestion decision log.
type Decision struct {
	ID           int64
	DocumentID   string
	SuggestionID string
	Category     string
	Status       string
	CauseID      string
	Text         string
	Revision     uint64
	DecidedBy    string
	DecidedAt    time.Time
}

type DecisionCount struct {
	Category string
	Status   string
	Count    int
}
