package util

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewID(t *testing.T) {
	id := NewID("doc")
	if !strings.HasPrefix(id, "doc_") {
		t.Fatalf("expected doc_ prefix, got %q", id)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, "doc_")); err != nil {
		t.Fatalf("expected uuid suffix: %v", err)
	}
	if NewID("") == NewID("") {
		t.Fatal("expected distinct ids")
	}
}
