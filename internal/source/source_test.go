package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"inkline/api/internal/suggest"
)

func TestHTTPSuggest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/suggestions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer token, got %q", got)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Stage != StageCore || req.Text != "The qick fox" {
			t.Errorf("unexpected request body: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"suggestions":[{"id":"s1","text":"qick","start":4,"end":8,"message":"Spelling","type":"spelling","alternatives":["quick"],"payload":{"dictionary":"en-US"}}]}`))
	}))
	defer srv.Close()

	client, err := NewHTTP(Options{BaseURL: srv.URL + "/", APIKey: "secret"})
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	items, err := client.Suggest(context.Background(), Request{Text: "The qick fox", Stage: StageCore})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(items) != 1 || items[0].ID != "s1" || items[0].Category != suggest.CategorySpelling {
		t.Fatalf("unexpected suggestions: %+v", items)
	}
	if p, ok := items[0].Payload.(suggest.SpellingPayload); !ok || p.Dictionary != "en-US" {
		t.Fatalf("unexpected payload: %#v", items[0].Payload)
	}
}

func TestHTTPSuggestDropsUndecodableRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"suggestions":[
			{"id":"ok1","text":"qick","start":4,"end":8,"type":"spelling"},
			{"id":"bad-payload","text":"The","start":0,"end":3,"type":"grammar","payload":"x"},
			{"id":"bad-start","text":"fox","start":"nine","end":12,"type":"style"},
			{"id":"ok2","text":"fox","start":9,"end":12,"type":"style"}
		]}`))
	}))
	defer srv.Close()

	var logged bytes.Buffer
	client, err := NewHTTP(Options{BaseURL: srv.URL, Logger: log.New(&logged)})
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	items, err := client.Suggest(context.Background(), Request{Text: "The qick fox", Stage: StageCore})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(items) != 2 || items[0].ID != "ok1" || items[1].ID != "ok2" {
		t.Fatalf("expected the two valid records, got %+v", items)
	}
	if got := strings.Count(logged.String(), "dropping undecodable suggestion"); got != 2 {
		t.Fatalf("expected 2 dropped-record warnings, got %d: %s", got, logged.String())
	}
}

func TestHTTPSuggestUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewHTTP(Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	_, err = client.Suggest(context.Background(), Request{Text: "x", Stage: StageCore})
	if !errors.Is(err, suggest.ErrSourceFetch) {
		t.Fatalf("expected ErrSourceFetch, got %v", err)
	}
}

func TestHTTPSuggestBadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"suggestions":`))
	}))
	defer srv.Close()

	client, err := NewHTTP(Options{EndpointPath: srv.URL + "/custom"})
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	if _, err := client.Suggest(context.Background(), Request{Text: "x"}); !errors.Is(err, suggest.ErrSourceFetch) {
		t.Fatalf("expected ErrSourceFetch, got %v", err)
	}
}

func TestNewHTTPRequiresBaseURL(t *testing.T) {
	if _, err := NewHTTP(Options{}); err == nil {
		t.Fatal("expected error without base url")
	}
}
