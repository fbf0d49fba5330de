package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"inkline/api/internal/config"
)

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore(), &fakeGit{}, nil), "*")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("expected request id to be echoed, got %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected CORS origin *, got %q", got)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		dbErr      error
		sessions   *fakeSessions
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "database only",
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "ok"},
		},
		{
			name:       "database down",
			dbErr:      errors.New("connection refused"),
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "error"},
		},
		{
			name:       "sessions healthy",
			sessions:   &fakeSessions{},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "ok", "sessions": "ok"},
		},
		{
			name: "sessions down",
			sessions: &fakeSessions{pingFn: func(context.Context) error {
				return errors.New("redis: connection refused")
			}},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "ok", "sessions": "error"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fs := newFakeStore()
			if tc.dbErr != nil {
				fs.pingFn = func(context.Context) error { return tc.dbErr }
			}
			var sessions SessionStore
			if tc.sessions != nil {
				sessions = tc.sessions
			}
			svc := New(config.Config{}, fs, &fakeGit{}, sessions, nil, testLogger())
			server := NewHTTPServer(svc, "*")

			req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
			rr := httptest.NewRecorder()
			server.Handler().ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d body=%s", tc.wantStatus, rr.Code, rr.Body.String())
			}
			var response struct {
				OK     bool                      `json:"ok"`
				Status string                    `json:"status"`
				Checks map[string]map[string]any `json:"checks"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if response.OK != (tc.wantStatus == http.StatusOK) {
				t.Fatalf("unexpected ok flag: %+v", response)
			}
			if len(response.Checks) != len(tc.wantChecks) {
				t.Fatalf("expected checks %v, got %v", tc.wantChecks, response.Checks)
			}
			for name, want := range tc.wantChecks {
				if got := response.Checks[name]["status"]; got != want {
					t.Fatalf("check %s: expected %s, got %v", name, want, got)
				}
			}
		})
	}
}
