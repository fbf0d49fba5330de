package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inkline/api/internal/suggest"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.URL.Path == "/api/documents" {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListDocuments(r.Context())
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"documents": items})
		case http.MethodPost:
			var body DocumentInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateDocument(r.Context(), body, actorName(r))
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "documents" {
		s.handleDocuments(w, r, parts[2], parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	if configured, err := s.service.PingSessions(ctx); configured {
		checks["sessions"] = map[string]any{"status": "ok"}
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["sessions"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, documentID string, parts []string) {
	if len(parts) == 3 && r.Method == http.MethodGet {
		s.respond(w, r, http.StatusOK)(s.service.LoadDocument(r.Context(), documentID))
		return
	}

	if len(parts) == 3 && r.Method == http.MethodPut {
		var body DocumentInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, r, http.StatusOK)(s.service.SaveDocument(r.Context(), documentID, body, actorName(r)))
		return
	}

	if len(parts) == 4 && parts[3] == "session" && r.Method == http.MethodDelete {
		s.respond(w, r, http.StatusOK)(s.service.DiscardSession(r.Context(), documentID))
		return
	}

	if len(parts) == 4 && parts[3] == "analyze" && r.Method == http.MethodPost {
		s.respond(w, r, http.StatusOK)(s.service.Analyze(r.Context(), documentID))
		return
	}

	if len(parts) == 4 && parts[3] == "suggestions" && r.Method == http.MethodGet {
		all := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("view")), "all")
		s.respond(w, r, http.StatusOK)(s.service.Suggestions(r.Context(), documentID, all))
		return
	}

	if len(parts) == 6 && parts[3] == "suggestions" && parts[5] == "status" && r.Method == http.MethodPost {
		var body struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, r, http.StatusOK)(s.service.SetStatus(r.Context(), documentID, parts[4], body.Status, actorName(r)))
		return
	}

	if len(parts) == 6 && parts[3] == "suggestions" && parts[5] == "conflicts" && r.Method == http.MethodGet {
		s.respond(w, r, http.StatusOK)(s.service.Conflicts(r.Context(), documentID, parts[4]))
		return
	}

	if len(parts) == 4 && parts[3] == "settings" && r.Method == http.MethodPut {
		var body SettingsInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, r, http.StatusOK)(s.service.UpdateSettings(r.Context(), documentID, body))
		return
	}

	if len(parts) == 4 && parts[3] == "edits" && r.Method == http.MethodPost {
		var body EditInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, r, http.StatusOK)(s.service.ApplyEdit(r.Context(), documentID, body))
		return
	}

	if len(parts) == 4 && parts[3] == "decorations" && r.Method == http.MethodGet {
		s.respond(w, r, http.StatusOK)(s.service.Decorations(r.Context(), documentID))
		return
	}

	if len(parts) == 4 && parts[3] == "analytics" && r.Method == http.MethodGet {
		s.respond(w, r, http.StatusOK)(s.service.Analytics(r.Context(), documentID))
		return
	}

	if len(parts) == 4 && parts[3] == "decisions" && r.Method == http.MethodGet {
		status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
		s.respond(w, r, http.StatusOK)(s.service.DecisionLog(r.Context(), documentID, status, queryLimit(r, 50)))
		return
	}

	if len(parts) == 4 && parts[3] == "history" && r.Method == http.MethodGet {
		s.respond(w, r, http.StatusOK)(s.service.History(r.Context(), documentID, queryLimit(r, 50)))
		return
	}

	if len(parts) == 5 && parts[3] == "versions" && r.Method == http.MethodGet {
		s.respond(w, r, http.StatusOK)(s.service.Version(r.Context(), documentID, parts[4]))
		return
	}

	if len(parts) == 6 && parts[3] == "versions" && parts[5] == "tags" && r.Method == http.MethodPost {
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, r, http.StatusCreated)(s.service.TagVersion(r.Context(), documentID, parts[4], body.Name))
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

// respond writes payload with status, or the mapped error.
func (s *HTTPServer) respond(w http.ResponseWriter, r *http.Request, status int) func(map[string]any, error) {
	return func(payload map[string]any, err error) {
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, status, payload)
	}
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.service.logger.Error("request failed", "request_id", requestIDFrom(r.Context()), "code", code, "err", err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.service.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, X-Inkline-User")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// actorName is the display name recorded on commits and decisions.
func actorName(r *http.Request) string {
	if name := strings.TrimSpace(r.Header.Get("X-Inkline-User")); name != "" {
		return name
	}
	return "Anonymous"
}

func queryLimit(r *http.Request, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, suggest.ErrStaleBatch) {
		return http.StatusConflict, "STALE_BATCH", "Content changed while suggestions were fetched", nil
	}
	if errors.Is(err, suggest.ErrSourceFetch) {
		return http.StatusBadGateway, "SOURCE_UNAVAILABLE", "Suggestion source failed", nil
	}
	if errors.Is(err, suggest.ErrInvalidStatus) {
		return http.StatusUnprocessableEntity, "INVALID_STATUS", err.Error(), nil
	}
	var rangeErr *suggest.RangeError
	if errors.As(err, &rangeErr) || errors.Is(err, suggest.ErrMalformedRange) {
		return http.StatusUnprocessableEntity, "INVALID_RANGE", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
