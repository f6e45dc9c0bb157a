package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/mackeh/aegismask/internal/moderation"
	"github.com/mackeh/aegismask/internal/security/redactor"
	"github.com/mackeh/aegismask/internal/wordlist"
)

// RequestIDHeader lets callers choose the request ID used in audit entries.
const RequestIDHeader = "X-Request-ID"

// FilterRequest is the body of POST /v1/filter. Keywords may hold
// non-string values; they are dropped or rejected per configuration.
type FilterRequest struct {
	Text             *string `json:"text"`
	List             string  `json:"list,omitempty"`
	Keywords         []any   `json:"keywords"`
	IgnoreWhitespace *bool   `json:"ignore_whitespace,omitempty"`
	CaseInsensitive  *bool   `json:"case_insensitive,omitempty"`
}

// FilterResponse is the body returned by POST /v1/filter.
type FilterResponse struct {
	ID       string   `json:"id"`
	Result   string   `json:"result"`
	Keywords []string `json:"keywords"`
	Decision string   `json:"decision"`
	List     string   `json:"list,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, moderation.ErrUnknownList):
		return http.StatusNotFound
	case errors.Is(err, redactor.ErrInvalidKeywordEncoding),
		errors.Is(err, wordlist.ErrNonStringEntry):
		return http.StatusUnprocessableEntity
	case errors.Is(err, moderation.ErrNoDictionary):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	var body FilterRequest
	if err := json.Unmarshal(data, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if body.Text == nil {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	req := moderation.Request{
		ID:               r.Header.Get(RequestIDHeader),
		Text:             *body.Text,
		List:             body.List,
		IgnoreWhitespace: body.IgnoreWhitespace,
		CaseInsensitive:  body.CaseInsensitive,
		Actor:            ActorFromContext(r.Context()),
	}
	if body.Keywords != nil {
		l, err := wordlist.FromValues(body.Keywords, s.strict)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		req.Keywords = l.Keywords
	}

	v, err := s.svc.Moderate(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("moderation failed", "err", err)
		}
		writeError(w, status, err.Error())
		return
	}

	w.Header().Set(RequestIDHeader, v.ID)
	writeJSON(w, http.StatusOK, FilterResponse{
		ID:       v.ID,
		Result:   v.Result,
		Keywords: v.Keywords,
		Decision: v.Decision.String(),
		List:     v.List,
	})
}

func (s *Server) handleLists(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"lists": s.svc.Lists()})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	info, err := s.svc.Reload(r.Context(), name)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"lists":   len(s.svc.Lists()),
		"clients": s.hub.ClientCount(),
	})
}
