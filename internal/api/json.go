package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/starford/voxnote/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps a sentinel onto its HTTP status. Order matters: the first
// match wins for errors wrapping more than one sentinel.
var statusFor = []struct {
	err    error
	status int
}{
	{apperr.ErrUnauthenticated, http.StatusUnauthorized},
	{apperr.ErrNotFound, http.StatusNotFound},
	{apperr.ErrNoSelection, http.StatusConflict},
	{apperr.ErrInvalidState, http.StatusConflict},
	{apperr.ErrStaleResult, http.StatusConflict},
	{apperr.ErrEmptyTranscript, http.StatusUnprocessableEntity},
	{apperr.ErrCaptureUnsupported, http.StatusNotImplemented},
	{apperr.ErrGenerationUnavailable, http.StatusServiceUnavailable},
	{apperr.ErrStoreUnavailable, http.StatusServiceUnavailable},
	{apperr.ErrGenerationFailed, http.StatusBadGateway},
	{apperr.ErrStoreWrite, http.StatusBadGateway},
}

// writeError reports err once. Sentinel errors answer with the sentinel's
// text; anything else is logged and hidden behind "internal error".
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	for _, m := range statusFor {
		if errors.Is(err, m.err) {
			if m.status >= http.StatusInternalServerError {
				slog.Error(op+" failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
			}
			writeJSON(w, m.status, errorBody(m.err.Error()))
			return
		}
	}
	slog.Error(op+" failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

// decodeBody reads a JSON body of at most 1 MiB into v. An empty body
// leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
	return false
}
