package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dodgybits/shuffle/internal/snapshot"
	"github.com/dodgybits/shuffle/internal/store"
	shufflesync "github.com/dodgybits/shuffle/internal/sync"
	"github.com/dodgybits/shuffle/internal/validation"
)

const problemBaseURI = "https://github.com/dodgybits/shuffle/blob/main/docs/errors.md#"

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

type problemType struct {
	typeURI string
	title   string
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]problemType{
	http.StatusBadRequest:            {problemBaseURI + "bad-request", "Bad Request"},
	http.StatusUnauthorized:          {problemBaseURI + "unauthorized", "Unauthorized"},
	http.StatusNotFound:              {problemBaseURI + "not-found", "Not Found"},
	http.StatusRequestEntityTooLarge: {problemBaseURI + "too-large", "Request Entity Too Large"},
	http.StatusUnprocessableEntity:   {problemBaseURI + "validation-error", "Validation Error"},
	http.StatusInternalServerError:   {problemBaseURI + "internal-error", "Internal Server Error"},
	http.StatusServiceUnavailable:    {problemBaseURI + "service-unavailable", "Service Unavailable"},
}

func lookupProblemType(status int) problemType {
	if pt, ok := problemTypes[status]; ok {
		return pt
	}
	return problemType{typeURI: problemBaseURI + "unknown", title: http.StatusText(status)}
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt := lookupProblemType(status)
	writeProblemJSON(w, status, Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	})
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Kind     string                       `json:"kind,omitempty"`
	RemoteID int64                        `json:"remote_id,omitempty"`
	Errors   []validation.ValidationError `json:"errors,omitempty"`
}

// WriteTranslationProblem writes a 422 response describing the record that
// failed translation.
func WriteTranslationProblem(w http.ResponseWriter, r *http.Request, detail string, te *shufflesync.TranslationError) {
	pt := lookupProblemType(http.StatusUnprocessableEntity)
	writeProblemJSON(w, http.StatusUnprocessableEntity, ProblemWithErrors{
		Problem: Problem{
			Type:     pt.typeURI,
			Title:    pt.title,
			Status:   http.StatusUnprocessableEntity,
			Detail:   detail,
			Instance: r.URL.Path,
		},
		Kind:     te.Kind,
		RemoteID: int64(te.RemoteID),
		Errors:   te.Errors,
	})
}

func writeProblemJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// MapSyncError converts sync cycle errors to Problem Details responses.
func MapSyncError(w http.ResponseWriter, r *http.Request, err error) {
	var te *shufflesync.TranslationError
	switch {
	case errors.As(err, &te):
		WriteTranslationProblem(w, r, "Sync payload contains an invalid record", te)
	case errors.Is(err, shufflesync.ErrNilResponse):
		WriteProblem(w, r, http.StatusBadRequest, "Sync payload is empty")
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Referenced entity not found")
	default:
		// Never expose internal error details to client
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}

// MapStoreError converts store and backup errors to Problem Details responses.
func MapStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	case errors.Is(err, snapshot.ErrNotConfigured):
		WriteProblem(w, r, http.StatusServiceUnavailable, "Backup storage not configured")
	default:
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
