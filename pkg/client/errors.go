package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dodgybits/shuffle/internal/validation"
)

// Sentinel errors matched by APIError via errors.Is.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrRejected     = errors.New("delta rejected")
	ErrUnavailable  = errors.New("service unavailable")
)

// APIError is an RFC 7807 problem returned by the server.
type APIError struct {
	StatusCode int                          `json:"status"`
	Type       string                       `json:"type"`
	Title      string                       `json:"title"`
	Detail     string                       `json:"detail"`
	Instance   string                       `json:"instance,omitempty"`
	Kind       string                       `json:"kind,omitempty"`
	RemoteID   int64                        `json:"remote_id,omitempty"`
	Errors     []validation.ValidationError `json:"errors,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%d %s", e.StatusCode, e.Title)
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Title, e.Detail)
}

// Unwrap maps the status code onto a sentinel error.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnprocessableEntity:
		return ErrRejected
	case http.StatusServiceUnavailable:
		return ErrUnavailable
	default:
		return nil
	}
}

func decodeProblem(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{}
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Title == "" {
		apiErr = &APIError{
			Title:  http.StatusText(resp.StatusCode),
			Detail: strings.TrimSpace(string(data)),
		}
	}
	apiErr.StatusCode = resp.StatusCode
	return apiErr
}
