package sync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dodgybits/shuffle/internal/types"
	"github.com/dodgybits/shuffle/internal/validation"
)

var (
	// ErrTranslation indicates a wire record could not be converted.
	ErrTranslation = errors.New("translation failed")

	// ErrUnresolvedInsert indicates a newly inserted row could not be found by name.
	ErrUnresolvedInsert = errors.New("inserted entity not found by name")

	// ErrInsertCountMismatch indicates the gateway returned a different number
	// of rows than it was asked to insert.
	ErrInsertCountMismatch = errors.New("bulk insert returned unexpected row count")

	// ErrNilResponse is returned when a sync cycle is started without a payload.
	ErrNilResponse = errors.New("sync response is nil")
)

// TranslationError describes a wire record that failed validation.
type TranslationError struct {
	Kind     string                       `json:"kind"`
	RemoteID types.ID                     `json:"remote_id"`
	Errors   []validation.ValidationError `json:"errors"`
}

// Error implements the error interface.
func (e *TranslationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("%s %s: %s", e.Kind, e.RemoteID, strings.Join(msgs, "; "))
}

// Unwrap returns ErrTranslation for errors.Is() compatibility.
func (e *TranslationError) Unwrap() error {
	return ErrTranslation
}
