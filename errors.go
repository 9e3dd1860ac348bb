package main

import (
	"errors"
	"fmt"
	"net/http"
)

// Request-level error kinds. Callers branch with errors.Is instead of
// matching message strings.
//
//   - ErrNotFound: a referenced user or row does not exist.
//   - ErrValidation: the caller sent a malformed value.
//   - ErrCollaborator: a storage or external-service call failed.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrCollaborator = errors.New("collaborator failed")
)

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// collabf tags err as a collaborator failure while keeping its message.
func collabf(err error, format string, args ...any) error {
	return fmt.Errorf("%s: %v: %w", fmt.Sprintf(format, args...), err, ErrCollaborator)
}

// writeKindError maps an error kind onto the JSON error envelope.
func writeKindError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error")
	default:
		writeError(w, http.StatusInternalServerError, "collaborator_error")
	}
}
