package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestErrorConstructors(t *testing.T) {
	if err := notFoundf("user %d", 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("notFoundf does not match ErrNotFound: %v", err)
	}
	if err := validationf("min_age %q", "abc"); !errors.Is(err, ErrValidation) {
		t.Errorf("validationf does not match ErrValidation: %v", err)
	}

	cause := errors.New("connection refused")
	err := collabf(cause, "trait lookup for user %d", 7)
	if !errors.Is(err, ErrCollaborator) {
		t.Errorf("collabf does not match ErrCollaborator: %v", err)
	}
	if err.Error() != "trait lookup for user 7: connection refused: collaborator failed" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestWriteKindError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"NotFound", notFoundf("user 1"), http.StatusNotFound, "not_found"},
		{"Validation", validationf("bad input"), http.StatusBadRequest, "validation_error"},
		{"Collaborator", collabf(errors.New("boom"), "query"), http.StatusInternalServerError, "collaborator_error"},
		{"Unknown", errors.New("boom"), http.StatusInternalServerError, "collaborator_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeKindError(rr, tt.err)
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
			var body map[string]string
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if body["error"] != tt.code {
				t.Errorf("error code = %q, want %q", body["error"], tt.code)
			}
		})
	}
}
