package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", Invalid("slug", "must not be empty"), http.StatusBadRequest},
		{"not found", NotFound("page", 7), http.StatusNotFound},
		{"conflict", Conflict("page", "home"), http.StatusConflict},
		{"wrapped not found", fmt.Errorf("publish: %w", NotFound("page", 7)), http.StatusNotFound},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Status(tc.err); got != tc.want {
				t.Fatalf("Status = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	if got := NotFound("revision", 12).Error(); got != `revision "12" not found` {
		t.Fatalf("unexpected message %q", got)
	}
	if got := Invalid("", "empty payload").Error(); got != "validation: empty payload" {
		t.Fatalf("unexpected message %q", got)
	}
}
