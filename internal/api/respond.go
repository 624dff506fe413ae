// internal/api/respond.go
//
// JSON plumbing shared by every editor handler: body decoding with size
// limits, struct validation, and the apperr → HTTP status mapping.
//
// Notes
// -----
//   - Validation messages name the JSON field, not the Go field.
//   - 5xx bodies are generic; the real error goes to the log with the
//     request id so support can correlate.
//   - Oxford commas, two spaces after periods.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yanizio/sitepress/internal/apperr"
)

// maxBody caps editor request bodies.  Snapshots are structured page
// content, not media.
const maxBody = 2 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// readBody returns the raw request body, bounded by maxBody.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, apperr.Invalid("body", "exceeds %d bytes", tooBig.Limit)
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// decode unmarshals data into dst, mapping syntax errors to
// ValidationError.
func decode(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return apperr.Invalid("body", "malformed JSON: %v", err)
	}
	return nil
}

// check runs struct validation and converts the first failure.
func check(v any) error {
	err := validate.Struct(v)
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		fe := ves[0]
		return apperr.Invalid(fe.Field(), "failed %q validation", fe.Tag())
	}
	var inv *validator.InvalidValidationError
	if errors.As(err, &inv) {
		return nil // non-struct metadata carries no rules
	}
	return err
}

// pathID parses a numeric URL parameter.
func pathID(r *http.Request, name string) (uint64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Invalid(name, "must be a positive integer, got %q", raw)
	}
	return id, nil
}

// queryID parses an optional numeric query parameter; absent means 0.
func queryID(r *http.Request, name string) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperr.Invalid(name, "must be a positive integer, got %q", raw)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError maps err to a status and a body.  Internal errors are logged
// and answered with a generic message.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	if status == http.StatusInternalServerError {
		a.log.Errorw("editor request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", chimw.GetReqID(r.Context()), zap.Error(err))
		writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}

	body := errorBody{Error: err.Error()}
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	writeJSON(w, status, body)
}
