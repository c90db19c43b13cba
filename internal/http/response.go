package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"wedding-expenses/internal/core"
	"wedding-expenses/internal/log"
)

const maxBodyBytes = 1 << 20

var errInvalidID = errors.New("invalid expense id")

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

// writeError maps service errors to status codes: missing expenses are 404,
// rejected input 400 and anything else 500 without internal details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.FromContext(r.Context())

	switch {
	case errors.Is(err, core.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Expense not found")
	case core.IsValidation(err), errors.Is(err, errInvalidID):
		logger.DebugContext(r.Context(), "Rejected request", log.FieldError, err)
		writeMessage(w, http.StatusBadRequest, validationMessage(err))
	default:
		logger.ErrorContext(r.Context(), "Request failed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

func validationMessage(err error) string {
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	return err.Error()
}

// decodeJSON reads one JSON document from the body. Malformed bodies are
// reported as validation failures.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &core.ValidationError{Field: "body", Err: errors.New("request body is empty")}
		}
		return &core.ValidationError{Field: "body", Err: fmt.Errorf("malformed JSON: %w", err)}
	}
	return nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidID, raw)
	}
	return id, nil
}
