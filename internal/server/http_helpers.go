package server

import (
	"encoding/json"
	"io"
	"net/http"

	"tilerunner/internal/engine"
)

func readJSON(body io.Reader, dest any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code engine.Code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  string(code),
	})
}

// writeEngineError maps engine error kinds onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch engine.KindOf(err) {
	case engine.KindNotFound:
		status = http.StatusNotFound
	case engine.KindPermissionDenied:
		status = http.StatusForbidden
	case engine.KindSequenceViolation:
		status = http.StatusConflict
	case engine.KindQuotaExceeded:
		status = http.StatusTooManyRequests
	case engine.KindValidation:
		status = http.StatusBadRequest
	case engine.KindConflict:
		status = http.StatusConflict
	}
	code := engine.CodeOf(err)
	if code == "" {
		code = "INTERNAL"
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeError(w, status, code, message)
}
