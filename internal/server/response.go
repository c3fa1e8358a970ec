package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	apperrors "github.com/radicugloss/radicugloss/internal/pkg/errors"
)

// writeJSON encodes v before the status is sent, so an unencodable value
// becomes a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		apperrors.WriteError(w, apperrors.InternalError("encode response", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
