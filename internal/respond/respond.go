// Package respond writes JSON responses. Every error the API returns has the
// shape {"error": "..."} so clients can rely on a single field.
package respond

import (
	"encoding/json"
	"net/http"
)

const contentType = "application/json; charset=utf-8"

type errorBody struct {
	Error string `json:"error"`
}

// JSON marshals v and writes it with status. A value that fails to marshal
// becomes a 500 with the generic error body; nothing partial is written.
func JSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal server error"}`)
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes {"error": msg} with status.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, errorBody{Error: msg})
}

// BadRequest is the validation failure convention.
func BadRequest(w http.ResponseWriter, msg string) {
	Error(w, http.StatusBadRequest, msg)
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
