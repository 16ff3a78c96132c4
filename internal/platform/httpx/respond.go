// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultBodyLimit caps JSON request bodies.
const DefaultBodyLimit int64 = 1 << 20

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return DecodeJSONLimit(nil, r, target, DefaultBodyLimit)
}

// DecodeJSONLimit decodes at most limit bytes of the body. Empty bodies, the
// literal null, malformed JSON and oversize payloads all wrap ErrValidation.
func DecodeJSONLimit(w http.ResponseWriter, r *http.Request, target any, limit int64) error {
	if r.Body == nil {
		return fmt.Errorf("request body required: %w", ErrValidation)
	}
	body := http.MaxBytesReader(w, r.Body, limit)
	raw, err := io.ReadAll(body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body too large: %w", ErrValidation)
		}
		return fmt.Errorf("read request body: %w", ErrValidation)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fmt.Errorf("request body required: %w", ErrValidation)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("malformed JSON body: %w", ErrValidation)
	}
	return nil
}
