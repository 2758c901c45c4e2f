package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
)

// ErrorResponse is the standard error envelope returned by JSON endpoints.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// RespondJSON writes data as a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Failed to encode JSON response: %v", err)
		}
	}
}

// RespondError writes a standard error response.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// RespondErrorWithCode writes an error response with a machine-readable code.
func RespondErrorWithCode(w http.ResponseWriter, status int, code, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// RespondValidationError writes field-level validation errors as a 422 response.
func RespondValidationError(w http.ResponseWriter, fieldErrors map[string]string) {
	RespondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "Validation failed",
		Code:    "validation_error",
		Details: fieldErrors,
	})
}

// Renderer writes a page body
type Renderer interface {
	Render(buf *bytes.Buffer) error
}

// RenderFunc adapts a function to Renderer
type RenderFunc func(buf *bytes.Buffer) error

func (f RenderFunc) Render(buf *bytes.Buffer) error { return f(buf) }

// RespondHTML renders into a buffer first so a template error produces a
// clean 500 instead of a half-written page.
func RespondHTML(w http.ResponseWriter, status int, r Renderer) {
	var buf bytes.Buffer
	if err := r.Render(&buf); err != nil {
		log.Printf("Failed to render page: %v", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("Failed to write page: %v", err)
	}
}
