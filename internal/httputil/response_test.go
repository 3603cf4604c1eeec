package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "Invalid file format")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "Invalid file format" {
		t.Errorf("error = %s, want 'Invalid file format'", resp["error"])
	}
	if _, ok := resp["details"]; ok {
		t.Error("details should be omitted when empty")
	}
}

func TestWriteJSONErrorDetails(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONErrorDetails(rec, http.StatusInternalServerError, "Alignment failed", "exit status 1: bad input")

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error != "Alignment failed" || resp.Details != "exit status 1: bad input" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]string{"filepath": "uploads/x_a.fasta"})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["filepath"] != "uploads/x_a.fasta" {
		t.Errorf("filepath = %s", resp["filepath"])
	}
}

func TestStatusHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		write func(http.ResponseWriter)
		want  int
	}{
		{"MethodNotAllowed", MethodNotAllowed, http.StatusMethodNotAllowed},
		{"BadRequest", func(w http.ResponseWriter) { BadRequest(w, "invalid input") }, http.StatusBadRequest},
		{"TooManyRequests", func(w http.ResponseWriter) { TooManyRequests(w, "busy") }, http.StatusTooManyRequests},
		{"InternalServerError", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError},
		{"NotFound", func(w http.ResponseWriter) { NotFound(w, "missing") }, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
