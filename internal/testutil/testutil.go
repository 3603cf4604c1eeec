// Package testutil provides shared test utilities and fixtures.
package testutil

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// SampleFASTA holds three short unaligned sequences.
const SampleFASTA = `>Human
ACGTACGTTAGCCGATAGCTAGCTAGGCTA
>Chimp
ACGTACGTTAGCCGATAGCTAGCTTGGCTA
>Gorilla
ACGTACCTTAGCCGATAGGTAGCTTGGCTA
`

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewJSONRequest creates a test POST request with a JSON body.
func NewJSONRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewUploadRequest creates a multipart POST request carrying content as
// the form file field.
func NewUploadRequest(t *testing.T, path, field, filename, content string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// FASTAHeaders returns the sequence names of a FASTA document in order.
func FASTAHeaders(data []byte) []string {
	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, ">") {
			fields := strings.Fields(line[1:])
			if len(fields) > 0 {
				names = append(names, fields[0])
			}
		}
	}
	return names
}
