package api

import (
	"errors"
	"net/http"

	"github.com/banshee-data/phylo.report/internal/httputil"
	"github.com/banshee-data/phylo.report/internal/newick"
	"github.com/banshee-data/phylo.report/internal/pipeline"
	"github.com/banshee-data/phylo.report/internal/stage"
)

// busyMessage is the 429 body text. The browser client matches it exactly.
const busyMessage = "Another process is currently running. Please wait."

// statusFor maps a pipeline error to an HTTP status code. Stage and parse
// failures fall through to 500 with everything else.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrAdmissionDenied):
		return http.StatusTooManyRequests
	case errors.Is(err, pipeline.ErrValidation),
		errors.Is(err, pipeline.ErrMissingFields),
		errors.Is(err, pipeline.ErrInvalidState),
		errors.Is(err, pipeline.ErrArtifactNotFound),
		errors.Is(err, pipeline.ErrUnknownRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError replies with the status statusFor picks. Client errors carry
// the error text; server errors carry failure as the message, and stage or
// parse failures add their diagnostic as details.
func writeError(w http.ResponseWriter, err error, failure string) {
	status := statusFor(err)
	switch {
	case status == http.StatusTooManyRequests:
		httputil.TooManyRequests(w, busyMessage)
	case status < http.StatusInternalServerError:
		httputil.WriteJSONError(w, status, err.Error())
	default:
		var stageErr *stage.Error
		var parseErr *newick.ParseError
		switch {
		case errors.As(err, &stageErr):
			httputil.WriteJSONErrorDetails(w, status, failure, stageErr.Diagnostic)
		case errors.As(err, &parseErr):
			httputil.WriteJSONErrorDetails(w, status, failure, parseErr.Error())
		default:
			logf("%s: %v", failure, err)
			httputil.InternalServerError(w, failure)
		}
	}
}
