package api

import (
	"context"
	"errors"
	"mime"
	"net/http"

	"github.com/mohammed-shakir/mfp-encoder/internal/encoder"
	"github.com/mohammed-shakir/mfp-encoder/internal/jobstore"
	"github.com/mohammed-shakir/mfp-encoder/internal/mapstate"
	"github.com/mohammed-shakir/mfp-encoder/internal/report"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, mapstate.ErrInvalidDocument),
		errors.Is(err, encoder.ErrInvalidOptions):
		return http.StatusBadRequest
	case errors.Is(err, jobstore.ErrNotFound),
		errors.Is(err, report.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, encoder.ErrUnsupportedLayer),
		errors.Is(err, encoder.ErrInvalidLayer),
		errors.Is(err, encoder.ErrProjection),
		errors.Is(err, encoder.ErrPropertyCollision):
		return http.StatusUnprocessableEntity
	case errors.Is(err, report.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, report.ErrService),
		errors.Is(err, report.ErrReportFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "request failed", "err", err, "status", code, "path", r.URL.Path)
	} else {
		h.log.InfoContext(r.Context(), "request rejected", "err", err, "status", code, "path", r.URL.Path)
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func contentType(format string) string {
	if t := mime.TypeByExtension("." + format); t != "" {
		return t
	}
	return "application/octet-stream"
}
