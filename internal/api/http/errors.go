package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/nehasri1207/RankSarthi/internal/exam"
	"github.com/nehasri1207/RankSarthi/internal/grading"
	"github.com/nehasri1207/RankSarthi/internal/normalization"
)

// APIError is the JSON body of every non-2xx response.
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string { return e.Message }

// Render implements render.Renderer.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

func newError(status int, code, msg string) *APIError {
	return &APIError{StatusCode: status, ErrorCode: code, Message: msg}
}

func errInvalidRequest(err error) *APIError {
	e := newError(http.StatusBadRequest, "INVALID_REQUEST", "invalid request format")
	e.Details = err.Error()
	return e
}

func errInvalidParameter(name string) *APIError {
	e := newError(http.StatusBadRequest, "INVALID_PARAMETER", "invalid parameter value")
	e.Details = name
	return e
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func errValidation(err error) *APIError {
	e := newError(http.StatusBadRequest, "VALIDATION_FAILED", "request validation failed")
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]fieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fieldError{Field: fe.Namespace(), Rule: fe.Tag()})
		}
		e.Details = details
	} else {
		e.Details = err.Error()
	}
	return e
}

var (
	errRateLimited         = newError(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "rate limit exceeded")
	errNormalizationHidden = newError(http.StatusForbidden, "NORMALIZATION_HIDDEN", "normalized scores are not published for this exam")
	errInternal            = newError(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error")
)

// errorFor maps domain errors onto API errors.
func errorFor(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, exam.ErrExamNotFound):
		return newError(http.StatusNotFound, "EXAM_NOT_FOUND", "exam not found")
	case errors.Is(err, exam.ErrResultNotFound):
		return newError(http.StatusNotFound, "RESULT_NOT_FOUND", "no stored result for this roll number")
	case errors.Is(err, grading.ErrInvalidCounts):
		e := newError(http.StatusBadRequest, "INVALID_COUNTS", "invalid correct/wrong counts")
		e.Details = err.Error()
		return e
	case errors.Is(err, exam.ErrStaleBatch):
		return newError(http.StatusConflict, "STALE_BATCH", "results changed during normalization; retry")
	case errors.Is(err, normalization.ErrPersistence):
		return newError(http.StatusInternalServerError, "PERSISTENCE_FAILURE", "normalization could not be saved")
	default:
		return errInternal
	}
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	_ = render.Render(w, r, errorFor(err))
}
