package api

import (
	"errors"
	"net/http"

	"luminatext/internal/transcription"

	"github.com/gin-gonic/gin"
)

const requestIDKey = "request_id"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
}

// HTTPStatus returns the status code for a failure kind.
func HTTPStatus(kind transcription.Kind) int {
	switch kind {
	case transcription.KindUnsupportedFormat,
		transcription.KindEmptyFile,
		transcription.KindBadRequest:
		return http.StatusBadRequest
	case transcription.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case transcription.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an ErrorResponse. Errors that do not carry a
// kind are reported as unexpected with a generic detail.
func respondError(c *gin.Context, err error) {
	var e *transcription.Error
	if !errors.As(err, &e) {
		e = &transcription.Error{
			Kind:    transcription.KindUnexpected,
			Message: "Internal server error",
			Err:     err,
		}
	}
	_ = c.Error(err)
	abortWithError(c, HTTPStatus(e.Kind), string(e.Kind), e.Message)
}

func abortWithError(c *gin.Context, status int, kind, detail string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Detail:    detail,
		Kind:      kind,
		RequestID: c.GetString(requestIDKey),
	})
}
