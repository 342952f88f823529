package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/radio-control/fhc/internal/fh"
)

// Stable error codes.
const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeInvalidRange     = "INVALID_RANGE"
	CodeChannelState     = "CHANNEL_STATE"
	CodeNotFound         = "NOT_FOUND"
	CodeBusy             = "BUSY"
	CodeUnavailable      = "UNAVAILABLE"
	CodeInternal         = "INTERNAL"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// APIError is an error raised by the HTTP layer itself.
type APIError struct {
	Code       string
	Message    string
	Details    interface{}
	StatusCode int
}

// NewAPIError creates an APIError.
func NewAPIError(code, message string, statusCode int, details interface{}) *APIError {
	return &APIError{Code: code, Message: message, Details: details, StatusCode: statusCode}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ToAPIError maps err to an HTTP status and error envelope. Controller
// errors carry their action code in details.
func ToAPIError(err error) (int, *Response) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, ErrorResponse(apiErr.Code, apiErr.Message, apiErr.Details)
	}

	action := fh.Action(err)
	details := map[string]interface{}{
		"actionCode": int32(action),
		"action":     action.String(),
	}
	status, code := classify(err, action)
	return status, ErrorResponse(code, err.Error(), details)
}

func classify(err error, action fh.ActionCode) (int, string) {
	switch action {
	case fh.ErrCheckParam:
		if errors.Is(err, fh.ErrChannelState) {
			return http.StatusConflict, CodeChannelState
		}
		return http.StatusBadRequest, CodeInvalidRange
	case fh.WarnRerunFeature:
		return http.StatusServiceUnavailable, CodeBusy
	case fh.ErrCheckTimer, fh.ErrResetInterface:
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeErr(w http.ResponseWriter, err error) {
	status, resp := ToAPIError(err)
	writeResponse(w, status, resp)
}

func badRequest(message string) *APIError {
	return NewAPIError(CodeBadRequest, message, http.StatusBadRequest, nil)
}

func notFound(message string) *APIError {
	return NewAPIError(CodeNotFound, message, http.StatusNotFound, nil)
}
