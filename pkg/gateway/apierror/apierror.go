// Package apierror converts internal errors to the JSON error envelope the
// web client consumes.
package apierror

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alpha-ultimate/yusra/pkg/chat"
)

type Type string

const (
	ErrInvalidRequest Type = "invalid_request_error"
	ErrAuthentication Type = "authentication_error"
	ErrNotFound       Type = "not_found_error"
	ErrConflict       Type = "conflict_error"
	ErrAPI            Type = "api_error"
)

type Error struct {
	Type      Type   `json:"type"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

type Envelope struct {
	Error *Error `json:"error"`
}

// FromError maps an error to its wire form and HTTP status.
func FromError(err error, requestID string) (*Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Type:      ErrAPI,
			Message:   "request timeout",
			Code:      "timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &Error{
			Type:      ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr != nil {
		out := *apiErr
		out.RequestID = requestID
		return &out, statusFromType(out.Type)
	}

	switch {
	case errors.Is(err, chat.ErrBusy):
		return &Error{
			Type:      ErrConflict,
			Message:   "a response is already in flight for this session",
			Code:      "session_busy",
			RequestID: requestID,
		}, http.StatusConflict
	case errors.Is(err, chat.ErrSessionNotFound):
		return &Error{
			Type:      ErrNotFound,
			Message:   "session not found",
			RequestID: requestID,
		}, http.StatusNotFound
	case errors.Is(err, chat.ErrEmptySubmit):
		return &Error{
			Type:      ErrInvalidRequest,
			Message:   "message text and attachments are both empty",
			RequestID: requestID,
		}, http.StatusBadRequest
	}

	// Unknown errors: do not leak details.
	return &Error{
		Type:      ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

func statusFromType(t Type) int {
	switch t {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAuthentication:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	default:
		// api_error and anything unrecognized surface the same way an
		// unknown internal error does.
		return http.StatusInternalServerError
	}
}
