package api

import (
	"errors"
	"net/http"

	"github.com/radio-control/wifid/internal/errcode"
)

// ErrBadRequest marks a malformed request body.
var ErrBadRequest = errors.New("BAD_REQUEST")

// ToAPIError converts an error to an HTTP status and error envelope.
func ToAPIError(err error) (int, *Response) {
	if errors.Is(err, ErrBadRequest) {
		return http.StatusBadRequest, ErrorResponse("BAD_REQUEST", err.Error(), nil)
	}

	code := errcode.Code(err)
	status := statusForCode(code)

	var details interface{}
	var callErr *errcode.CallError
	if errors.As(err, &callErr) {
		details = map[string]string{"detail": callErr.Detail()}
	}
	return status, ErrorResponse(code, messageForCode(code, err), details)
}

func statusForCode(code string) int {
	switch code {
	case "OK":
		return http.StatusOK
	case "INVALID_ARGUMENT":
		return http.StatusBadRequest
	case "NOT_READY", "OPEN_FAILED":
		return http.StatusServiceUnavailable
	case "NOT_SUPPORTED":
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func messageForCode(code string, err error) string {
	switch code {
	case "INVALID_ARGUMENT":
		return err.Error()
	case "NOT_READY":
		return "Supplicant interface is not ready, retry later"
	case "NOT_SUPPORTED":
		return "Operation not supported on this platform"
	case "READ_FAILED":
		return "Failed to read interface data"
	case "OPEN_FAILED":
		return "Failed to open the diagnostics source"
	default:
		return "Internal server error"
	}
}
