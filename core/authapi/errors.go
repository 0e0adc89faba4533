package authapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Well-known machine-readable error codes from the server.
const (
	codeAccountInactive = "account_inactive"
	codeQuotaExhausted  = "quota_exhausted"
)

// StatusError is a non-2xx response. Code carries the machine-readable
// error code when the payload provides one.
type StatusError struct {
	StatusCode int
	Endpoint   string
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("authapi: %s returned %d (%s)", e.Endpoint, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("authapi: %s returned %d", e.Endpoint, e.StatusCode)
}

// QuotaExhausted reports whether the error payload signals an exhausted
// call budget. This is a soft signal: callers re-sync entitlements, they
// do not tear down the session.
func (e *StatusError) QuotaExhausted() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Code == codeQuotaExhausted
}

func asStatusError(err error) (*StatusError, bool) {
	var statusErr *StatusError
	ok := errors.As(err, &statusErr)
	return statusErr, ok
}

// errorPayload is the server's error envelope. Unknown shapes degrade to
// a bare status error.
type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newStatusError(endpoint string, resp *http.Response) *StatusError {
	statusErr := &StatusError{
		StatusCode: resp.StatusCode,
		Endpoint:   endpoint,
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return statusErr
	}

	var payload errorPayload
	if err := json.Unmarshal(raw, &payload); err == nil {
		statusErr.Code = payload.Code
		statusErr.Message = payload.Message
	}
	return statusErr
}
