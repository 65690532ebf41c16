package matrix

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/matrix-org/gomatrix"
)

// Error is returned for every non-2xx homeserver response.
// It unwraps to a gomatrix.HTTPError whose WrappedError is the decoded
// gomatrix.RespError when the body is a standard Matrix error.
type Error struct {
	Op   string
	HTTP gomatrix.HTTPError
}

func (e *Error) Error() string {
	if respErr, ok := e.HTTP.WrappedError.(gomatrix.RespError); ok {
		return fmt.Sprintf("%s: HTTP %d: %s: %s", e.Op, e.HTTP.Code, respErr.ErrCode, respErr.Err)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.HTTP.Code, truncate(string(e.HTTP.Contents), 200))
}

func (e *Error) Unwrap() error {
	return e.HTTP
}

func newError(op string, status int, body []byte) error {
	httpErr := gomatrix.HTTPError{
		Code:     status,
		Contents: body,
		Message:  http.StatusText(status),
	}
	var respErr gomatrix.RespError
	if err := json.Unmarshal(body, &respErr); err == nil && respErr.ErrCode != "" {
		httpErr.WrappedError = respErr
	}
	return &Error{Op: op, HTTP: httpErr}
}

// StatusCode returns the HTTP status of a homeserver error, or 0.
func StatusCode(err error) int {
	var httpErr gomatrix.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the homeserver.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// ErrCode returns the Matrix errcode (e.g. M_FORBIDDEN) carried by err, or "".
func ErrCode(err error) string {
	var httpErr gomatrix.HTTPError
	if !errors.As(err, &httpErr) {
		return ""
	}
	if respErr, ok := httpErr.WrappedError.(gomatrix.RespError); ok {
		return respErr.ErrCode
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
