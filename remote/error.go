// Package remote holds the error contract shared by the REST clients that talk to
// the document store and the identity provider.
package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Error is a non-success HTTP response from a remote service.
type Error struct {
	StatusCode int    // HTTP status code
	Status     string // canonical status, e.g. NOT_FOUND, when the body carries one
	Message    string
}

func (e *Error) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("remote: %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("remote: %d: %s", e.StatusCode, e.Message)
}

// errorBody matches {"error": {"code": 404, "message": "...", "status": "NOT_FOUND"}}.
type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// FromResponse builds an Error from resp, taking the message from the body when
// the body has one. It reads but does not close the body.
func FromResponse(resp *http.Response) *Error {
	e := &Error{StatusCode: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body errorBody
	if len(data) > 0 && json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		e.Message = body.Error.Message
		e.Status = body.Error.Status
	} else if text := strings.TrimSpace(string(data)); text != "" && !strings.HasPrefix(text, "{") {
		e.Message = text
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	var re *Error
	return errors.As(err, &re) && (re.StatusCode == http.StatusNotFound || re.Status == "NOT_FOUND")
}

// IsConflict reports whether err is a failed precondition or an aborted write,
// i.e. the document changed between read and write.
func IsConflict(err error) bool {
	var re *Error
	if !errors.As(err, &re) {
		return false
	}
	switch re.Status {
	case "ABORTED", "FAILED_PRECONDITION":
		return true
	}
	return re.StatusCode == http.StatusConflict || re.StatusCode == http.StatusPreconditionFailed
}

// IsUnauthorized reports whether the remote rejected the bearer credential.
func IsUnauthorized(err error) bool {
	var re *Error
	return errors.As(err, &re) && (re.StatusCode == http.StatusUnauthorized || re.StatusCode == http.StatusForbidden)
}
