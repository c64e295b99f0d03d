package rest

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrHTTP = errors.New("lighter http error")
	ErrAPI  = errors.New("lighter api error")
)

// HTTPError is returned for every response with status >= 400.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Code       int
	Message    string
	Header     http.Header
}

func (e *HTTPError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("http %d %s %s: code %d: %s", e.StatusCode, e.Method, e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d %s %s: %s", e.StatusCode, e.Method, e.Path, e.Message)
}

func (e *HTTPError) Unwrap() error { return ErrHTTP }

// APIError reports a 2xx response whose body carries a non-success code.
type APIError struct {
	Path    string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: code %d: %s", e.Path, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return ErrAPI }

// StatusCode extracts the HTTP status from err when it wraps an HTTPError.
func StatusCode(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, true
	}
	return 0, false
}

// CheckCode converts a body-level error code into an APIError.
// Bodies without a code field, or with code 200, pass.
func CheckCode(path string, resp map[string]any) error {
	code, ok := intFromAny(resp["code"])
	if !ok || code == http.StatusOK {
		return nil
	}
	msg, _ := resp["message"].(string)
	return &APIError{Path: path, Code: code, Message: msg}
}
