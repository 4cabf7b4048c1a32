// Package dropbox provides a client for the Dropbox HTTP API v2: request
// dispatch across the API's endpoint families, status classification,
// response normalization, resumable upload sessions and the OAuth2
// authorization code flow.
package dropbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for the failure taxonomy.
// Use errors.Is(err, dropbox.ErrConflict) to check.
var (
	ErrTransport       = errors.New("dropbox: transport error")
	ErrBadInput        = errors.New("dropbox: bad input parameters")
	ErrBadToken        = errors.New("dropbox: bad or expired token")
	ErrConflict        = errors.New("dropbox: endpoint-specific error")
	ErrTooManyRequests = errors.New("dropbox: too many requests")
	ErrServerError     = errors.New("dropbox: internal server error")
	ErrRequest         = errors.New("dropbox: request failed")
	ErrMalformedJSON   = errors.New("dropbox: malformed JSON response")
	ErrCSRF            = errors.New("dropbox: CSRF token validation failed")
	ErrProtocol        = errors.New("dropbox: OAuth2 protocol violation")
	ErrAccessDenied    = errors.New("dropbox: user denied authorization")
	ErrAuthProvider    = errors.New("dropbox: authorization provider error")
	ErrFileSystem      = errors.New("dropbox: local file system error")
)

// APIError is returned for every non-200 response. It wraps the sentinel
// selected by classifyStatus so callers can match with errors.Is.
type APIError struct {
	StatusCode int
	RequestID  string
	Body       string
	// Message is the human-readable form. For 409 responses it is derived
	// from error_summary; otherwise it is the raw body.
	Message string
	// Summary is the raw error_summary field, empty when absent.
	Summary string
	Err     error
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("dropbox: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("dropbox: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// TransportError reports a request that produced no HTTP response at all.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dropbox: %s %s: %v", e.Method, e.URL, e.Err)
}

// Is lets errors.Is(err, ErrTransport) match without hiding the cause.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthError is raised when the authorization callback carries an error
// parameter instead of a code.
type AuthError struct {
	Code        string
	Description string
}

func (e *AuthError) Error() string {
	if e.Code == oauthAccessDenied {
		if e.Description == "" {
			return "dropbox: authorization denied by user (no additional description)"
		}

		return "dropbox: authorization denied by user: " + e.Description
	}

	if e.Description == "" {
		return "dropbox: authorization failed: " + e.Code
	}

	return fmt.Sprintf("dropbox: authorization failed: %s: %s", e.Code, e.Description)
}

func (e *AuthError) Unwrap() error {
	if e.Code == oauthAccessDenied {
		return ErrAccessDenied
	}

	return ErrAuthProvider
}

// FileError reports a local read or write failure around an upload or download.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("dropbox: %s %s", e.Op, e.Path)
	}

	return fmt.Sprintf("dropbox: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Is(target error) bool {
	return target == ErrFileSystem
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for exactly 200; every other code maps to one sentinel.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusBadRequest:
		return ErrBadInput
	case code == http.StatusUnauthorized:
		return ErrBadToken
	case code == http.StatusConflict:
		return ErrConflict
	case code == http.StatusTooManyRequests:
		return ErrTooManyRequests
	case code >= http.StatusInternalServerError:
		return ErrServerError
	default:
		return ErrRequest
	}
}

// newAPIError builds the typed error for a non-200 response.
func newAPIError(code int, requestID string, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: code,
		RequestID:  requestID,
		Body:       string(body),
		Message:    string(body),
		Err:        classifyStatus(code),
	}

	if code == http.StatusConflict {
		apiErr.Summary = errorSummary(body)
		if apiErr.Summary != "" {
			apiErr.Message = summaryMessage(apiErr.Summary)
		}
	}

	return apiErr
}

// errorSummary extracts error_summary from a JSON error body.
// Returns "" if the body is not JSON or has no summary.
func errorSummary(body []byte) string {
	var parsed struct {
		ErrorSummary string `json:"error_summary"`
	}

	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}

	return parsed.ErrorSummary
}

// summaryMessage turns "path/not_found/.." into "path - not_found".
// Dot-only and empty segments are padding the API appends and are dropped.
func summaryMessage(summary string) string {
	parts := strings.Split(summary, "/")
	kept := make([]string, 0, len(parts))

	for _, p := range parts {
		switch p {
		case "", ".", "..", "...":
			continue
		default:
			kept = append(kept, p)
		}
	}

	return strings.Join(kept, " - ")
}

// IsNotFound reports whether err is a 409 whose summary names a missing path.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		return false
	}

	return strings.Contains(apiErr.Summary, "not_found")
}
