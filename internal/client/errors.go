package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidRange = errors.New("requested range is outside the document")
	// ErrTransport wraps failures where no HTTP response was received.
	ErrTransport = errors.New("request could not be completed")
	// ErrContentChanged is returned by Documents.ReadAll when the document kept changing
	// while its windows were being read.
	ErrContentChanged = errors.New("document changed while being read")
)

// APIError is a non-2xx response from the document API.
type APIError struct {
	Status    int
	Code      string
	Detail    string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("docfabric: %d %s: %s", e.Status, e.Code, e.Message())
	}
	return fmt.Sprintf("docfabric: %d: %s", e.Status, e.Message())
}

// Message is the text to show a user: the server's detail when it sent one, otherwise a
// generic description of the status.
func (e *APIError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	if text := http.StatusText(e.Status); text != "" {
		return "request failed: " + text
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// Is lets callers test API failures against the package sentinels with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrInvalidInput:
		switch e.Status {
		case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
			return true
		}
	case ErrInvalidRange:
		return e.Status == http.StatusRequestedRangeNotSatisfiable
	}
	return false
}

// UserMessage renders any client error the way a view should display it.
func UserMessage(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return apiErr.Message()
	case errors.Is(err, ErrTransport):
		return "could not reach the document service"
	default:
		return err.Error()
	}
}
