// Package apperr defines the error taxonomy shared by the sync engine.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalid       = errors.New("invalid input")
	ErrNotConnected  = errors.New("remote storage is not connected")
	ErrSyncInFlight  = errors.New("sync already in flight")
	ErrPersistence   = errors.New("local persistence failed")
	ErrAuth          = errors.New("authentication failed")
	ErrTransient     = errors.New("transient remote failure")
	ErrNetwork       = fmt.Errorf("network error: %w", ErrTransient)
	ErrRemoteMissing = errors.New("remote file missing")
)

// APIError is a non-2xx response from the remote store.
type APIError struct {
	Op     string
	Status int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: remote API error: %d", e.Op, e.Status)
}

// Unwrap classifies the status: 5xx is transient, 401/403 is an auth
// failure, 404 means the backing file is gone.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status >= 500:
		return ErrTransient
	case e.Status == 401 || e.Status == 403:
		return ErrAuth
	case e.Status == 404:
		return ErrRemoteMissing
	}
	return nil
}

// IsTransient reports whether err is worth one automatic retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
