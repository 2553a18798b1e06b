package store

import "errors"

// ErrNotFound reports that a namespace holds no records. It is an expected
// outcome of FetchAll, not a backend failure.
var ErrNotFound = errors.New("not found")

// BackendError wraps a failure returned by the underlying store. Error
// returns the backend's own diagnostic message unchanged so callers can
// surface it verbatim.
type BackendError struct {
	Op        string
	Namespace string
	Key       string
	Err       error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return e.Op + " failed"
	}
	return e.Err.Error()
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsBackendFailure reports whether err is, or wraps, a BackendError.
func IsBackendFailure(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

func backendErr(op, namespace, key string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Namespace: namespace, Key: key, Err: err}
}

// Operation names used in BackendError.Op, metrics labels and span names.
const (
	OpInsert       = "insert"
	OpFetchAll     = "fetch_all"
	OpUpdateFields = "update_fields"
	OpRemove       = "remove"
)
