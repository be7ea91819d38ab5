package contract

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by stores and the orchestrator.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid job transition")
	ErrNotComplete       = errors.New("job is not complete")
	ErrQueueFull         = errors.New("too many requests")
)

// IngestionError is fatal to a job: bad URL, oversized repository, clone failure, empty window.
type IngestionError struct {
	Op  string
	Err error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed (%s): %v", e.Op, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// AuthError means pull request data could not be fetched. Stages that need it are skipped.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("pull request data unavailable: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Classifier failure kinds.
const (
	ClassifierTimeout   = "timeout"
	ClassifierTransport = "transport"
	ClassifierDecode    = "decode"
	ClassifierInvalid   = "invalid"
)

// ClassifierError is a per-item failure. The item is skipped and the stage continues.
type ClassifierError struct {
	Kind string
	Item string
	Err  error
}

func (e *ClassifierError) Error() string {
	if e.Item == "" {
		return fmt.Sprintf("classifier %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("classifier %s for %s: %v", e.Kind, e.Item, e.Err)
}

func (e *ClassifierError) Unwrap() error { return e.Err }

// CacheError is a durable-cache failure. It is logged and never surfaced to subscribers.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// ProtocolError rejects a malformed submission before a job exists.
type ProtocolError struct {
	Field  string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsProtocolError reports whether err carries a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsAuthError reports whether err carries an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
