package memory

import (
	"errors"
	"fmt"
)

// Kind is the closed taxonomy of error kinds a caller can branch on. Client
// handlers translate any Kind to a stable {code, message, retryable} shape;
// workers record the same kinds on the job row rather than surfacing them.
type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindConfiguration   Kind = "ConfigurationError"
	KindEmbedding       Kind = "EmbeddingError"
	KindStorage         Kind = "StorageError"
	KindRetrieval       Kind = "RetrievalError"
	KindExtraction      Kind = "ExtractionError"
	KindEntityResolution Kind = "EntityResolutionError"
	KindNotFound        Kind = "NotFoundError"
	KindTimeout         Kind = "TimeoutError"
)

// retryableByDefault records which kinds are retryable absent an explicit
// override at the call site.
var retryableByDefault = map[Kind]bool{
	KindValidation:       false,
	KindConfiguration:    false,
	KindEmbedding:        true,
	KindStorage:          true,
	KindRetrieval:        true,
	KindExtraction:       false,
	KindEntityResolution: false,
	KindNotFound:         false,
	KindTimeout:          true,
}

// Error is the single error type used across package boundaries. It wraps
// an underlying cause and tags it with a Kind for taxonomy-based handling.
type Error struct {
	Kind      Kind
	Message   string
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause, Retryable: retryableByDefault[kind]}
}

func NewValidationError(msg string, cause error) *Error { return newError(KindValidation, msg, cause) }
func NewConfigurationError(msg string, cause error) *Error {
	return newError(KindConfiguration, msg, cause)
}
func NewEmbeddingError(msg string, cause error) *Error { return newError(KindEmbedding, msg, cause) }
func NewStorageError(msg string, cause error) *Error   { return newError(KindStorage, msg, cause) }
func NewRetrievalError(msg string, cause error) *Error { return newError(KindRetrieval, msg, cause) }
func NewExtractionError(msg string, cause error) *Error {
	return newError(KindExtraction, msg, cause)
}
func NewEntityResolutionError(msg string, cause error) *Error {
	return newError(KindEntityResolution, msg, cause)
}
func NewNotFoundError(msg string, cause error) *Error { return newError(KindNotFound, msg, cause) }
func NewTimeoutError(msg string, cause error) *Error  { return newError(KindTimeout, msg, cause) }

// KindOf extracts the Kind from err if it is (or wraps) a *Error, reporting
// ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
