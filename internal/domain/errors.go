package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches two DomainErrors by code, so wrapped instances compare
// equal to their sentinel.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation             = "VALIDATION_ERROR"
	ErrCodeNotFound               = "NOT_FOUND"
	ErrCodeInternalError          = "INTERNAL_ERROR"
	ErrCodeInferenceUnavailable   = "INFERENCE_UNAVAILABLE"
	ErrCodeVectorStoreUnavailable = "VECTOR_STORE_UNAVAILABLE"
	ErrCodeMalformedDocument      = "MALFORMED_DOCUMENT"
	ErrCodeCacheCorruption        = "CACHE_CORRUPTION"
	ErrCodeEmbedding              = "EMBEDDING_ERROR"
)

// Validation errors
var (
	ErrEmptyQuery           = NewDomainError(ErrCodeValidation, "query is empty")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidChunkConfig   = NewDomainError(ErrCodeValidation, "invalid chunking configuration")
	ErrInvalidTopK          = NewDomainError(ErrCodeValidation, "top k must be positive")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
)

// Transient inference failures: timeouts, rate limits, 5xx responses.
// Callers may retry these.
var (
	ErrInferenceUnavailable = NewDomainError(ErrCodeInferenceUnavailable, "embedding service unavailable")
)

// Vector store failures. Operations fail loudly rather than return
// partial or empty results.
var (
	ErrVectorStoreUnavailable = NewDomainError(ErrCodeVectorStoreUnavailable, "vector store unavailable")
)

// Document and cache data errors
var (
	ErrMalformedDocument = NewDomainError(ErrCodeMalformedDocument, "document produced no usable text")
	ErrCacheCorruption   = NewDomainError(ErrCodeCacheCorruption, "cache entry is corrupted")
	ErrWrongDimensions   = NewDomainError(ErrCodeEmbedding, "embedding has wrong dimensions")
)

// IsTransient reports whether err is a transient inference failure
// worth retrying.
func IsTransient(err error) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == ErrCodeInferenceUnavailable
}

// IsMalformed reports whether err marks a document that should be
// skipped rather than failing the whole ingest.
func IsMalformed(err error) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == ErrCodeMalformedDocument
}

// IsCacheCorruption reports whether err is a corrupted cache entry,
// which callers treat as a miss.
func IsCacheCorruption(err error) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == ErrCodeCacheCorruption
}

// IsStoreUnavailable reports whether err is a vector store
// connectivity failure.
func IsStoreUnavailable(err error) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == ErrCodeVectorStoreUnavailable
}
