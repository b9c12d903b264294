package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrMalformedInput signals a request rejected before any work is done.
	ErrMalformedInput = errors.New("malformed input")

	// ErrEmbedding signals that the encoder could not be loaded or failed to encode.
	ErrEmbedding = errors.New("embedding failed")
	// ErrEmbeddingProviderError signals a remote embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")

	// ErrRetrieverUnavailable signals that an index or text search backend is down.
	ErrRetrieverUnavailable = errors.New("retriever unavailable")
	// ErrAllRetrieversFailed signals that no retriever produced a usable result.
	ErrAllRetrieversFailed = errors.New("all retrievers failed")
	// ErrKeywordSearchNotSupported signals that the backend lacks keyword search.
	ErrKeywordSearchNotSupported = errors.New("keyword search not supported by backend")

	// ErrRerankUnavailable signals that every reranking strategy failed.
	ErrRerankUnavailable = errors.New("rerank unavailable")
)

// RetrieverError tags a retriever failure with the retriever name.
type RetrieverError struct {
	Retriever string
	Err       error
}

func (e *RetrieverError) Error() string {
	return fmt.Sprintf("%s retriever: %s: %v", e.Retriever, ErrRetrieverUnavailable.Error(), e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is.
func (e *RetrieverError) Unwrap() []error { return []error{ErrRetrieverUnavailable, e.Err} }

// NewRetrieverError wraps err as a retriever failure. Nil stays nil.
func NewRetrieverError(retriever string, err error) error {
	if err == nil {
		return nil
	}
	return &RetrieverError{Retriever: retriever, Err: err}
}

// Malformed builds an ErrMalformedInput with a field-level message.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}
