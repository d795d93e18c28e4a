package domain

import "errors"

var (
	// ErrEmptyCorpus signals that the loaded corpus has zero records.
	// Fatal at startup: no retriever can be built over it.
	ErrEmptyCorpus = errors.New("corpus is empty")
	// ErrEmbeddingUnavailable signals that the embedding backend could
	// not be reached. Fatal at semantic retriever construction.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrNotBuilt signals a retrieve call against an index that was
	// never built.
	ErrNotBuilt = errors.New("index not built")
	// ErrRetrieval wraps per-query retriever failures. Surfaced to the
	// boundary as a structured error, never fatal to the process.
	ErrRetrieval = errors.New("retrieval failed")
	// ErrBadRequest signals an invalid request from the boundary layer.
	ErrBadRequest = errors.New("bad request")
)
