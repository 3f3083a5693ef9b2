package errors

import "errors"

// Error taxonomy shared by the ingestion and query pipelines. Handlers map
// these onto HTTP codes; services wrap them with %w so errors.Is keeps
// working across layers.
var (
	// ErrConfiguration marks missing or invalid model/index configuration.
	// Fatal at startup, never surfaced as a per-request retryable error.
	ErrConfiguration = errors.New("configuration error")

	// ErrResourceUnavailable means a required backend (embedding model or
	// vector index) is unreachable at request time. The request fails, no
	// fallback exists.
	ErrResourceUnavailable = errors.New("resource unavailable")

	// ErrEmbedderUnavailable and ErrGeneratorUnavailable refine
	// ErrResourceUnavailable. The two failures need different operator
	// responses (re-seed embeddings vs investigate the generation backend),
	// so they stay distinguishable.
	ErrEmbedderUnavailable  = errors.New("embedding model unavailable")
	ErrGeneratorUnavailable = errors.New("generation model unavailable")

	// ErrGenerationDegraded signals that generation failed after retrieval
	// succeeded; the query pipeline answers with a fallback response instead
	// of failing the request.
	ErrGenerationDegraded = errors.New("generation degraded")

	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrTooMany    = errors.New("too many requests")
	ErrInternal   = errors.New("internal")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsResourceUnavailable matches the whole unavailable family, including the
// embedder and generator refinements.
func IsResourceUnavailable(err error) bool {
	return errors.Is(err, ErrResourceUnavailable) ||
		errors.Is(err, ErrEmbedderUnavailable) ||
		errors.Is(err, ErrGeneratorUnavailable)
}
