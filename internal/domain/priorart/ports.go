package priorart

import "context"

// Embedder turns text into a dense vector. Vectors produced by one Embedder
// share a dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CandidateSource retrieves documents that may be similar to query.
// sources restricts the document types returned; empty means all types.
// lookbackDays ≤ 0 means no date restriction.
type CandidateSource interface {
	SearchCandidates(ctx context.Context, query Profile, sources []DocumentType, lookbackDays int) ([]Document, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// CandidateSourceFunc adapts a function to CandidateSource.
type CandidateSourceFunc func(ctx context.Context, query Profile, sources []DocumentType, lookbackDays int) ([]Document, error)

func (f CandidateSourceFunc) SearchCandidates(ctx context.Context, query Profile, sources []DocumentType, lookbackDays int) ([]Document, error) {
	return f(ctx, query, sources, lookbackDays)
}
