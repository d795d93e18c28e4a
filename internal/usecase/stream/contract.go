package stream

import (
	"context"

	"github.com/kailas-cloud/chatdex/internal/domain"
)

// Resolver answers a query with retrieval candidates and a fallback answer.
type Resolver interface {
	Resolve(ctx context.Context, query string, k int) (domain.QueryAnswer, error)
}

// Refiner optionally replaces the fallback answer with generated text.
// The second return is false when no replacement was produced; refiner
// failures are swallowed by the implementation and never surface here.
type Refiner interface {
	Refine(ctx context.Context, message string, candidates []domain.Candidate) (string, bool)
}
