// Package retriever implements top-k similarity search over the corpus.
//
// Two variants share one capability contract: Lexical (TF-IDF term
// weighting) and Semantic (dense embeddings over a flat inner-product
// index). The variant is a construction-time choice; a built instance
// implements exactly one.
package retriever

import (
	"context"
	"sort"

	"github.com/kailas-cloud/chatdex/internal/domain"
)

// Variant names for configuration and metrics labels.
const (
	VariantLexical  = "lexical"
	VariantSemantic = "semantic"
)

// Retriever answers top-k similarity queries over a built index.
//
// Build runs once at startup and must complete before any Retrieve
// call; it may block for seconds for the semantic variant. Retrieve is
// safe for concurrent use once the index is built: the index is
// immutable and read lock-free.
type Retriever interface {
	Build(ctx context.Context, docs []domain.Record) error
	Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievalResult, error)
	Name() string
}

// topK selects the k highest-scoring documents. Sort order is
// descending score with ascending source index as the explicit
// tiebreak, so identical corpus + identical query always yields an
// identical result sequence.
func topK(docs []domain.Record, scores []float64, k int) []domain.RetrievalResult {
	results := make([]domain.RetrievalResult, len(docs))
	for i, doc := range docs {
		results[i] = domain.RetrievalResult{
			Index:      doc.Index,
			SearchText: doc.SearchText,
			Score:      scores[i],
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Index < results[j].Index
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}
