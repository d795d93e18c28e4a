package retriever

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/kailas-cloud/chatdex/internal/domain"
)

// Semantic scores documents by dense-vector similarity. Build embeds
// every document, L2-normalizes the vectors, and keeps them in a flat
// inner-product index: the inner product of normalized vectors is their
// cosine similarity.
type Semantic struct {
	embedder      domain.Embedder
	queryEmbedder domain.Embedder
	logger        *zap.Logger

	docs    []domain.Record
	vectors [][]float32 // L2-normalized, one row per document
}

// NewSemantic creates an unbuilt semantic retriever. embedder is used
// for both documents and queries unless WithQueryEmbedder overrides it.
func NewSemantic(embedder domain.Embedder, logger *zap.Logger) *Semantic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Semantic{embedder: embedder, queryEmbedder: embedder, logger: logger}
}

// WithQueryEmbedder sets a separate embedder for queries. Instruction
// prefixes often differ between documents and queries.
func (s *Semantic) WithQueryEmbedder(e domain.Embedder) *Semantic {
	s.queryEmbedder = e
	return s
}

// Name implements Retriever.
func (s *Semantic) Name() string { return VariantSemantic }

// Build embeds the whole corpus. The embedding backend must be
// reachable: an unavailable backend fails the build with
// domain.ErrEmbeddingUnavailable rather than silently degrading to the
// lexical variant.
func (s *Semantic) Build(ctx context.Context, docs []domain.Record) error {
	if len(docs) == 0 {
		return domain.ErrEmptyCorpus
	}

	if hc, ok := s.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
		}
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.SearchText
	}

	var embeddings [][]float32
	if be, ok := s.embedder.(domain.BatchEmbedder); ok {
		res, err := be.BatchEmbed(ctx, texts)
		if err != nil {
			return fmt.Errorf("%w: embed corpus: %w", domain.ErrEmbeddingUnavailable, err)
		}
		embeddings = res.Embeddings
	} else {
		res, err := domain.BatchFallback(ctx, s.embedder, texts)
		if err != nil {
			return fmt.Errorf("%w: embed corpus: %w", domain.ErrEmbeddingUnavailable, err)
		}
		embeddings = res.Embeddings
	}

	if len(embeddings) != len(docs) {
		return fmt.Errorf("%w: got %d embeddings for %d documents",
			domain.ErrEmbeddingUnavailable, len(embeddings), len(docs))
	}

	vectors := make([][]float32, len(embeddings))
	for i, emb := range embeddings {
		vectors[i] = l2Normalize(emb)
	}

	s.docs = docs
	s.vectors = vectors
	s.logger.Info("Semantic index built",
		zap.Int("documents", len(docs)),
		zap.Int("dimensions", dim(vectors)),
	)
	return nil
}

// Retrieve embeds the query, normalizes it, and ranks every document by
// inner product against the index.
func (s *Semantic) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievalResult, error) {
	if s.vectors == nil {
		return nil, domain.ErrNotBuilt
	}

	res, err := s.queryEmbedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	qvec := l2Normalize(res.Embedding)

	scores := make([]float64, len(s.vectors))
	for i, vec := range s.vectors {
		scores[i] = dot(qvec, vec)
	}

	return topK(s.docs, scores, k), nil
}

func l2Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func dim(vectors [][]float32) int {
	if len(vectors) == 0 {
		return 0
	}
	return len(vectors[0])
}
