package resolve

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/chatdex/internal/domain"
	"github.com/kailas-cloud/chatdex/internal/metrics"
)

// Service orchestrates a single query: retrieve top-k hits, join them
// with their source records, and derive the fallback answer. It never
// mutates the corpus or the retriever.
type Service struct {
	retriever Retriever
	records   RecordReader
	logger    *zap.Logger
}

// New creates a query resolver.
func New(retriever Retriever, records RecordReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{retriever: retriever, records: records, logger: logger}
}

// Resolve runs retrieval and assembles the answer. Zero candidates is a
// valid result, not an error; only a retriever failure is surfaced,
// wrapped in domain.ErrRetrieval.
func (s *Service) Resolve(ctx context.Context, query string, k int) (domain.QueryAnswer, error) {
	variant := s.retriever.Name()
	start := time.Now()

	results, err := s.retriever.Retrieve(ctx, query, k)

	metrics.RetrievalDuration.WithLabelValues(variant).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues(variant, "error").Inc()
		return domain.QueryAnswer{}, fmt.Errorf("%w: %w", domain.ErrRetrieval, err)
	}
	metrics.RetrievalRequestsTotal.WithLabelValues(variant, "success").Inc()

	candidates := make([]domain.Candidate, 0, len(results))
	for _, r := range results {
		c := domain.Candidate{
			Index: r.Index,
			Text:  r.SearchText,
			Score: r.Score,
		}
		// A hit whose index no longer resolves degrades to empty
		// question/answer instead of failing the request.
		if rec, ok := s.records.Get(r.Index); ok {
			c.Question = rec.Question
			c.Answer = rec.Answer
		}
		candidates = append(candidates, c)
	}

	answer := domain.QueryAnswer{Candidates: candidates}
	if len(candidates) > 0 {
		best := candidates[0]
		answer.Answer = best.Answer
		if answer.Answer == "" {
			answer.Answer = best.Text
		}
		match := best.Text
		answer.Match = &match
		answer.Score = best.Score
	}

	s.logger.Debug("query resolved",
		zap.String("variant", variant),
		zap.Int("candidates", len(candidates)),
		zap.Float64("top_score", answer.Score),
	)
	return answer, nil
}
