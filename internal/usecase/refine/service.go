package refine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/chatdex/internal/domain"
	"github.com/kailas-cloud/chatdex/internal/metrics"
)

// systemInstruction constrains the model to the retrieved material; it
// must never invent answers beyond the supplied candidates.
const systemInstruction = "You may only answer using the 'answer' text from the reference material below. " +
	"If the reference material does not cover the question, say so briefly."

// Service rewrites the resolver's fallback answer with generated text.
// Refinement sits off the critical path: retrieval and candidate
// assembly are already complete before Refine is called, and every
// failure here is swallowed so the fallback answer streams unchanged.
type Service struct {
	gen    Generator
	logger *zap.Logger
}

// New creates an answer refiner.
func New(gen Generator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gen: gen, logger: logger}
}

// Refine asks the generator for a replacement answer grounded in the
// candidates. The second return is false when no replacement was
// produced, including all failure modes.
func (s *Service) Refine(ctx context.Context, message string, candidates []domain.Candidate) (string, bool) {
	system := systemInstruction + "\n\nReference material:\n" + ContextText(candidates)

	text, err := s.gen.Generate(ctx, system, message)
	if err != nil {
		metrics.RefineRequestsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("answer refinement failed, keeping fallback answer", zap.Error(err))
		return "", false
	}
	if text == "" {
		metrics.RefineRequestsTotal.WithLabelValues("unchanged").Inc()
		return "", false
	}

	metrics.RefineRequestsTotal.WithLabelValues("replaced").Inc()
	return text, true
}

// ContextText renders candidates as the reference block supplied to the
// generator: one "Question: …\nAnswer: …" paragraph per candidate in
// resolver order, separated by blank lines.
func ContextText(candidates []domain.Candidate) string {
	blocks := make([]string, len(candidates))
	for i, c := range candidates {
		blocks[i] = fmt.Sprintf("Question: %s\nAnswer: %s", c.Question, c.Answer)
	}
	return strings.Join(blocks, "\n\n")
}
