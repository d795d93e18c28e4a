package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/chatdex/internal/domain"
	healthuc "github.com/kailas-cloud/chatdex/internal/usecase/health"
	"github.com/kailas-cloud/chatdex/internal/usecase/stream"
)

// Error codes returned in the JSON error body.
const (
	codeBadRequest           = "bad_request"
	codeValidationFailed     = "validation_failed"
	codeIndexNotReady        = "index_not_ready"
	codeEmbeddingUnavailable = "embedding_unavailable"
	codeEmbeddingProvider    = "embedding_provider_error"
	codeRetrievalFailed      = "retrieval_failed"
	codeInternalError        = "internal_error"
)

// Resolver answers a single query against the corpus.
type Resolver interface {
	Resolve(ctx context.Context, query string, k int) (domain.QueryAnswer, error)
}

// Streamer manages chunked answer delivery with cancellation.
type Streamer interface {
	Begin(ctx context.Context, requestID, message string, k int) <-chan stream.Event
	Cancel(requestID string) bool
}

// Refiner optionally rewrites the retrieved answer. A nil Refiner means
// answers are served verbatim from the corpus.
type Refiner interface {
	Refine(ctx context.Context, message string, candidates []domain.Candidate) (string, bool)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API surface: query, stream, cancel, health, metrics.
type Server struct {
	resolver      Resolver
	streams       Streamer
	refiner       Refiner
	health        HealthChecker
	defaultTopK   int
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. refiner may be nil.
func NewServer(
	resolver Resolver,
	streams Streamer,
	refiner Refiner,
	health HealthChecker,
	defaultTopK int,
	logger *zap.Logger,
) *Server {
	s := &Server{
		resolver:    resolver,
		streams:     streams,
		refiner:     refiner,
		health:      health,
		defaultTopK: defaultTopK,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrBadRequest, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrNotBuilt, http.StatusServiceUnavailable, codeIndexNotReady),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusServiceUnavailable, codeEmbeddingUnavailable),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProvider),
		sentinelHandler(domain.ErrRetrieval, http.StatusInternalServerError, codeRetrievalFailed),
	}
	return s
}

// Register mounts all API routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Get("/api/llm", s.Status)
	r.Post("/api/llm", s.Answer)
	r.Post("/api/llm/stream", s.Stream)
	r.Post("/api/llm/cancel", s.Cancel)
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type queryRequest struct {
	Message   string `json:"message"`
	TopK      *int   `json:"top_k"`
	RequestID string `json:"request_id"`
}

type queryResponse struct {
	Answer     string             `json:"answer"`
	RagMatch   *string            `json:"rag_match"`
	RagScore   float64            `json:"rag_score"`
	Candidates []domain.Candidate `json:"candidates"`
}

type cancelRequest struct {
	RequestID string `json:"request_id"`
}

type cancelResponse struct {
	RequestID string `json:"request_id"`
	Accepted  bool   `json:"accepted"`
}

// streamFrame is the wire form of a stream event. Consumers key off the
// presence of chunk / done / cancelled / error rather than a kind tag.
type streamFrame struct {
	RequestID string  `json:"request_id"`
	Chunk     *string `json:"chunk,omitempty"`
	Done      bool    `json:"done,omitempty"`
	Cancelled bool    `json:"cancelled,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Status handles GET /api/llm.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "chatdex",
	})
}

// Answer handles POST /api/llm.
func (s *Server) Answer(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	topK, ok := s.resolveTopK(w, req.TopK)
	if !ok {
		return
	}

	res, err := s.resolver.Resolve(r.Context(), req.Message, topK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	answer := res.Answer
	if s.refiner != nil {
		if refined, ok := s.refiner.Refine(r.Context(), req.Message, res.Candidates); ok {
			answer = refined
		}
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Answer:     answer,
		RagMatch:   res.Match,
		RagScore:   res.Score,
		Candidates: res.Candidates,
	})
}

// Stream handles POST /api/llm/stream. The response is a text/event-stream:
// one data frame per event, terminated by a done, cancelled, or error frame.
func (s *Server) Stream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	topK, ok := s.resolveTopK(w, req.TopK)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternalError, "streaming unsupported")
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := s.streams.Begin(r.Context(), requestID, req.Message, topK)
	for ev := range events {
		data, err := json.Marshal(frameFromEvent(ev))
		if err != nil {
			s.logger.Error("marshal stream frame", zap.Error(err))
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			// Client went away; the worker notices via the request context.
			return
		}
		flusher.Flush()
	}
}

// Cancel handles POST /api/llm/cancel.
func (s *Server) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.RequestID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "request_id is required")
		return
	}

	accepted := s.streams.Cancel(req.RequestID)
	writeJSON(w, http.StatusOK, cancelResponse{
		RequestID: req.RequestID,
		Accepted:  accepted,
	})
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return queryRequest{}, false
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "message is required")
		return queryRequest{}, false
	}
	return req, true
}

// resolveTopK applies the configured default when top_k is absent and
// rejects explicit non-positive values.
func (s *Server) resolveTopK(w http.ResponseWriter, topK *int) (int, bool) {
	if topK == nil {
		return s.defaultTopK, true
	}
	if *topK <= 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "top_k must be positive")
		return 0, false
	}
	return *topK, true
}

func frameFromEvent(ev stream.Event) streamFrame {
	frame := streamFrame{RequestID: ev.RequestID}
	switch ev.Kind {
	case stream.EventChunk:
		chunk := ev.Chunk
		frame.Chunk = &chunk
	case stream.EventDone:
		frame.Done = true
	case stream.EventCancelled:
		frame.Cancelled = true
	case stream.EventError:
		frame.Error = ev.Detail
	}
	return frame
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrBadRequest,
		domain.ErrNotBuilt,
		domain.ErrEmbeddingUnavailable,
		domain.ErrEmbeddingProviderError,
		domain.ErrRetrieval,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
