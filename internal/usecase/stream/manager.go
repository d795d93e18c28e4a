package stream

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/chatdex/internal/metrics"
)

// DefaultPaceInterval is the delay between emitted chunks. The pacing
// is a perceived-latency choice (a "typing" effect), not a correctness
// requirement.
const DefaultPaceInterval = 30 * time.Millisecond

// Config tunes chunked emission.
type Config struct {
	ChunkMode    string        // ChunkByWord (default) or ChunkByChar
	PaceInterval time.Duration // delay between chunks, DefaultPaceInterval when <= 0
}

func (c *Config) applyDefaults() {
	if c.ChunkMode == "" {
		c.ChunkMode = ChunkByWord
	}
	if c.PaceInterval <= 0 {
		c.PaceInterval = DefaultPaceInterval
	}
}

// Manager owns the registry of active streaming sessions and drives
// chunked answer emission. The registry is the only mutable shared
// structure in the core; all registration, lookup, flag-set, and
// deregistration goes through its mutex.
type Manager struct {
	resolver Resolver
	refiner  Refiner // nil when refinement is disabled
	cfg      Config
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager creates a stream session manager. refiner may be nil.
func NewManager(resolver Resolver, refiner Refiner, cfg Config, logger *zap.Logger) *Manager {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		resolver: resolver,
		refiner:  refiner,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// Begin registers a session and starts the emitting worker. The
// returned channel is a single-pass event stream: zero or more chunk
// events followed by exactly one terminal event, then the channel is
// closed and the session deregistered. ctx abandonment (the consumer
// going away) stops emission without a terminal event.
func (m *Manager) Begin(ctx context.Context, requestID, message string, k int) <-chan Event {
	sess := newSession(requestID)

	m.mu.Lock()
	if _, exists := m.sessions[requestID]; exists {
		m.logger.Warn("stream session replaced", zap.String("request_id", requestID))
	}
	m.sessions[requestID] = sess
	m.mu.Unlock()

	metrics.StreamSessionsActive.Inc()

	ch := make(chan Event)
	go m.run(ctx, sess, message, k, ch)
	return ch
}

// Cancel flags the session for cancellation. Returns false when the
// request ID is unknown or already terminal: cancellation is inherently
// racy against natural completion, and "too late" is a normal, silent
// outcome.
func (m *Manager) Cancel(requestID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[requestID]
	if !ok {
		return false
	}
	sess.cancelled.Store(true)
	return true
}

// Active reports the number of currently registered sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) deregister(requestID string, sess *session) {
	m.mu.Lock()
	// Only remove our own registration; a replacing session with the
	// same ID must not be evicted by the worker it displaced.
	if cur, ok := m.sessions[requestID]; ok && cur == sess {
		delete(m.sessions, requestID)
	}
	m.mu.Unlock()
	metrics.StreamSessionsActive.Dec()
}

// run is the emitting worker: resolve, optionally refine, then emit
// chunks with a pacing delay, checking the cancellation flag before
// each unit of output.
func (m *Manager) run(ctx context.Context, sess *session, message string, k int, ch chan<- Event) {
	defer close(ch)
	defer m.deregister(sess.requestID, sess)

	answer, err := m.resolver.Resolve(ctx, message, k)
	if err != nil {
		m.logger.Warn("stream resolve failed",
			zap.String("request_id", sess.requestID), zap.Error(err))
		m.emit(ctx, ch, Event{RequestID: sess.requestID, Kind: EventError, Detail: err.Error()})
		return
	}

	text := answer.Answer
	// Refinement runs to completion before any chunk is emitted; a
	// cancellation flag raised meanwhile is observed at the first
	// chunk boundary.
	if m.refiner != nil {
		if refined, ok := m.refiner.Refine(ctx, message, answer.Candidates); ok && refined != "" {
			text = refined
		}
	}

	for _, chunk := range splitChunks(text, m.cfg.ChunkMode) {
		if sess.cancelled.Load() {
			m.emit(ctx, ch, Event{RequestID: sess.requestID, Kind: EventCancelled})
			return
		}
		if !m.emit(ctx, ch, Event{RequestID: sess.requestID, Kind: EventChunk, Chunk: chunk}) {
			return
		}
		select {
		case <-time.After(m.cfg.PaceInterval):
		case <-ctx.Done():
			return
		}
	}

	// A cancel arriving after the last chunk has no observable effect:
	// the stream completes normally.
	m.emit(ctx, ch, Event{RequestID: sess.requestID, Kind: EventDone})
}

// emit delivers an event unless the consumer's context is gone.
func (m *Manager) emit(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		metrics.StreamEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
		return true
	case <-ctx.Done():
		return false
	}
}
