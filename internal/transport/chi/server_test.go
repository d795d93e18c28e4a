package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/chatdex/internal/domain"
	healthuc "github.com/kailas-cloud/chatdex/internal/usecase/health"
	"github.com/kailas-cloud/chatdex/internal/usecase/stream"
)

type mockResolver struct {
	result   domain.QueryAnswer
	err      error
	lastQ    string
	lastK    int
	ctxCalls int
}

func (m *mockResolver) Resolve(_ context.Context, query string, k int) (domain.QueryAnswer, error) {
	m.ctxCalls++
	m.lastQ = query
	m.lastK = k
	if m.err != nil {
		return domain.QueryAnswer{}, m.err
	}
	return m.result, nil
}

type mockStreamer struct {
	events       []stream.Event
	lastID       string
	lastMessage  string
	lastK        int
	cancelResult bool
	cancelledID  string
}

func (m *mockStreamer) Begin(_ context.Context, requestID, message string, k int) <-chan stream.Event {
	m.lastID = requestID
	m.lastMessage = message
	m.lastK = k
	ch := make(chan stream.Event, len(m.events))
	for _, ev := range m.events {
		ev.RequestID = requestID
		ch <- ev
	}
	close(ch)
	return ch
}

func (m *mockStreamer) Cancel(requestID string) bool {
	m.cancelledID = requestID
	return m.cancelResult
}

type mockRefiner struct {
	reply string
	ok    bool
}

func (m *mockRefiner) Refine(_ context.Context, _ string, _ []domain.Candidate) (string, bool) {
	return m.reply, m.ok
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report {
	return m.report
}

func newTestRouter(resolver Resolver, streams Streamer, refiner Refiner, health HealthChecker) http.Handler {
	if health == nil {
		health = &mockHealth{report: healthuc.Report{Status: healthuc.Healthy}}
	}
	s := NewServer(resolver, streams, refiner, health, 3, zap.NewNop())
	r := chirouter.NewRouter()
	s.Register(r)
	return r
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func strPtr(s string) *string { return &s }

func TestAnswer_ReturnsResolvedAnswer(t *testing.T) {
	resolver := &mockResolver{
		result: domain.QueryAnswer{
			Answer: "open a ticket",
			Match:  strPtr("how do I get help open a ticket"),
			Score:  0.91,
			Candidates: []domain.Candidate{
				{Index: 2, Question: "how do I get help", Answer: "open a ticket", Text: "how do I get help open a ticket", Score: 0.91},
			},
		},
	}
	h := newTestRouter(resolver, &mockStreamer{}, nil, nil)

	rr := postJSON(t, h, "/api/llm", `{"message": "how do I get help"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rr.Code, rr.Body.String())
	}
	var resp queryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "open a ticket" {
		t.Errorf("answer = %q, want %q", resp.Answer, "open a ticket")
	}
	if resp.RagMatch == nil || *resp.RagMatch != "how do I get help open a ticket" {
		t.Errorf("rag_match = %v, want top candidate text", resp.RagMatch)
	}
	if resp.RagScore != 0.91 {
		t.Errorf("rag_score = %v, want 0.91", resp.RagScore)
	}
	if len(resp.Candidates) != 1 {
		t.Errorf("candidates = %d, want 1", len(resp.Candidates))
	}
	if resolver.lastK != 3 {
		t.Errorf("default top_k = %d, want 3", resolver.lastK)
	}
}

func TestAnswer_ExplicitTopK(t *testing.T) {
	resolver := &mockResolver{}
	h := newTestRouter(resolver, &mockStreamer{}, nil, nil)

	rr := postJSON(t, h, "/api/llm", `{"message": "hi", "top_k": 7}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if resolver.lastK != 7 {
		t.Errorf("top_k = %d, want 7", resolver.lastK)
	}
}

func TestAnswer_RejectsNonPositiveTopK(t *testing.T) {
	resolver := &mockResolver{}
	h := newTestRouter(resolver, &mockStreamer{}, nil, nil)

	for _, body := range []string{
		`{"message": "hi", "top_k": 0}`,
		`{"message": "hi", "top_k": -1}`,
	} {
		rr := postJSON(t, h, "/api/llm", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rr.Code)
		}
	}
	if resolver.ctxCalls != 0 {
		t.Errorf("resolver called %d times, want 0", resolver.ctxCalls)
	}
}

func TestAnswer_RejectsEmptyMessage(t *testing.T) {
	h := newTestRouter(&mockResolver{}, &mockStreamer{}, nil, nil)

	for _, body := range []string{
		`{"message": ""}`,
		`{"message": "   "}`,
		`{}`,
	} {
		rr := postJSON(t, h, "/api/llm", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rr.Code)
		}
		var resp errorResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode error response: %v", err)
		}
		if resp.Code != codeValidationFailed {
			t.Errorf("code = %q, want %q", resp.Code, codeValidationFailed)
		}
	}
}

func TestAnswer_RejectsInvalidJSON(t *testing.T) {
	h := newTestRouter(&mockResolver{}, &mockStreamer{}, nil, nil)

	rr := postJSON(t, h, "/api/llm", `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Code != codeBadRequest {
		t.Errorf("code = %q, want %q", resp.Code, codeBadRequest)
	}
}

func TestAnswer_MapsRetrievalError(t *testing.T) {
	resolver := &mockResolver{
		err: fmt.Errorf("%w: index lookup failed", domain.ErrRetrieval),
	}
	h := newTestRouter(resolver, &mockStreamer{}, nil, nil)

	rr := postJSON(t, h, "/api/llm", `{"message": "hi"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Code != codeRetrievalFailed {
		t.Errorf("code = %q, want %q", resp.Code, codeRetrievalFailed)
	}
	if strings.Contains(resp.Message, "index lookup") {
		t.Errorf("message leaks internals: %q", resp.Message)
	}
}

func TestAnswer_MapsProviderError(t *testing.T) {
	resolver := &mockResolver{
		err: fmt.Errorf("%w: upstream 500", domain.ErrEmbeddingProviderError),
	}
	h := newTestRouter(resolver, &mockStreamer{}, nil, nil)

	rr := postJSON(t, h, "/api/llm", `{"message": "hi"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

func TestAnswer_RefinerReplacesAnswer(t *testing.T) {
	resolver := &mockResolver{
		result: domain.QueryAnswer{Answer: "raw corpus answer"},
	}
	refiner := &mockRefiner{reply: "polished answer", ok: true}
	h := newTestRouter(resolver, &mockStreamer{}, refiner, nil)

	rr := postJSON(t, h, "/api/llm", `{"message": "hi"}`)
	var resp queryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "polished answer" {
		t.Errorf("answer = %q, want refined", resp.Answer)
	}
}

func TestAnswer_RefinerDeclineKeepsOriginal(t *testing.T) {
	resolver := &mockResolver{
		result: domain.QueryAnswer{Answer: "raw corpus answer"},
	}
	refiner := &mockRefiner{ok: false}
	h := newTestRouter(resolver, &mockStreamer{}, refiner, nil)

	rr := postJSON(t, h, "/api/llm", `{"message": "hi"}`)
	var resp queryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "raw corpus answer" {
		t.Errorf("answer = %q, want original", resp.Answer)
	}
}

func parseFrames(t *testing.T, body string) []streamFrame {
	t.Helper()
	var frames []streamFrame
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if !strings.HasPrefix(block, "data: ") {
			t.Fatalf("frame missing data prefix: %q", block)
		}
		var frame streamFrame
		if err := json.Unmarshal([]byte(strings.TrimPrefix(block, "data: ")), &frame); err != nil {
			t.Fatalf("decode frame %q: %v", block, err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func TestStream_EmitsChunksThenDone(t *testing.T) {
	streamer := &mockStreamer{
		events: []stream.Event{
			{Kind: stream.EventChunk, Chunk: "hello "},
			{Kind: stream.EventChunk, Chunk: "world"},
			{Kind: stream.EventDone},
		},
	}
	h := newTestRouter(&mockResolver{}, streamer, nil, nil)

	rr := postJSON(t, h, "/api/llm/stream", `{"message": "hi", "request_id": "r-1"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	frames := parseFrames(t, rr.Body.String())
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	var text string
	for _, f := range frames[:2] {
		if f.Chunk == nil {
			t.Fatalf("expected chunk frame, got %+v", f)
		}
		if f.RequestID != "r-1" {
			t.Errorf("frame request_id = %q, want r-1", f.RequestID)
		}
		text += *f.Chunk
	}
	if text != "hello world" {
		t.Errorf("reassembled = %q, want %q", text, "hello world")
	}
	if !frames[2].Done {
		t.Errorf("terminal frame = %+v, want done", frames[2])
	}
}

func TestStream_CancelledFrame(t *testing.T) {
	streamer := &mockStreamer{
		events: []stream.Event{
			{Kind: stream.EventChunk, Chunk: "partial"},
			{Kind: stream.EventCancelled},
		},
	}
	h := newTestRouter(&mockResolver{}, streamer, nil, nil)

	rr := postJSON(t, h, "/api/llm/stream", `{"message": "hi", "request_id": "r-2"}`)

	frames := parseFrames(t, rr.Body.String())
	last := frames[len(frames)-1]
	if !last.Cancelled {
		t.Errorf("terminal frame = %+v, want cancelled", last)
	}
}

func TestStream_ErrorFrame(t *testing.T) {
	streamer := &mockStreamer{
		events: []stream.Event{
			{Kind: stream.EventError, Detail: "retrieval failed"},
		},
	}
	h := newTestRouter(&mockResolver{}, streamer, nil, nil)

	rr := postJSON(t, h, "/api/llm/stream", `{"message": "hi"}`)

	frames := parseFrames(t, rr.Body.String())
	if len(frames) != 1 || frames[0].Error != "retrieval failed" {
		t.Errorf("frames = %+v, want single error frame", frames)
	}
}

func TestStream_GeneratesRequestID(t *testing.T) {
	streamer := &mockStreamer{
		events: []stream.Event{{Kind: stream.EventDone}},
	}
	h := newTestRouter(&mockResolver{}, streamer, nil, nil)

	rr := postJSON(t, h, "/api/llm/stream", `{"message": "hi"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if streamer.lastID == "" {
		t.Error("expected generated request_id, got empty")
	}
}

func TestStream_RejectsEmptyMessage(t *testing.T) {
	h := newTestRouter(&mockResolver{}, &mockStreamer{}, nil, nil)

	rr := postJSON(t, h, "/api/llm/stream", `{"message": ""}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCancel(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		cancelResult bool
		wantStatus   int
		wantAccepted bool
	}{
		{"active stream", `{"request_id": "r-1"}`, true, http.StatusOK, true},
		{"unknown stream", `{"request_id": "r-missing"}`, false, http.StatusOK, false},
		{"missing request_id", `{}`, false, http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			streamer := &mockStreamer{cancelResult: tt.cancelResult}
			h := newTestRouter(&mockResolver{}, streamer, nil, nil)

			rr := postJSON(t, h, "/api/llm/cancel", tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp cancelResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Accepted != tt.wantAccepted {
				t.Errorf("accepted = %v, want %v", resp.Accepted, tt.wantAccepted)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	h := newTestRouter(&mockResolver{}, &mockStreamer{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/llm", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field = %q, want ok", resp["status"])
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		report     healthuc.Report
		wantStatus int
	}{
		{"healthy", healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{"retriever_lexical": healthuc.CheckOK}}, http.StatusOK},
		{"degraded", healthuc.Report{Status: healthuc.Degraded, Checks: map[string]healthuc.CheckResult{"embedding": healthuc.CheckError}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(&mockResolver{}, &mockStreamer{}, nil, &mockHealth{report: tt.report})

			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			var report healthuc.Report
			if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
				t.Fatalf("decode report: %v", err)
			}
			if report.Status != tt.report.Status {
				t.Errorf("report status = %q, want %q", report.Status, tt.report.Status)
			}
		})
	}
}
