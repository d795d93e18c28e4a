package chatdex

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// StreamEvent is one frame of a streamed answer. Exactly one of Chunk,
// Done, Cancelled, or Error is set per frame; the stream ends after the
// first terminal frame.
type StreamEvent struct {
	RequestID string  `json:"request_id"`
	Chunk     *string `json:"chunk,omitempty"`
	Done      bool    `json:"done,omitempty"`
	Cancelled bool    `json:"cancelled,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e StreamEvent) Terminal() bool {
	return e.Done || e.Cancelled || e.Error != ""
}

// Stream is an open answer stream. Call Recv until io.EOF or a terminal
// event, then Close. Cancel the request via Client.Cancel with RequestID.
type Stream struct {
	requestID string
	body      io.ReadCloser
	scanner   *bufio.Scanner
}

// RequestID returns the stream's request ID (generated when the caller
// did not supply one).
func (s *Stream) RequestID() string { return s.requestID }

// Recv blocks until the next event arrives. Returns io.EOF when the
// server closes the stream.
func (s *Stream) Recv() (StreamEvent, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		var ev StreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return StreamEvent{}, fmt.Errorf("chatdex: decode stream event: %w", err)
		}
		return ev, nil
	}
	if err := s.scanner.Err(); err != nil {
		return StreamEvent{}, fmt.Errorf("chatdex: read stream: %w", err)
	}
	return StreamEvent{}, io.EOF
}

// Close releases the underlying connection. Safe to call at any point;
// an abandoned stream is cancelled server-side.
func (s *Stream) Close() error {
	return s.body.Close()
}

// Stream opens a chunked answer stream for the message. The context
// governs the whole stream lifetime: cancelling it abandons the stream.
func (c *Client) Stream(ctx context.Context, message string) (*Stream, error) {
	requestID := uuid.NewString()

	body, err := json.Marshal(c.payload(message, requestID))
	if err != nil {
		return nil, fmt.Errorf("chatdex: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/llm/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chatdex: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chatdex: stream request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}

	return &Stream{
		requestID: requestID,
		body:      resp.Body,
		scanner:   bufio.NewScanner(resp.Body),
	}, nil
}

// Collect drains the stream into the full answer text. It returns the
// reassembled chunks and the terminal event.
func (s *Stream) Collect() (string, StreamEvent, error) {
	var sb strings.Builder
	for {
		ev, err := s.Recv()
		if err == io.EOF {
			return sb.String(), StreamEvent{}, fmt.Errorf("chatdex: stream ended without terminal event")
		}
		if err != nil {
			return sb.String(), StreamEvent{}, err
		}
		if ev.Chunk != nil {
			sb.WriteString(*ev.Chunk)
		}
		if ev.Terminal() {
			return sb.String(), ev, nil
		}
	}
}
