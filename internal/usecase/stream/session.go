package stream

import (
	"sync/atomic"
	"time"
)

// session tracks one in-flight streaming delivery. It is mutated by
// exactly two actors: the emitting worker reads the cancellation flag
// at each chunk boundary, and Cancel sets it.
type session struct {
	requestID string
	createdAt time.Time
	cancelled atomic.Bool
}

func newSession(requestID string) *session {
	return &session{requestID: requestID, createdAt: time.Now()}
}
