package stream

// EventKind tags a stream emission.
type EventKind string

// Stream event kinds. A stream emits zero or more chunk events followed
// by exactly one terminal event (done, cancelled, or error).
const (
	EventChunk     EventKind = "chunk"
	EventDone      EventKind = "done"
	EventCancelled EventKind = "cancelled"
	EventError     EventKind = "error"
)

// Event is a single stream emission. Every event carries the
// originating request ID.
type Event struct {
	RequestID string
	Kind      EventKind
	Chunk     string // set for EventChunk
	Detail    string // set for EventError
}
