package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types emitted while a run progresses.
const (
	// Phase lifecycle
	TypePhaseStarted   = "phase.started"
	TypePhaseCompleted = "phase.completed"
	TypePhaseFailed    = "phase.failed"

	// Per-call progress
	TypeChunkExtracted = "chunk.extracted"
	TypeRoundCompacted = "round.compacted"

	// Final
	TypeRunCompleted = "run.completed"

	// General
	TypeInfo = "info"
)

// Event is the unified event structure sent to consumers (CLI printer, SSE endpoint, etc.).
// Data is a json.RawMessage so consumers can decode it based on Type.
type Event struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent creates an Event, marshaling data to JSON. If marshaling fails, data is set to null.
func NewEvent(eventType string, sessionID string, data any) Event {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte("null")
	}
	return Event{
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data:      raw,
	}
}

// --- Typed event data structs (frontend-friendly JSON) ---

type PhaseData struct {
	Phase      string `json:"phase"`
	Stack      string `json:"stack,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

type ChunkExtractedData struct {
	Index      int `json:"index"`
	Total      int `json:"total"`
	NoteTokens int `json:"note_tokens"`
}

type RoundCompactedData struct {
	Round       int `json:"round"`
	NotesBefore int `json:"notes_before"`
	NotesAfter  int `json:"notes_after"`
	TokensAfter int `json:"tokens_after"`
}

type RunCompletedData struct {
	Model            string `json:"model"`
	ContentLen       int    `json:"content_length"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	DurationMs       int64  `json:"duration_ms"`
}

// ErrorData describes a failed phase. Cursor is how far the phase got:
// fragments merged, chunks extracted or compression rounds finished.
type ErrorData struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
	Cursor  int    `json:"cursor"`
}

type InfoData struct {
	Message string `json:"message"`
}

// --- Emitter interface and channel-based implementation ---

// Emitter is the interface for publishing events. Implementations may push to a channel,
// write to ES, or stream via SSE.
type Emitter interface {
	Emit(event Event)
	Subscribe() <-chan Event
	Close()
}

// ChannelEmitter is a buffered channel-based Emitter.
type ChannelEmitter struct {
	bufSize int
	subs    []chan Event
	mu      sync.RWMutex
	closed  bool
}

// NewChannelEmitter creates a new emitter with the given buffer size.
func NewChannelEmitter(bufSize int) *ChannelEmitter {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &ChannelEmitter{bufSize: bufSize}
}

// Emit publishes an event to all subscribers. Non-blocking: drops if subscriber is full.
func (e *ChannelEmitter) Emit(event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	for _, sub := range e.subs {
		select {
		case sub <- event:
		default:
			// drop if subscriber can't keep up
		}
	}
}

// Subscribe returns a channel that receives all emitted events.
func (e *ChannelEmitter) Subscribe() <-chan Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan Event, e.bufSize)
	if e.closed {
		close(ch)
		return ch
	}
	e.subs = append(e.subs, ch)
	return ch
}

// Close closes all subscriber channels.
func (e *ChannelEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for _, sub := range e.subs {
		close(sub)
	}
}

// NopEmitter is a no-op emitter for when event reporting is not needed.
type NopEmitter struct{}

func (NopEmitter) Emit(Event)              {}
func (NopEmitter) Subscribe() <-chan Event { return make(chan Event) }
func (NopEmitter) Close()                  {}
