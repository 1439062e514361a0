// Package events carries per-turn telemetry over a watermill message bus.
package events

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/zeebo/blake3"
)

// TopicTurns is the topic every completed or failed turn is published on.
const TopicTurns = "turns"

// TurnEvent describes one handled turn. It never carries model text; only a
// digest of the extracted code snippet.
type TurnEvent struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id,omitempty"`
	At        time.Time `json:"at"`

	Role      string `json:"role"`
	NextAgent string `json:"next_agent,omitempty"`
	Proposed  string `json:"proposed,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
	Coerced   bool   `json:"coerced,omitempty"`

	SnippetBytes  int    `json:"snippet_bytes,omitempty"`
	SnippetDigest string `json:"snippet_digest,omitempty"`

	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
}

// NewTurnEvent stamps a fresh event id and time.
func NewTurnEvent(requestID, role string) TurnEvent {
	return TurnEvent{
		ID:        ulid.Make().String(),
		RequestID: requestID,
		At:        time.Now().UTC(),
		Role:      role,
	}
}

// SetSnippet records the size and blake3 digest of an extracted snippet.
func (e *TurnEvent) SetSnippet(snippet *string) {
	if snippet == nil {
		e.SnippetBytes = 0
		e.SnippetDigest = ""
		return
	}
	sum := blake3.Sum256([]byte(*snippet))
	e.SnippetBytes = len(*snippet)
	e.SnippetDigest = hex.EncodeToString(sum[:])
}

// Sink receives turn events. Implementations must be safe for concurrent use.
type Sink interface {
	PublishTurn(ctx context.Context, e TurnEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e TurnEvent) error

func (f SinkFunc) PublishTurn(ctx context.Context, e TurnEvent) error { return f(ctx, e) }
