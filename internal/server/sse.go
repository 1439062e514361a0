package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/danshapiro/gamecrew/internal/events"
)

// DefaultReplay is how many recent turn events a new subscriber receives.
const DefaultReplay = 100

// Broadcaster fans turn events out to SSE clients. Thread-safe.
type Broadcaster struct {
	mu      sync.Mutex
	replay  int
	history []events.TurnEvent
	clients map[uint64]chan events.TurnEvent
	nextID  uint64
	closed  bool
	doneCh  chan struct{} // closed only on Close, not on slow-client drops
}

func NewBroadcaster(replay int) *Broadcaster {
	if replay < 0 {
		replay = 0
	}
	return &Broadcaster{
		replay:  replay,
		clients: make(map[uint64]chan events.TurnEvent),
		doneCh:  make(chan struct{}),
	}
}

// Send delivers ev to every client. Slow clients are dropped.
func (b *Broadcaster) Send(ev events.TurnEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if b.replay > 0 {
		b.history = append(b.history, ev)
		if over := len(b.history) - b.replay; over > 0 {
			b.history = append(b.history[:0:0], b.history[over:]...)
		}
	}
	for id, ch := range b.clients {
		select {
		case ch <- ev:
		default:
			close(ch)
			delete(b.clients, id)
		}
	}
}

// PublishTurn lets the broadcaster act as an events.Sink.
func (b *Broadcaster) PublishTurn(_ context.Context, ev events.TurnEvent) error {
	b.Send(ev)
	return nil
}

// Subscribe returns an events channel primed with the replay buffer, a done
// channel closed by Close, and an unsubscribe function.
func (b *Broadcaster) Subscribe() (<-chan events.TurnEvent, <-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan events.TurnEvent, len(b.history)+256)
	id := b.nextID
	b.nextID++

	for _, ev := range b.history {
		ch <- ev
	}

	if b.closed {
		close(ch)
		return ch, b.doneCh, func() {}
	}

	b.clients[id] = ch
	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.clients[id]; ok {
			delete(b.clients, id)
			close(ch)
		}
	}
	return ch, b.doneCh, unsub
}

func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.doneCh)
	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}
}

// History returns a copy of the replay buffer.
func (b *Broadcaster) History() []events.TurnEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.TurnEvent, len(b.history))
	copy(out, b.history)
	return out
}

// WriteSSE streams turn events to an HTTP response as Server-Sent Events.
func WriteSSE(w http.ResponseWriter, r *http.Request, b *Broadcaster) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx proxy compatibility
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	evs, doneCh, unsub := b.Subscribe()
	defer unsub()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-evs:
			if !ok {
				select {
				case <-doneCh:
					fmt.Fprintf(w, "event: done\ndata: {}\n\n")
					flusher.Flush()
				default:
					// Dropped for being slow; just disconnect.
				}
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: turn\ndata: %s\n\n", ev.ID, data)
			flusher.Flush()
		}
	}
}
