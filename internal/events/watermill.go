package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Bus is an in-process pub/sub with a router for turn handlers.
type Bus struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
}

type BusOption func(*Bus)

// WithZerolog routes watermill's own logging through l.
func WithZerolog(l zerolog.Logger) BusOption {
	return func(b *Bus) { b.logger = NewZerologAdapter(l) }
}

func NewBus(opts ...BusOption) (*Bus, error) {
	b := &Bus{logger: watermill.NopLogger{}}
	for _, o := range opts {
		o(b)
	}

	// Publishing never waits for subscribers; a slow handler must not hold up
	// a turn.
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, b.logger)
	b.Publisher = ps
	b.Subscriber = ps

	r, err := message.NewRouter(message.RouterConfig{}, b.logger)
	if err != nil {
		return nil, errors.Wrap(err, "create router")
	}
	b.router = r
	return b, nil
}

// AddHandler subscribes f to topic. Handlers must be added before Run.
func (b *Bus) AddHandler(name, topic string, f message.NoPublishHandlerFunc) {
	b.router.AddNoPublisherHandler(name, topic, b.Subscriber, f)
}

// Run blocks until ctx is done or the bus is closed.
func (b *Bus) Run(ctx context.Context) error { return b.router.Run(ctx) }

func (b *Bus) Running() chan struct{} { return b.router.Running() }

func (b *Bus) Close() error {
	if err := b.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("close publisher")
	}
	if err := b.router.Close(); err != nil {
		return errors.Wrap(err, "close router")
	}
	return nil
}

// Sink returns a Sink publishing on TopicTurns.
func (b *Bus) Sink() *WatermillSink { return NewWatermillSink(b.Publisher, TopicTurns) }

// WatermillSink publishes turn events as JSON messages.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{publisher: publisher, topic: topic}
}

func (w *WatermillSink) PublishTurn(ctx context.Context, e TurnEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal turn event")
	}
	if err := ctx.Err(); err != nil && e.Error == "" {
		return errors.Wrap(err, "publish turn event")
	}
	msg := message.NewMessage(e.ID, payload)
	if e.RequestID != "" {
		msg.Metadata.Set("request_id", e.RequestID)
	}
	if err := w.publisher.Publish(w.topic, msg); err != nil {
		return errors.Wrapf(err, "publish to %s", w.topic)
	}
	log.Trace().Str("topic", w.topic).Str("event_id", e.ID).Msg("published turn event")
	return nil
}

var _ Sink = (*WatermillSink)(nil)

// DecodeTurn parses a message published by WatermillSink.
func DecodeTurn(msg *message.Message) (TurnEvent, error) {
	var e TurnEvent
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return TurnEvent{}, errors.Wrap(err, "decode turn event")
	}
	return e, nil
}

// LogHandler writes every turn event to l. Undecodable messages are logged
// and dropped.
func LogHandler(l zerolog.Logger) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		e, err := DecodeTurn(msg)
		if err != nil {
			l.Error().Err(err).Str("message_id", msg.UUID).Msg("bad turn event")
			return nil
		}
		ev := l.Info()
		if e.Error != "" {
			ev = l.Warn().Str("error", e.Error).Str("error_kind", e.ErrorKind)
		}
		ev.Str("event_id", e.ID).
			Str("request_id", e.RequestID).
			Str("role", e.Role).
			Str("next_agent", e.NextAgent).
			Bool("fallback", e.Fallback).
			Bool("coerced", e.Coerced).
			Int("snippet_bytes", e.SnippetBytes).
			Str("snippet_digest", e.SnippetDigest).
			Int64("duration_ms", e.DurationMS).
			Msg("turn")
		return nil
	}
}
