// Package handoff runs one agent turn: resolve the role, call the model,
// interpret the reply, and name the successor.
//
// The controller keeps no state between turns. History travels with every
// request, and looping until FINISH is the caller's business.
package handoff

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danshapiro/gamecrew/internal/events"
	"github.com/danshapiro/gamecrew/internal/gateway"
	"github.com/danshapiro/gamecrew/internal/interpret"
	"github.com/danshapiro/gamecrew/internal/llm"
	"github.com/danshapiro/gamecrew/internal/roles"
)

// Invoker issues one backend turn and returns the model's raw text.
type Invoker interface {
	Invoke(ctx context.Context, role roles.Role, history []llm.Message, message string) (string, error)
}

type TurnRequest struct {
	// Role is the display name of the acting role.
	Role string
	// Message may be empty, meaning "resume from history".
	Message   string
	History   []llm.Message
	RequestID string
}

type TurnResult struct {
	Thought     string     `json:"thought"`
	Content     string     `json:"content"`
	NextRole    roles.Role `json:"next_agent"`
	CodeSnippet *string    `json:"code_snippet"`
}

type Controller struct {
	registry *roles.Registry
	invoker  Invoker
	sink     events.Sink
}

type Option func(*Controller)

// WithSink publishes a TurnEvent for every handled turn.
func WithSink(s events.Sink) Option { return func(c *Controller) { c.sink = s } }

func NewController(registry *roles.Registry, invoker Invoker, opts ...Option) *Controller {
	c := &Controller{registry: registry, invoker: invoker}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Handle runs req. It fails with *roles.UnknownRoleError before any backend
// call when the role does not resolve, and passes backend failures through
// unchanged. On success NextRole is always a team role or roles.Finish.
func (c *Controller) Handle(ctx context.Context, req TurnRequest) (TurnResult, error) {
	role, _, err := c.registry.LookupName(req.Role)
	if err != nil {
		log.Debug().Str("request_id", req.RequestID).Str("role", req.Role).Msg("unknown role")
		return TurnResult{}, err
	}

	start := time.Now()
	ev := events.NewTurnEvent(req.RequestID, role.String())

	raw, err := c.invoker.Invoke(ctx, role, req.History, req.Message)
	if err != nil {
		ev.DurationMS = time.Since(start).Milliseconds()
		ev.Error = err.Error()
		var ge *gateway.GatewayError
		if errors.As(err, &ge) {
			ev.ErrorKind = string(ge.Kind)
		}
		c.publish(ctx, ev)
		return TurnResult{}, err
	}

	res := interpret.Interpret(raw)
	logger := log.With().Str("request_id", req.RequestID).Str("role", role.String()).Logger()
	if res.Fallback {
		logger.Warn().Str("reason", res.Reason).Int("raw_bytes", len(raw)).Msg("reply did not decode; routing to fallback role")
	}
	if res.Coerced {
		logger.Warn().Str("proposed", res.Proposed).Msg("unknown successor; routing to fallback role")
	}

	ev.NextAgent = res.NextRole.String()
	ev.Proposed = res.Proposed
	ev.Fallback = res.Fallback
	ev.Coerced = res.Coerced
	ev.SetSnippet(res.CodeSnippet)
	ev.DurationMS = time.Since(start).Milliseconds()
	c.publish(ctx, ev)

	return TurnResult{
		Thought:     res.Thought,
		Content:     res.Content,
		NextRole:    res.NextRole,
		CodeSnippet: res.CodeSnippet,
	}, nil
}

func (c *Controller) publish(ctx context.Context, ev events.TurnEvent) {
	if c.sink == nil {
		return
	}
	if err := c.sink.PublishTurn(ctx, ev); err != nil {
		log.Warn().Err(err).Str("event_id", ev.ID).Msg("turn event not published")
	}
}

// ErrorStatus maps a Handle error onto an HTTP status.
func ErrorStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case roles.IsUnknownRole(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
