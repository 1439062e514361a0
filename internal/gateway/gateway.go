// Package gateway issues one role-scoped conversational turn to the model
// backend and returns the model's raw text.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/danshapiro/gamecrew/internal/interpret"
	"github.com/danshapiro/gamecrew/internal/llm"
	"github.com/danshapiro/gamecrew/internal/roles"
)

const (
	DefaultModel           = "gemini-1.5-pro-latest"
	DefaultTimeout         = 120 * time.Second
	DefaultMaxOutputTokens = 8192
)

// ContinuationMessage is sent in place of an empty user message.
func ContinuationMessage(role roles.Role) string {
	return fmt.Sprintf("Attention %s. Proceed with your task based on context.", role)
}

type Gateway struct {
	adapter     llm.ProviderAdapter
	registry    *roles.Registry
	model       string
	timeout     time.Duration
	maxTokens   int
	temperature *float64
	schema      map[string]any
	noSchema    bool
}

type Option func(*Gateway)

func WithModel(name string) Option { return func(g *Gateway) { g.model = name } }

// WithTimeout bounds each backend call. Zero disables the bound.
func WithTimeout(d time.Duration) Option { return func(g *Gateway) { g.timeout = d } }

func WithMaxOutputTokens(n int) Option { return func(g *Gateway) { g.maxTokens = n } }

func WithTemperature(t float64) Option {
	return func(g *Gateway) { g.temperature = &t }
}

// WithResponseSchema replaces the reply schema sent to the backend. A nil
// schema keeps JSON mode but sends no schema.
func WithResponseSchema(schema map[string]any) Option {
	return func(g *Gateway) {
		g.schema = schema
		g.noSchema = schema == nil
	}
}

// New builds a gateway over an already-credentialed adapter.
func New(adapter llm.ProviderAdapter, registry *roles.Registry, opts ...Option) (*Gateway, error) {
	if adapter == nil {
		return nil, errors.New("gateway: adapter is required")
	}
	if registry == nil {
		return nil, errors.New("gateway: registry is required")
	}
	g := &Gateway{
		adapter:   adapter,
		registry:  registry,
		model:     DefaultModel,
		timeout:   DefaultTimeout,
		maxTokens: DefaultMaxOutputTokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.schema == nil && !g.noSchema {
		s, err := interpret.ReplySchema()
		if err != nil {
			return nil, errors.Wrap(err, "gateway: reply schema")
		}
		g.schema = s
	}
	return g, nil
}

func (g *Gateway) Model() string { return g.model }

func (g *Gateway) Provider() string { return g.adapter.Name() }

// Invoke runs one turn for role. History is passed through unmodified; the
// backend owns its structural rules. Unknown roles fail with
// *roles.UnknownRoleError, every backend failure with *GatewayError.
func (g *Gateway) Invoke(ctx context.Context, role roles.Role, history []llm.Message, message string) (string, error) {
	instruction, err := g.registry.Lookup(role)
	if err != nil {
		return "", err
	}
	if message == "" {
		message = ContinuationMessage(role)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	req := llm.Request{
		Provider:          g.adapter.Name(),
		Model:             g.model,
		SystemInstruction: instruction,
		History:           history,
		Message:           message,
		Temperature:       g.temperature,
		ResponseFormat:    g.responseFormat(),
	}
	if g.maxTokens > 0 {
		n := g.maxTokens
		req.MaxTokens = &n
	}

	start := time.Now()
	resp, err := g.adapter.Complete(ctx, req)
	if err != nil {
		ge := &GatewayError{Kind: classify(err), Role: role, Cause: err}
		log.Warn().
			Err(err).
			Str("role", role.String()).
			Str("kind", string(ge.Kind)).
			Str("provider", g.adapter.Name()).
			Dur("elapsed", time.Since(start)).
			Msg("backend call failed")
		return "", ge
	}
	log.Debug().
		Str("role", role.String()).
		Str("model", resp.Model).
		Str("finish", resp.Finish.Reason).
		Int("input_tokens", resp.Usage.InputTokens).
		Int("output_tokens", resp.Usage.OutputTokens).
		Dur("elapsed", time.Since(start)).
		Msg("backend call done")
	return resp.Text, nil
}

func (g *Gateway) responseFormat() *llm.ResponseFormat {
	if g.schema == nil {
		return &llm.ResponseFormat{Type: "json"}
	}
	return &llm.ResponseFormat{Type: "json_schema", JSONSchema: g.schema}
}
