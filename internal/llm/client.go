package llm

import (
	"context"
	"fmt"
	"sort"

	"github.com/danshapiro/gamecrew/internal/providerspec"
)

type CompleteFunc func(ctx context.Context, req Request) (Response, error)

// Middleware wraps the Complete call path of a Client.
type Middleware interface {
	WrapComplete(next CompleteFunc) CompleteFunc
}

// MiddlewareFunc adapts a plain function to Middleware. A nil Complete passes
// requests through.
type MiddlewareFunc struct {
	Complete func(ctx context.Context, req Request, next CompleteFunc) (Response, error)
}

func (m MiddlewareFunc) WrapComplete(next CompleteFunc) CompleteFunc {
	if m.Complete == nil {
		return next
	}
	return func(ctx context.Context, req Request) (Response, error) {
		return m.Complete(ctx, req, next)
	}
}

// Client routes requests to registered adapters by provider name. It is
// itself a ProviderAdapter named after its default provider.
type Client struct {
	providers       map[string]ProviderAdapter
	defaultProvider string
	middleware      []Middleware
}

func NewClient() *Client {
	return &Client{providers: map[string]ProviderAdapter{}}
}

func (c *Client) Register(adapter ProviderAdapter) {
	if c.providers == nil {
		c.providers = map[string]ProviderAdapter{}
	}
	name := normalizeProviderName(adapter.Name())
	c.providers[name] = adapter
	if c.defaultProvider == "" {
		c.defaultProvider = name
	}
}

func (c *Client) SetDefaultProvider(name string) {
	c.defaultProvider = normalizeProviderName(name)
}

func (c *Client) Name() string { return c.defaultProvider }

func (c *Client) ProviderNames() []string {
	if c == nil || len(c.providers) == 0 {
		return nil
	}
	out := make([]string, 0, len(c.providers))
	for k := range c.providers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	prov := req.Provider
	if prov == "" {
		prov = c.defaultProvider
	}
	if prov == "" {
		return Response{}, &ConfigurationError{Message: "no provider specified and no default provider configured"}
	}
	prov = normalizeProviderName(prov)
	adapter, ok := c.providers[prov]
	if !ok {
		return Response{}, &ConfigurationError{Message: fmt.Sprintf("unknown provider: %s", prov)}
	}
	req.Provider = prov

	base := func(ctx context.Context, req Request) (Response, error) {
		return adapter.Complete(ctx, req)
	}
	return applyMiddlewareComplete(base, c.middleware)(ctx, req)
}

// Use appends middleware to the client. Middleware is applied in registration order
// for the request phase and in reverse order for the response phase.
func (c *Client) Use(mw ...Middleware) {
	if c == nil {
		return
	}
	c.middleware = append(c.middleware, mw...)
}

func applyMiddlewareComplete(base CompleteFunc, mws []Middleware) CompleteFunc {
	h := base
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i].WrapComplete(h)
		}
	}
	return h
}

func normalizeProviderName(name string) string {
	return providerspec.CanonicalProviderKey(name)
}
