// Package llmclient assembles the llm.Client for the configured transport.
package llmclient

import (
	"context"
	"fmt"

	"github.com/danshapiro/gamecrew/internal/llm"
	"github.com/danshapiro/gamecrew/internal/llm/providers/genaisdk"
	"github.com/danshapiro/gamecrew/internal/llm/providers/google"
	"github.com/danshapiro/gamecrew/internal/providerspec"
)

type Options struct {
	// Transport is a provider key or alias: "rest" or "sdk".
	Transport string
	APIKey    string
	BaseURL   string
	// Catalog bounds per-model request limits; nil uses the built-in one.
	Catalog *llm.ModelCatalog
}

// New registers the adapter for opts.Transport and returns the client with a
// function releasing the adapter's resources.
func New(ctx context.Context, opts Options) (*llm.Client, func(), error) {
	var (
		adapter llm.ProviderAdapter
		release = func() {}
	)
	switch key := providerspec.CanonicalProviderKey(opts.Transport); key {
	case google.ProviderName:
		adapter = google.New(opts.APIKey, opts.BaseURL)
	case genaisdk.ProviderName:
		a, err := genaisdk.New(ctx, opts.APIKey, opts.BaseURL)
		if err != nil {
			return nil, nil, err
		}
		adapter = a
		release = func() { _ = a.Close() }
	default:
		return nil, nil, &llm.ConfigurationError{Message: fmt.Sprintf("unknown transport: %s", opts.Transport)}
	}

	catalog := opts.Catalog
	if catalog == nil {
		catalog = llm.DefaultModelCatalog()
	}
	c := llm.NewClient()
	c.Register(adapter)
	c.Use(llm.ExecutionPolicyMiddleware(catalog))
	return c, release, nil
}
