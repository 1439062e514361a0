package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/danshapiro/gamecrew/internal/config"
	"github.com/danshapiro/gamecrew/internal/events"
	"github.com/danshapiro/gamecrew/internal/gateway"
	"github.com/danshapiro/gamecrew/internal/handoff"
	"github.com/danshapiro/gamecrew/internal/llm"
	"github.com/danshapiro/gamecrew/internal/llmclient"
	"github.com/danshapiro/gamecrew/internal/providerspec"
	"github.com/danshapiro/gamecrew/internal/roles"
)

func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if f := fs.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

// stack is the assembled turn pipeline.
type stack struct {
	registry   *roles.Registry
	gateway    *gateway.Gateway
	controller *handoff.Controller
	close      func()
}

func providerName(transport string) string {
	return providerspec.CanonicalProviderKey(transport)
}

func loadModelCatalog(cfg config.Config) (*llm.ModelCatalog, error) {
	if cfg.Model.Catalog == "" {
		return llm.DefaultModelCatalog(), nil
	}
	c, err := llm.LoadModelCatalogFromGeminiJSON(cfg.Model.Catalog)
	if err != nil {
		return nil, errors.Wrap(err, "load model catalog")
	}
	return c, nil
}

// buildStack wires registry, backend adapter, gateway and controller.
// The caller must have checked cfg.CredentialError.
func buildStack(ctx context.Context, cfg config.Config, sink events.Sink) (*stack, error) {
	reg, err := roles.LoadRegistry(cfg.RolesCatalog)
	if err != nil {
		return nil, errors.Wrap(err, "load role catalog")
	}
	catalog, err := loadModelCatalog(cfg)
	if err != nil {
		return nil, err
	}
	client, closeAdapter, err := llmclient.New(ctx, llmclient.Options{
		Transport: cfg.Model.Transport,
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.Model.BaseURL,
		Catalog:   catalog,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create backend client")
	}

	opts := []gateway.Option{
		gateway.WithModel(cfg.Model.Name),
		gateway.WithTimeout(cfg.Model.Timeout),
		gateway.WithMaxOutputTokens(cfg.Model.MaxOutputTokens),
	}
	if cfg.Model.Temperature != nil {
		opts = append(opts, gateway.WithTemperature(*cfg.Model.Temperature))
	}
	gw, err := gateway.New(client, reg, opts...)
	if err != nil {
		closeAdapter()
		return nil, err
	}

	var ctrlOpts []handoff.Option
	if sink != nil {
		ctrlOpts = append(ctrlOpts, handoff.WithSink(sink))
	}
	return &stack{
		registry:   reg,
		gateway:    gw,
		controller: handoff.NewController(reg, gw, ctrlOpts...),
		close:      closeAdapter,
	}, nil
}
