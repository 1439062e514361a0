package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

type ProviderExecutionPolicy struct {
	MaxMaxTokens int
	Reason       string
}

// ExecutionPolicy derives request limits for model from the catalog. Unknown
// models get the zero policy.
func ExecutionPolicy(catalog *ModelCatalog, model string) ProviderExecutionPolicy {
	mi := catalog.GetModelInfo(model)
	if mi == nil || mi.OutputTokenLimit <= 0 {
		return ProviderExecutionPolicy{}
	}
	return ProviderExecutionPolicy{
		MaxMaxTokens: mi.OutputTokenLimit,
		Reason:       fmt.Sprintf("%s accepts at most %d output tokens", mi.ID, mi.OutputTokenLimit),
	}
}

// ApplyExecutionPolicy clamps MaxTokens to the policy. An unset MaxTokens is
// left to the backend default.
func ApplyExecutionPolicy(req Request, policy ProviderExecutionPolicy) Request {
	if policy.MaxMaxTokens <= 0 || req.MaxTokens == nil {
		return req
	}
	if *req.MaxTokens <= policy.MaxMaxTokens {
		return req
	}
	v := policy.MaxMaxTokens
	req.MaxTokens = &v
	return req
}

// ExecutionPolicyMiddleware applies the catalog's policy to every request.
func ExecutionPolicyMiddleware(catalog *ModelCatalog) Middleware {
	return MiddlewareFunc{
		Complete: func(ctx context.Context, req Request, next CompleteFunc) (Response, error) {
			policy := ExecutionPolicy(catalog, req.Model)
			clamped := ApplyExecutionPolicy(req, policy)
			if clamped.MaxTokens != req.MaxTokens {
				log.Debug().
					Str("model", req.Model).
					Int("requested", *req.MaxTokens).
					Int("max_tokens", *clamped.MaxTokens).
					Str("reason", policy.Reason).
					Msg("clamped max output tokens")
			}
			return next(ctx, clamped)
		},
	}
}
