package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/danshapiro/gamecrew/internal/llm"
	"github.com/danshapiro/gamecrew/internal/roles"
)

// Kind classifies a backend failure. It is informational: callers treat every
// GatewayError the same way and decide on their own whether to resubmit.
type Kind string

const (
	KindRejectedHistory Kind = "rejected_history"
	KindAuth            Kind = "auth"
	KindQuota           Kind = "quota"
	KindTimeout         Kind = "timeout"
	KindNetwork         Kind = "network"
	KindCanceled        Kind = "canceled"
	KindConfig          Kind = "config"
	KindBackend         Kind = "backend"
)

// ErrBackendRejectedHistory matches a GatewayError whose backend refused the
// request as malformed, typically because history turns do not alternate.
var ErrBackendRejectedHistory = errors.New("backend rejected history")

type GatewayError struct {
	Kind  Kind
	Role  roles.Role
	Cause error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway: %s turn failed (%s): %v", e.Role, e.Kind, e.Cause)
}

func (e *GatewayError) Unwrap() error { return e.Cause }

func (e *GatewayError) Is(target error) bool {
	return target == ErrBackendRejectedHistory && e.Kind == KindRejectedHistory
}

// Retryable reports whether resubmitting the same turn could succeed.
func (e *GatewayError) Retryable() bool {
	switch e.Kind {
	case KindAuth, KindConfig, KindCanceled:
		return false
	default:
		return true
	}
}

func classify(err error) Kind {
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	var (
		cfg  *llm.ConfigurationError
		inv  *llm.InvalidRequestError
		auth *llm.AuthenticationError
		deny *llm.AccessDeniedError
		qe   *llm.QuotaExceededError
		rl   *llm.RateLimitError
		to   *llm.RequestTimeoutError
		ne   *llm.NetworkError
	)
	switch {
	case errors.As(err, &cfg):
		return KindConfig
	case errors.As(err, &auth), errors.As(err, &deny):
		return KindAuth
	case errors.As(err, &qe), errors.As(err, &rl):
		return KindQuota
	case errors.As(err, &to), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &ne):
		return KindNetwork
	case errors.As(err, &inv):
		return KindRejectedHistory
	default:
		return KindBackend
	}
}

// IsGatewayError reports whether err carries a *GatewayError.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
