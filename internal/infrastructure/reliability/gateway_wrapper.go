package reliability

import (
	"context"
	"errors"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/pkg/circuitbreaker"
	"streamcast/pkg/retry"

	"go.uber.org/zap"
)

// GatewayWrapper wraps a CredentialGateway with retry logic and a circuit
// breaker, protecting the admission path from a flaky credential backend.
// Domain rejections pass through untouched; only infrastructure failures
// count against the breaker.
type GatewayWrapper struct {
	gateway ports.CredentialGateway
	logger  *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

// NewGatewayWrapper creates a new wrapper with retry and circuit breaker
func NewGatewayWrapper(
	gateway ports.CredentialGateway,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *GatewayWrapper {
	return &GatewayWrapper{
		gateway:        gateway,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig),
	}
}

var _ ports.CredentialGateway = (*GatewayWrapper)(nil)

// Validate runs the underlying validation through the breaker. A domain
// rejection (bad key, key already live) is a definitive answer and is
// never retried.
func (w *GatewayWrapper) Validate(ctx context.Context, key domain.StreamKey) (*domain.StreamCredential, error) {
	var cred *domain.StreamCredential
	var rejection error

	err := retry.Do(ctx, w.retryConfig, func() error {
		return w.circuitBreaker.Execute(func() error {
			c, innerErr := w.gateway.Validate(ctx, key)
			if innerErr == nil {
				cred = c
				return nil
			}
			if isDomainRejection(innerErr) {
				// Definitive answer; it counts as breaker success and
				// short-circuits the retry loop.
				rejection = innerErr
				return nil
			}
			return innerErr
		})
	})
	if err != nil {
		w.logger.Warnw("credential validation failed after retries",
			"stream_key", key,
			"breaker_state", w.circuitBreaker.State(),
			"error", err,
		)
		return nil, err
	}
	if rejection != nil {
		return nil, rejection
	}
	return cred, nil
}

func isDomainRejection(err error) bool {
	return errors.Is(err, domain.ErrInvalidCredential) || errors.Is(err, domain.ErrAlreadyLive)
}
