package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/pkg/circuitbreaker"
	"streamcast/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedGateway struct {
	calls   int
	results []error
	cred    *domain.StreamCredential
}

func (g *scriptedGateway) Validate(ctx context.Context, key domain.StreamKey) (*domain.StreamCredential, error) {
	idx := g.calls
	g.calls++
	if idx >= len(g.results) {
		idx = len(g.results) - 1
	}
	if err := g.results[idx]; err != nil {
		return nil, err
	}
	return g.cred, nil
}

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestGatewayWrapper_PassesThroughSuccess(t *testing.T) {
	inner := &scriptedGateway{
		results: []error{nil},
		cred:    &domain.StreamCredential{Key: "key-a", OwnerID: "user-1"},
	}
	wrapper := NewGatewayWrapper(inner, fastRetry(), circuitbreaker.DefaultConfig(), zap.NewNop().Sugar())

	cred, err := wrapper.Validate(context.Background(), "key-a")
	require.NoError(t, err)
	assert.Equal(t, domain.StreamKey("key-a"), cred.Key)
	assert.Equal(t, 1, inner.calls)
}

func TestGatewayWrapper_DomainRejectionNotRetried(t *testing.T) {
	for _, rejection := range []error{domain.ErrInvalidCredential, domain.ErrAlreadyLive} {
		t.Run(rejection.Error(), func(t *testing.T) {
			inner := &scriptedGateway{results: []error{rejection}}
			wrapper := NewGatewayWrapper(inner, fastRetry(), circuitbreaker.DefaultConfig(), zap.NewNop().Sugar())

			_, err := wrapper.Validate(context.Background(), "key-a")
			assert.ErrorIs(t, err, rejection)
			assert.Equal(t, 1, inner.calls)
		})
	}
}

func TestGatewayWrapper_RetriesTransientFailure(t *testing.T) {
	inner := &scriptedGateway{
		results: []error{errors.New("connection refused"), nil},
		cred:    &domain.StreamCredential{Key: "key-a"},
	}
	wrapper := NewGatewayWrapper(inner, fastRetry(), circuitbreaker.DefaultConfig(), zap.NewNop().Sugar())

	cred, err := wrapper.Validate(context.Background(), "key-a")
	require.NoError(t, err)
	assert.NotNil(t, cred)
	assert.Equal(t, 2, inner.calls)
}

func TestGatewayWrapper_BreakerOpensOnPersistentFailure(t *testing.T) {
	inner := &scriptedGateway{results: []error{errors.New("backend down")}}
	wrapper := NewGatewayWrapper(
		inner,
		fastRetry(),
		circuitbreaker.Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute},
		zap.NewNop().Sugar(),
	)

	_, err := wrapper.Validate(context.Background(), "key-a")
	require.Error(t, err)

	// The breaker tripped during the retries; the next call is rejected
	// without touching the backend.
	callsBefore := inner.calls
	_, err = wrapper.Validate(context.Background(), "key-a")
	require.Error(t, err)
	assert.Equal(t, callsBefore, inner.calls)
}
