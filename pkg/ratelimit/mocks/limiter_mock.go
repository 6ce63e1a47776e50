package mocks

import (
	"context"

	"github.com/NeuralTrust/PrintGate/pkg/ratelimit"
	"github.com/stretchr/testify/mock"
)

type Limiter struct {
	mock.Mock
}

func (m *Limiter) Allow(ctx context.Context, scope, key string) (*ratelimit.Decision, error) {
	args := m.Called(ctx, scope, key)
	decision, _ := args.Get(0).(*ratelimit.Decision) //nolint:errcheck
	return decision, args.Error(1)
}
