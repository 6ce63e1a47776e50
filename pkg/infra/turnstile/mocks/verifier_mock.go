package mocks

import (
	"context"

	"github.com/NeuralTrust/PrintGate/pkg/infra/turnstile"
	"github.com/stretchr/testify/mock"
)

type Verifier struct {
	mock.Mock
}

func (m *Verifier) Verify(ctx context.Context, req turnstile.VerifyRequest) (*turnstile.Outcome, error) {
	args := m.Called(ctx, req)
	outcome, _ := args.Get(0).(*turnstile.Outcome) //nolint:errcheck
	return outcome, args.Error(1)
}
