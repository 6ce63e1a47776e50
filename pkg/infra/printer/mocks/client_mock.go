package mocks

import (
	"context"

	"github.com/NeuralTrust/PrintGate/pkg/infra/printer"
	"github.com/stretchr/testify/mock"
)

type Client struct {
	mock.Mock
}

func (m *Client) Print(ctx context.Context, endpoint printer.Endpoint, req printer.PrintRequest) (*printer.Response, error) {
	args := m.Called(ctx, endpoint, req)
	resp, _ := args.Get(0).(*printer.Response) //nolint:errcheck
	return resp, args.Error(1)
}

func (m *Client) Status(ctx context.Context, endpoint printer.Endpoint) (*printer.Response, error) {
	args := m.Called(ctx, endpoint)
	resp, _ := args.Get(0).(*printer.Response) //nolint:errcheck
	return resp, args.Error(1)
}
