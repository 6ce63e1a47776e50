package mocks

import (
	"fmt"
	"net/http"

	"github.com/stretchr/testify/mock"
)

type MockHTTPClient struct {
	mock.Mock
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, ok := args.Get(0).(*http.Response)
	if !ok && args.Get(0) != nil {
		return nil, fmt.Errorf("expected *http.Response, got %T", args.Get(0))
	}
	return resp, args.Error(1)
}

// Requests returns the requests passed to Do, in call order.
func (m *MockHTTPClient) Requests() []*http.Request {
	var reqs []*http.Request
	for _, call := range m.Calls {
		if call.Method != "Do" {
			continue
		}
		if req, ok := call.Arguments.Get(0).(*http.Request); ok {
			reqs = append(reqs, req)
		}
	}
	return reqs
}
