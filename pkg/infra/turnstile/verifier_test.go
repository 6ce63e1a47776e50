package turnstile

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/NeuralTrust/PrintGate/pkg/infra/httpx/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testVerifyURL = "https://challenges.example.com/turnstile/v0/siteverify"

func jsonResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestVerifier_Verify_SendsForm(t *testing.T) {
	client := new(mocks.MockHTTPClient)
	client.On("Do", mock.Anything).Return(jsonResponse(`{"success":true,"hostname":"draw.example.com"}`), nil)

	v := NewVerifier(client, testVerifyURL)
	outcome, err := v.Verify(context.Background(), VerifyRequest{
		Secret:   "shh",
		Token:    "token-1",
		RemoteIP: "203.0.113.7",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "draw.example.com", outcome.Hostname)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, testVerifyURL, req.URL.String())
	assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))
	require.NoError(t, req.ParseForm())
	assert.Equal(t, "shh", req.PostForm.Get("secret"))
	assert.Equal(t, "token-1", req.PostForm.Get("response"))
	assert.Equal(t, "203.0.113.7", req.PostForm.Get("remoteip"))
}

func TestVerifier_Verify_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		success    bool
		errorCodes []string
	}{
		{name: "success true", body: `{"success":true}`, success: true},
		{name: "success false", body: `{"success":false,"error-codes":["invalid-input-response"]}`, success: false, errorCodes: []string{"invalid-input-response"}},
		{name: "missing success", body: `{"hostname":"x"}`, success: false},
		{name: "null success", body: `{"success":null}`, success: false},
		{name: "zero success", body: `{"success":0}`, success: false},
		{name: "empty string success", body: `{"success":""}`, success: false},
		{name: "non-zero number success", body: `{"success":1}`, success: true},
		{name: "string success", body: `{"success":"yes"}`, success: true},
		{name: "not json", body: `<html>bad gateway</html>`, success: false, errorCodes: []string{"invalid-response"}},
		{name: "empty body", body: ``, success: false, errorCodes: []string{"invalid-response"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mocks.MockHTTPClient)
			client.On("Do", mock.Anything).Return(jsonResponse(tt.body), nil)

			outcome, err := NewVerifier(client, testVerifyURL).Verify(context.Background(), VerifyRequest{Secret: "s", Token: "t"})
			require.NoError(t, err)
			assert.Equal(t, tt.success, outcome.Success)
			assert.Equal(t, tt.errorCodes, outcome.ErrorCodes)
		})
	}
}

func TestVerifier_Verify_TransportError(t *testing.T) {
	client := new(mocks.MockHTTPClient)
	client.On("Do", mock.Anything).Return(nil, errors.New("dial tcp: connection refused"))

	outcome, err := NewVerifier(client, testVerifyURL).Verify(context.Background(), VerifyRequest{Secret: "s", Token: "t"})
	assert.Nil(t, outcome)
	assert.ErrorContains(t, err, "connection refused")
}
