package turnstile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/NeuralTrust/PrintGate/pkg/infra/httpx"
	"github.com/valyala/fastjson"
)

// MaxResponseSize bounds a siteverify reply.
const MaxResponseSize = 64 * 1024

type VerifyRequest struct {
	Secret   string
	Token    string
	RemoteIP string
}

type Outcome struct {
	Success    bool
	ErrorCodes []string
	Hostname   string
}

//go:generate mockery --name=Verifier --dir=. --output=./mocks --filename=verifier_mock.go --case=underscore
type Verifier interface {
	// Verify submits a token to the siteverify endpoint. An error means the
	// service could not be consulted; a rejected token is a nil error with
	// Outcome.Success false.
	Verify(ctx context.Context, req VerifyRequest) (*Outcome, error)
}

type verifier struct {
	client    httpx.Client
	verifyURL string
	parsers   fastjson.ParserPool
}

func NewVerifier(client httpx.Client, verifyURL string) Verifier {
	return &verifier{
		client:    client,
		verifyURL: verifyURL,
	}
}

func (v *verifier) Verify(ctx context.Context, vr VerifyRequest) (*Outcome, error) {
	form := url.Values{
		"secret":   {vr.Secret},
		"response": {vr.Token},
		"remoteip": {vr.RemoteIP},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("siteverify request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read siteverify response: %w", err)
	}

	return v.parseOutcome(body), nil
}

// parseOutcome never fails: anything that is not a JSON document with a
// truthy "success" field is a rejection.
func (v *verifier) parseOutcome(body []byte) *Outcome {
	p := v.parsers.Get()
	defer v.parsers.Put(p)

	outcome := &Outcome{}
	doc, err := p.ParseBytes(body)
	if err != nil {
		outcome.ErrorCodes = []string{"invalid-response"}
		return outcome
	}

	outcome.Success = truthy(doc.Get("success"))
	outcome.Hostname = string(doc.GetStringBytes("hostname"))
	for _, code := range doc.GetArray("error-codes") {
		if b, err := code.StringBytes(); err == nil {
			outcome.ErrorCodes = append(outcome.ErrorCodes, string(b))
		}
	}
	return outcome
}

func truthy(v *fastjson.Value) bool {
	if v == nil {
		return false
	}
	switch v.Type() {
	case fastjson.TypeTrue, fastjson.TypeObject, fastjson.TypeArray:
		return true
	case fastjson.TypeNumber:
		return v.GetFloat64() != 0
	case fastjson.TypeString:
		return len(v.GetStringBytes()) > 0
	default:
		return false
	}
}
