package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	domain "github.com/NeuralTrust/PrintGate/pkg/domain/errors"
	"github.com/NeuralTrust/PrintGate/pkg/infra/httpx"
	"github.com/NeuralTrust/PrintGate/pkg/infra/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	HeaderAPIKey = "x-api-key"

	EndpointPrint  = "print"
	EndpointStatus = "status"
)

// Endpoint identifies one printer service route and the budget for a call
// to it.
type Endpoint struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// PrintRequest carries the inbound job untouched. ContentLength is -1 when
// the caller did not declare one.
type PrintRequest struct {
	ContentType   string
	ContentLength int64
	Body          io.Reader
}

type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

//go:generate mockery --name=Client --dir=. --output=./mocks --filename=client_mock.go --case=underscore
type Client interface {
	Print(ctx context.Context, endpoint Endpoint, req PrintRequest) (*Response, error)
	Status(ctx context.Context, endpoint Endpoint) (*Response, error)
}

type client struct {
	httpClient httpx.Client
	breaker    httpx.CircuitBreaker
	logger     *logrus.Logger
	metrics    bool
}

type ClientOpts struct {
	HTTPClient httpx.Client
	// Breaker is optional; nil calls the printer service directly.
	Breaker        httpx.CircuitBreaker
	MetricsEnabled bool
}

func NewClient(logger *logrus.Logger, opts *ClientOpts) Client {
	c := &client{logger: logger}
	if opts != nil {
		c.httpClient = opts.HTTPClient
		c.breaker = opts.Breaker
		c.metrics = opts.MetricsEnabled
	}
	if c.httpClient == nil {
		c.httpClient = NewHTTPClient()
	}
	return c
}

// NewHTTPClient returns the transport used for the printer service. It has
// no overall timeout of its own: every call is bounded by its context.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (c *client) Print(ctx context.Context, endpoint Endpoint, pr PrintRequest) (*Response, error) {
	return c.call(ctx, EndpointPrint, endpoint, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, pr.Body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", pr.ContentType)
		if pr.ContentLength >= 0 {
			req.ContentLength = pr.ContentLength
		} else {
			req.ContentLength = -1
		}
		return req, nil
	})
}

func (c *client) Status(ctx context.Context, endpoint Endpoint) (*Response, error) {
	return c.call(ctx, EndpointStatus, endpoint, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint.URL, nil)
	})
}

// call performs exactly one attempt under endpoint.Timeout. The deadline
// covers reading the response body, and the timer is released on every
// path by the deferred cancel.
func (c *client) call(
	parent context.Context,
	name string,
	endpoint Endpoint,
	build func(ctx context.Context) (*http.Request, error),
) (*Response, error) {
	ctx, cancel := context.WithTimeout(parent, endpoint.Timeout)
	defer cancel()

	startTime := time.Now()

	req, err := build(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	req.Header.Set(HeaderAPIKey, endpoint.APIKey)

	var out *Response
	roundTrip := func() error {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read upstream response: %w", err)
		}
		if decoded, changed, err := httpx.DecodeBody(resp.Header, body); err != nil {
			c.logger.WithError(err).WithField("endpoint", name).Warn("relaying undecodable upstream body as received")
		} else if changed {
			body = decoded
		}

		out = &Response{
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        body,
		}
		return nil
	}

	if c.breaker != nil {
		err = c.breaker.Execute(roundTrip)
	} else {
		err = roundTrip()
	}

	latency := float64(time.Since(startTime).Milliseconds())
	if err != nil {
		classified, outcome := classify(ctx, err)
		c.observe(name, outcome, latency)
		c.logger.WithError(err).WithFields(logrus.Fields{
			"endpoint": name,
			"outcome":  outcome,
			"latency":  latency,
		}).Warn("printer service call failed")
		return nil, classified
	}

	c.observe(name, prometheus.OutcomeSuccess, latency)
	c.logger.WithFields(logrus.Fields{
		"endpoint": name,
		"status":   out.StatusCode,
		"latency":  latency,
	}).Debug("printer service responded")
	return out, nil
}

func (c *client) observe(endpoint, outcome string, latency float64) {
	if c.metrics {
		prometheus.UpstreamLatency.WithLabelValues(endpoint, outcome).Observe(latency)
	}
}

func classify(ctx context.Context, err error) (error, string) {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err), prometheus.OutcomeTimeout
	case httpx.IsOpen(err):
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err), prometheus.OutcomeCircuitOpen
	default:
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err), prometheus.OutcomeError
	}
}
