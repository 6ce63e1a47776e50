package middleware

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/NeuralTrust/PrintGate/pkg/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

func TestPanicRecover_ReturnsPlainText500(t *testing.T) {
	logger, hook := newTestLogger()
	app := fiber.New()
	app.Use(NewPanicRecoverMiddleware(logger).Middleware())
	app.Get("/boom", func(c *fiber.Ctx) error { panic("printer exploded") })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body) //nolint:errcheck
	assert.Equal(t, "Internal Server Error", string(body))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "HTTP server panic recovered", hook.LastEntry().Message)
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	app := fiber.New()
	app.Use(NewRequestIDMiddleware().Middleware())
	var seen string
	app.Get("/", func(c *fiber.Ctx) error {
		seen, _ = c.Locals(string(common.RequestIDContextKey)).(string) //nolint:errcheck
		assert.Equal(t, seen, c.UserContext().Value(common.RequestIDContextKey))
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	_, err = uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, resp.Header.Get(common.RequestIDHeader))
}

func TestRequestID_KeepsCallerValue(t *testing.T) {
	app := fiber.New()
	app.Use(NewRequestIDMiddleware().Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(common.RequestIDHeader, "trace-42")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "trace-42", resp.Header.Get(common.RequestIDHeader))
}

func corsApp(origins []string) *fiber.App {
	app := fiber.New()
	app.Use(NewCORSGlobalMiddleware(origins, []string{"GET", "POST", "OPTIONS"}, false, []string{"Retry-After"}, "600").Middleware())
	app.All("/print-proxy", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusMethodNotAllowed) })
	return app
}

func TestCORS_Preflight(t *testing.T) {
	app := corsApp([]string{"https://draw.example.com"})
	req := httptest.NewRequest(fiber.MethodOptions, "/print-proxy", nil)
	req.Header.Set("Origin", "https://draw.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type, cf-turnstile-response")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://draw.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "content-type, cf-turnstile-response", resp.Header.Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", resp.Header.Get("Access-Control-Max-Age"))
}

func TestCORS_Wildcard(t *testing.T) {
	app := corsApp([]string{"*"})
	req := httptest.NewRequest(fiber.MethodPost, "/print-proxy", nil)
	req.Header.Set("Origin", "https://anywhere.example")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Retry-After", resp.Header.Get("Access-Control-Expose-Headers"))
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	app := corsApp([]string{"https://draw.example.com"})
	req := httptest.NewRequest(fiber.MethodOptions, "/print-proxy", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, fiber.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetrics_LogsRequestAndResolvesClientIP(t *testing.T) {
	logger, hook := newTestLogger()
	app := fiber.New()
	app.Use(NewMetricsMiddleware(logger, true).Middleware())
	var ip string
	app.Get("/status-proxy", func(c *fiber.Ctx) error {
		ip, _ = c.Locals(string(common.ClientIPContextKey)).(string) //nolint:errcheck
		return c.Status(fiber.StatusBadGateway).SendString("Bad gateway")
	})

	req := httptest.NewRequest(fiber.MethodGet, "/status-proxy", nil)
	req.Header.Set("CF-Connecting-IP", "198.51.100.4")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "198.51.100.4", ip)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, 502, entry.Data["status"])
	assert.Equal(t, "/status-proxy", entry.Data["route"])
	assert.Equal(t, "Computer", entry.Data["device"])
}

func TestMetrics_AppliesErrorHandler(t *testing.T) {
	logger, hook := newTestLogger()
	app := fiber.New()
	app.Use(NewMetricsMiddleware(logger, false).Middleware())
	app.Get("/fail", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "nope") })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("boom") })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/fail", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)
	assert.Equal(t, fiber.StatusTeapot, hook.LastEntry().Data["status"])

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestGetStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", getStatusClass(200))
	assert.Equal(t, "4xx", getStatusClass(429))
	assert.Equal(t, "5xx", getStatusClass(504))
	assert.Equal(t, "5xx", getStatusClass(0))
}

func TestWebsocketMiddleware_RejectsPlainHTTP(t *testing.T) {
	logger, _ := newTestLogger()
	app := fiber.New()
	app.Get("/status-stream", NewWebsocketMiddleware(logger, 1).Middleware(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/status-stream", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestWebsocketMiddleware_CapsConnections(t *testing.T) {
	logger, _ := newTestLogger()
	app := fiber.New()
	app.Get("/status-stream", NewWebsocketMiddleware(logger, 1).Middleware(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i, want := range []int{fiber.StatusOK, fiber.StatusTooManyRequests} {
		req := httptest.NewRequest(fiber.MethodGet, "/status-stream", nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		resp, err := app.Test(req)
		require.NoError(t, err, "request %d", i)
		assert.Equal(t, want, resp.StatusCode, "request %d", i)
	}
}
