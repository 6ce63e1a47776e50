package middleware

import (
	"strconv"
	"time"

	"github.com/NeuralTrust/PrintGate/pkg/common"
	"github.com/NeuralTrust/PrintGate/pkg/infra/httpx"
	"github.com/NeuralTrust/PrintGate/pkg/infra/prometheus"
	"github.com/NeuralTrust/PrintGate/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type metricsMiddleware struct {
	logger         *logrus.Logger
	metricsEnabled bool
}

// NewMetricsMiddleware records every request in Prometheus and writes one
// access log line per request. It also resolves the client address for the
// handlers downstream.
func NewMetricsMiddleware(logger *logrus.Logger, metricsEnabled bool) Middleware {
	return &metricsMiddleware{
		logger:         logger,
		metricsEnabled: metricsEnabled,
	}
}

func (m *metricsMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		startTime := time.Now()
		c.Locals(string(common.LatencyContextKey), startTime)

		ip := httpx.ClientIP(func(key string) string { return c.Get(key) }, c.Context().RemoteAddr().String())
		c.Locals(string(common.ClientIPContextKey), ip)

		err := c.Next()
		if err != nil {
			// Let the app error handler set the final status before we read it.
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError) //nolint:errcheck
			}
			err = nil
		}

		elapsed := time.Since(startTime)
		statusCode := c.Response().StatusCode()
		route := c.Route().Path

		if m.metricsEnabled {
			prometheus.RequestTotal.WithLabelValues(route, c.Method(), getStatusClass(statusCode)).Inc()
			prometheus.RequestLatency.WithLabelValues(route).Observe(float64(elapsed.Milliseconds()))
		}

		fields := logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"route":      route,
			"status":     statusCode,
			"latency_ms": elapsed.Milliseconds(),
			"client_ip":  ip,
		}
		if id, ok := c.Locals(string(common.RequestIDContextKey)).(string); ok {
			fields["request_id"] = id
		}
		if ua := utils.ParseUserAgent(c.Get(fiber.HeaderUserAgent), c.Get(fiber.HeaderAcceptLanguage)); ua != nil {
			fields["device"] = ua.Device
			fields["os"] = ua.OS
			fields["browser"] = ua.Browser
			fields["locale"] = ua.Locale
		}

		entry := m.logger.WithFields(fields)
		switch {
		case statusCode >= fiber.StatusInternalServerError:
			entry.Error("request completed")
		case statusCode >= fiber.StatusBadRequest:
			entry.Warn("request completed")
		default:
			entry.Info("request completed")
		}
		return err
	}
}

func getStatusClass(code int) string {
	if code < 100 || code > 599 {
		return "5xx"
	}
	return strconv.Itoa(code/100) + "xx"
}
