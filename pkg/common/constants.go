package common

const (
	RequestIDHeader = "X-Request-ID"

	PrintProxyPath   = "/print-proxy"
	StatusProxyPath  = "/status-proxy"
	ClientPrintPath  = "/api/print"
	ClientStatusPath = "/api/status"
	StatusStreamPath = "/status-stream"
	HealthPath       = "/health"
	PingPath         = "/__/ping"
	VersionPath      = "/version"
	MetricsPath      = "/metrics"
	DocsPath         = "/docs/*"
	SwaggerJSONPath  = "/swagger.json"

	// PrintRateLimitScope keys the server-side throttle for print jobs.
	PrintRateLimitScope = "print"
)
