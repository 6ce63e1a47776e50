package common

type ContextKey string

const (
	RequestIDContextKey ContextKey = "request_id"
	ClientIPContextKey  ContextKey = "client_ip"
	RouteContextKey     ContextKey = "route"
	LatencyContextKey   ContextKey = "start_time"
	WsSemaphoreKey      ContextKey = "ws_semaphore"
)
