package httpx

import (
	"net"
	"strings"
)

const (
	HeaderCFConnectingIP = "CF-Connecting-IP"
	HeaderXForwardedFor  = "X-Forwarded-For"
)

// ClientIP returns the best-effort caller address: CF-Connecting-IP, then
// X-Forwarded-For, then the socket address. The headers are only as
// trustworthy as the reverse proxy in front of the server.
//
// The forwarded-for value is returned as sent, including any proxy chain.
func ClientIP(header func(string) string, remoteAddr string) string {
	if ip := strings.TrimSpace(header(HeaderCFConnectingIP)); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(header(HeaderXForwardedFor)); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// ClientKey reduces a ClientIP value to a single address suitable for
// keying per-client state.
func ClientKey(ip string) string {
	if first, _, found := strings.Cut(ip, ","); found {
		ip = first
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return "unknown"
	}
	return ip
}
