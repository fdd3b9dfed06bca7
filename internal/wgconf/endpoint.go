package wgconf

import (
	"net"
	"strconv"
	"strings"
)

// EndpointHost returns the host part of a host[:port] endpoint. Bracketed IPv6
// literals are unwrapped.
func EndpointHost(endpoint string) string {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(ep); err == nil {
		return host
	}
	return strings.Trim(ep, "[]")
}

// EndpointWithPort returns endpoint with DefaultPort appended when it carries
// no port of its own.
func EndpointWithPort(endpoint string) string {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		return ""
	}
	if _, _, err := net.SplitHostPort(ep); err == nil {
		return ep
	}
	return net.JoinHostPort(strings.Trim(ep, "[]"), strconv.Itoa(DefaultPort))
}
