package signaling

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// RelayURL returns the negotiation socket address for a relay location:
// wss://{location}.{domain}:443/?author=..&public_key=..
func RelayURL(locationID, domain, author, publicKey string) (string, error) {
	locationID = strings.TrimSpace(locationID)
	domain = strings.Trim(strings.TrimSpace(domain), ".")
	if locationID == "" {
		return "", fmt.Errorf("relay url: location id is required")
	}
	if domain == "" {
		return "", fmt.Errorf("relay url: relay domain is required")
	}
	return socketURL(net.JoinHostPort(locationID+"."+domain, "443"), author, publicKey), nil
}

// CoordinationURL returns the socket address of the in-tunnel coordinator used
// to resume an existing tunnel. addr is a host:port pair.
func CoordinationURL(addr, author, publicKey string) (string, error) {
	addr = strings.TrimSpace(addr)
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return "", fmt.Errorf("coordination url: %w", err)
	}
	return socketURL(addr, author, publicKey), nil
}

func socketURL(host, author, publicKey string) string {
	q := url.Values{}
	q.Set("author", author)
	q.Set("public_key", publicKey)
	u := url.URL{
		Scheme:   "wss",
		Host:     host,
		Path:     "/",
		RawQuery: q.Encode(),
	}
	return u.String()
}

// redact strips the query string so identities and keys stay out of logs.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}
