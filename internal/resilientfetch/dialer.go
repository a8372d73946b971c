package resilientfetch

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// httpClients bundles the two transports a Client chooses between per
// request: TLS verification on by default, off only for hosts on the
// per-source allow-list (spec.md §4.C: "per source an allow-list may
// disable it... to accommodate broken cert chains").
type httpClients struct {
	secure   *http.Client
	insecure *http.Client
}

func newHTTPClient(insecureHosts map[string]bool) *httpClients {
	base := func(insecure bool) *http.Client {
		return &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				MaxIdleConns:          50,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				ForceAttemptHTTP2:     true,
				TLSClientConfig:       &tls.Config{InsecureSkipVerify: insecure},
			},
			Timeout: 30 * time.Second,
		}
	}
	return &httpClients{secure: base(false), insecure: base(true)}
}

// clientFor returns the insecure-TLS transport only for hosts explicitly
// allow-listed; every other host verifies certificates normally.
func (c *Client) clientFor(host string) *http.Client {
	if c.insecureTLS[host] {
		return c.httpClients.insecure
	}
	return c.httpClients.secure
}
