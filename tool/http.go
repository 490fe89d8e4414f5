package tool

import (
	"net"
	"net/http"
	"time"
)

var (
	DefaultTimeout       = 30 * time.Second
	ConnectionHttpClient *http.Client
)

func init() {
	ConnectionHttpClient = NewHTTPClient(DefaultTimeout)
}

// NewHTTPClient creates the client used for attachment downloads and cloud calls.
// A zero timeout leaves the deadline to the request context.
func NewHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   DefaultTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func GetHttpClient() *http.Client {
	return ConnectionHttpClient
}
