package network

import (
	"net/http"
	"time"
)

// DefaultHTTPTimeout bounds each outbound provider request.
const DefaultHTTPTimeout = 30 * time.Second

// Transport is the process-owned outbound HTTP client shared by all
// requestors. Created once at startup and closed at shutdown; addon
// implementations never see it directly.
type Transport struct {
	client *http.Client
}

// NewTransport builds the shared outbound client. Cookies are ignored
// entirely: providers authenticate per request via injected headers.
func NewTransport(timeout time.Duration) *Transport {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &Transport{
		client: &http.Client{
			Timeout: timeout,
			Jar:     nil,
		},
	}
}

// Client exposes the underlying HTTP client for callers outside the addon
// sandbox, such as OAuth token-endpoint exchanges.
func (t *Transport) Client() *http.Client {
	return t.client
}

// Close releases idle connections held by the transport.
func (t *Transport) Close() {
	t.client.CloseIdleConnections()
}
