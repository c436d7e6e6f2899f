package services

import (
	"net"
	"time"
)

// SetRetryDelay shortens the publish backoff in tests.
func (m *MetricsService) SetRetryDelay(d time.Duration) {
	m.retryDelay = d
}

// SetListen replaces the function used to bind the web listener.
func (w *WebService) SetListen(listen func(network, address string) (net.Listener, error)) {
	w.listen = listen
}
