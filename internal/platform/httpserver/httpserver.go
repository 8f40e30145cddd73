// Package httpserver builds the API's http.Server. Timeouts are tuned for
// chat completion requests, which can hold a connection for tens of seconds;
// per-request deadlines are enforced by the router's timeout middleware.
package httpserver

import (
	"net/http"
	"time"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 2 * time.Minute
)

// New returns a server ready for ListenAndServe. Shutdown is the caller's
// responsibility.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
}
