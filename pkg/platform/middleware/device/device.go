// Package device extracts a coarse device description from the User-Agent
// header. Chat and audit logs use it to attribute activity to a client type.
package device

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mssola/useragent"
)

// Info is the parsed device description.
type Info struct {
	Browser string
	Version string
	OS      string
	Mobile  bool
	Bot     bool
}

// Label renders the device as a short human-readable string.
func (i Info) Label() string {
	if i.Bot {
		return "bot"
	}
	if i.Browser == "" {
		return "unknown"
	}
	label := i.Browser
	if i.Version != "" {
		label += " " + i.Version
	}
	if i.OS != "" {
		label = fmt.Sprintf("%s on %s", label, i.OS)
	}
	if i.Mobile {
		label += " (mobile)"
	}
	return label
}

type contextKeyDevice struct{}

// GetInfo retrieves the parsed device info from the context.
func GetInfo(ctx context.Context) (Info, bool) {
	info, ok := ctx.Value(contextKeyDevice{}).(Info)
	return info, ok
}

// WithInfo injects device info into a context.
// Useful for handler tests that don't run the full middleware chain.
func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, contextKeyDevice{}, info)
}

// Extract parses the User-Agent header into the request context.
func Extract(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := useragent.New(r.Header.Get("User-Agent"))
		browser, version := ua.Browser()

		info := Info{
			Browser: browser,
			Version: version,
			OS:      ua.OS(),
			Mobile:  ua.Mobile(),
			Bot:     ua.Bot(),
		}
		next.ServeHTTP(w, r.WithContext(WithInfo(r.Context(), info)))
	})
}
