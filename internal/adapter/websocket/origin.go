package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
)

// NewCheckOrigin returns the upgrader's CheckOrigin for the live endpoint.
// It allows empty origins (non-browser clients), the app's own origin
// (derived from appURL) and any extra allowed origins. When isDevelopment
// is true, localhost origins are additionally allowed so a frontend dev
// server on another port can connect.
func NewCheckOrigin(appURL string, isDevelopment bool, allowed ...string) func(r *http.Request) bool {
	origins := map[string]struct{}{}
	for _, raw := range append([]string{appURL}, allowed...) {
		if o := extractOrigin(raw); o != "" {
			origins[o] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		if origin == "" {
			return true
		}

		if _, ok := origins[origin]; ok {
			return true
		}

		if isDevelopment && isLocalhostOrigin(origin) {
			return true
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
