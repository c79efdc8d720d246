package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"
)

// newUpstreamProxy returns a reverse proxy to the timesheet API. Requests keep
// their path and headers, including Authorization, so the upstream performs
// its own authentication. The client's Accept-Encoding is dropped: the
// transport then negotiates gzip itself and hands back a decoded body, which
// is what the audit middleware captures.
func newUpstreamProxy(rawURL string) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server.upstream_url: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" || target.Host == "" {
		return nil, fmt.Errorf("invalid server.upstream_url: %q must be an absolute http(s) URL", rawURL)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		director(r)
		r.Header.Del("Accept-Encoding")
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		slog.Error("upstream request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		if gw, ok := w.(gin.ResponseWriter); ok && gw.Written() {
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"success":false,"message":"Upstream service unavailable"}`))
	}
	return proxy, nil
}
