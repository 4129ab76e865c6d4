package httpclient

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"shipping-orchestrator/internal/core/logger"

	"go.uber.org/zap"
)

// ProxySettings contains optional outbound proxy configuration for adapters.
type ProxySettings struct {
	Enabled  bool
	Hostname string
	Port     int
	Username string
	Password string
}

// HasProxy returns true if proxy is enabled and configured.
func (p ProxySettings) HasProxy() bool {
	return p.Enabled && p.Hostname != "" && p.Port > 0
}

// FullURL returns the full proxy URL with credentials (for HTTP client).
func (p ProxySettings) FullURL() string {
	if !p.HasProxy() {
		return ""
	}
	if p.Username != "" && p.Password != "" {
		return fmt.Sprintf("http://%s:%s@%s:%d", p.Username, p.Password, p.Hostname, p.Port)
	}
	return fmt.Sprintf("http://%s:%d", p.Hostname, p.Port)
}

// LoggingRoundTripper captures request details for debugging.
type LoggingRoundTripper struct {
	// Proxied is the underlying RoundTripper to execute the request.
	Proxied http.RoundTripper
}

// RoundTrip executes the request and logs details.
func (lrt *LoggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	logger.Get().Debug("HTTP Request Started",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
	)

	resp, err := lrt.Proxied.RoundTrip(req)

	duration := time.Since(start)

	if err != nil {
		logger.Get().Error("HTTP Request Failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	logger.Get().Debug("HTTP Request Completed",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", duration),
	)

	return resp, nil
}

// NewClient returns an http.Client with logging middleware.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &LoggingRoundTripper{
			Proxied: http.DefaultTransport,
		},
		Timeout: timeout,
	}
}

// NewProxiedClient returns an http.Client routing through the given proxy
// when configured, with logging middleware. Falls back to NewClient when
// the proxy is disabled or the URL is invalid.
func NewProxiedClient(timeout time.Duration, settings ProxySettings) *http.Client {
	if !settings.HasProxy() {
		return NewClient(timeout)
	}

	proxyURL, err := url.Parse(settings.FullURL())
	if err != nil {
		logger.Get().Warn("Invalid proxy URL, using direct client", zap.Error(err))
		return NewClient(timeout)
	}

	return &http.Client{
		Transport: &LoggingRoundTripper{
			Proxied: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		},
		Timeout: timeout,
	}
}
