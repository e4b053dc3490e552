// Package httpapi implements the generic JSON-over-HTTPS provider adapter.
// Provider-specific payload semantics stay out of this package: responses
// are surfaced as raw JSON plus best-effort normalized records, and the
// adapter's job is transport, pacing and rate-limit detection.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"finfeed/pkg/provider"
)

const (
	defaultHTTPTimeout   = 10 * time.Second
	defaultRatePerMinute = 60
)

func init() {
	provider.RegisterAdapter("httpapi", func(name string, cfg *provider.ProviderConfig) (provider.Adapter, error) {
		return New(name, cfg)
	})
}

// Adapter fetches one endpoint of one provider per call. Instances are safe
// for concurrent use; the limiter paces requests across all callers.
type Adapter struct {
	name         string
	baseURL      string
	endpoints    map[string]string
	authHeader   string
	quotaMarkers []string
	httpClient   *http.Client
	limiter      *rate.Limiter
}

// Option customises an Adapter.
type Option func(*Adapter)

// WithHTTPClient injects a custom http.Client (used by recorded tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(a *Adapter) {
		if hc != nil {
			a.httpClient = hc
		}
	}
}

// New builds an adapter from provider configuration.
func New(name string, cfg *provider.ProviderConfig, opts ...Option) (*Adapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("httpapi %s: base_url is required", name)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = defaultRatePerMinute
	}
	a := &Adapter{
		name:         name,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		endpoints:    cfg.Endpoints,
		authHeader:   cfg.AuthHeader,
		quotaMarkers: cfg.QuotaMarkers,
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(rate.Limit(float64(perMinute)/60), 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name returns the configured provider name.
func (a *Adapter) Name() string { return a.name }

// Fetch performs one paced GET against the endpoint named in the request.
// A 429 status or a configured quota marker in the body maps to
// provider.ErrRateLimited; other non-2xx statuses become StatusError for
// classification upstream.
func (a *Adapter) Fetch(ctx context.Context, req provider.Request) (*provider.Payload, error) {
	path, ok := a.endpoints[req.Endpoint]
	if !ok {
		return nil, &provider.StatusError{Provider: a.name, Status: http.StatusBadRequest,
			Body: fmt.Sprintf("endpoint %q not configured", req.Endpoint)}
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	target, err := a.buildURL(path, req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", a.name, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if a.authHeader != "" && req.Credential != "" {
		httpReq.Header.Set(a.authHeader, req.Credential)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w", a.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", a.name, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%s: http 429: %w", a.name, provider.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &provider.StatusError{Provider: a.name, Status: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	if a.isQuotaBody(body) {
		return nil, fmt.Errorf("%s: quota message in body: %w", a.name, provider.ErrRateLimited)
	}

	records := normalizeRecords(a.name, req, body)
	return &provider.Payload{Records: records, Raw: json.RawMessage(body)}, nil
}

func (a *Adapter) buildURL(path string, req provider.Request) (string, error) {
	path = strings.ReplaceAll(path, "{ticker}", url.PathEscape(req.Ticker))
	u, err := url.Parse(a.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("%s: parse url: %w", a.name, err)
	}
	q := u.Query()
	for k, v := range req.Params {
		q.Set(k, v)
	}
	if a.authHeader == "" && req.Credential != "" {
		q.Set("apikey", req.Credential)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Providers that always answer 200 signal quota exhaustion in the message
// body instead; every marker is matched case-insensitively.
func (a *Adapter) isQuotaBody(body []byte) bool {
	if len(a.quotaMarkers) == 0 {
		return false
	}
	lower := strings.ToLower(string(body))
	for _, marker := range a.quotaMarkers {
		if marker == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
