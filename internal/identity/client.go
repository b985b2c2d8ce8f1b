package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/Clark-Hu/universal-rate/internal/cache"
	"github.com/Clark-Hu/universal-rate/internal/metrics"
)

const (
	maxResponseBytes = 1 << 20
	maxErrorBody     = 512
)

// Options configures a provider adapter.
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Cache   cache.Cache
	Logger  zerolog.Logger
	// HTTPClient overrides the tuned default client; tests use it.
	HTTPClient *http.Client
}

// upstream is the HTTP and cache plumbing shared by the adapters.
type upstream struct {
	provider string
	baseURL  *url.URL
	client   *http.Client
	cache    cache.Cache
	logger   zerolog.Logger
	decorate func(req *http.Request)
}

func newUpstream(provider string, opts Options) (*upstream, error) {
	parsed, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse %s url: %w", provider, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse %s url: %q is not absolute", provider, opts.BaseURL)
	}
	client := opts.HTTPClient
	if client == nil {
		client = newHTTPClient(opts.Timeout)
	}
	c := opts.Cache
	if c == nil {
		c = cache.Nop{}
	}
	return &upstream{
		provider: provider,
		baseURL:  parsed,
		client:   client,
		cache:    c,
		logger:   opts.Logger.With().Str("provider", provider).Logger(),
	}, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// getJSON performs one GET and returns the parsed body. 404 maps to
// ErrNotFound, any other non-2xx to *UpstreamError.
func (u *upstream) getJSON(ctx context.Context, operation, path string, query url.Values) (gjson.Result, error) {
	endpoint := *u.baseURL
	endpoint.Path = u.baseURL.Path + path
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Accept", "application/json")
	if u.decorate != nil {
		u.decorate(req)
	}

	start := time.Now()
	resp, err := u.client.Do(req)
	metrics.UpstreamDuration.WithLabelValues(u.provider, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		u.observe(operation, "error")
		return gjson.Result{}, fmt.Errorf("%s %s: %w", u.provider, operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		u.observe(operation, "error")
		return gjson.Result{}, fmt.Errorf("%s %s: read body: %w", u.provider, operation, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if !gjson.ValidBytes(body) {
			u.observe(operation, "error")
			return gjson.Result{}, fmt.Errorf("%s %s: invalid json response", u.provider, operation)
		}
		u.observe(operation, "ok")
		return gjson.ParseBytes(body), nil
	case resp.StatusCode == http.StatusNotFound:
		u.observe(operation, "not_found")
		return gjson.Result{}, ErrNotFound
	default:
		u.observe(operation, "error")
		u.logger.Warn().Str("operation", operation).Int("status", resp.StatusCode).Msg("unexpected upstream status")
		return gjson.Result{}, &UpstreamError{Provider: u.provider, Status: resp.StatusCode, Body: truncateBody(body)}
	}
}

func (u *upstream) observe(operation, outcome string) {
	metrics.UpstreamRequests.WithLabelValues(u.provider, operation, outcome).Inc()
}

// cached reports a cache hit. Read failures are logged and count as a miss.
func (u *upstream) cached(ctx context.Context, key string, dst any) bool {
	hit, err := u.cache.Get(ctx, key, dst)
	if err != nil {
		u.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return false
	}
	return hit
}

func (u *upstream) store(ctx context.Context, key string, value any, ttl time.Duration) {
	if err := u.cache.Set(ctx, key, value, ttl); err != nil {
		u.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// normalizeUsername strips leading @ signs and surrounding space, lowercased.
func normalizeUsername(handle string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(handle), "@")))
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}

func isStatus(err error, status int) bool {
	var upErr *UpstreamError
	return errors.As(err, &upErr) && upErr.Status == status
}
