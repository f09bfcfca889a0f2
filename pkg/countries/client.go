package countries

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/orneryd/capitalroutes/pkg/metrics"
)

// DefaultTimeout bounds a single API request.
const DefaultTimeout = 30 * time.Second

// Client fetches country lists. There is no retry: a failed request is
// returned to the caller as is.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      Cache
	logger     *zap.Logger
	metrics    *metrics.Collector
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithCache enables response caching.
func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithLogger sets the logger used to narrate requests.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records request counts on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the request URL for a query. The name is path-escaped, so
// "South-Eastern Asia" becomes "South-Eastern%20Asia".
func (c *Client) URL(kind, name string) string {
	return c.baseURL + "/" + kind + "/" + url.PathEscape(name)
}

// Fetch returns the countries matching a region or subregion name.
func (c *Client) Fetch(ctx context.Context, kind, name string) ([]Country, error) {
	if kind != KindRegion && kind != KindSubregion {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	u := c.URL(kind, name)
	c.logger.Info("fetching", zap.String("url", u))

	body, err := c.get(ctx, kind, u)
	if err != nil {
		return nil, err
	}

	var out []Country
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", u, err)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, kind, u string) ([]byte, error) {
	if c.cache != nil {
		body, ok, err := c.cache.Get(ctx, u)
		switch {
		case err != nil:
			c.logger.Warn("cache lookup failed", zap.String("url", u), zap.Error(err))
		case ok:
			c.logger.Debug("cache hit", zap.String("url", u))
			c.metrics.CacheHit()
			return body, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", u, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.HTTPRequest(kind, 0)
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()
	c.metrics.HTTPRequest(kind, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: %w: %d", u, ErrHTTPStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", u, err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, u, body); err != nil {
			c.logger.Warn("cache store failed", zap.String("url", u), zap.Error(err))
		}
	}
	return body, nil
}
