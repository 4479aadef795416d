package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Well-known public mirror node endpoints.
const (
	MainnetBaseURL    = "https://mainnet-public.mirrornode.hedera.com/api/v1"
	TestnetBaseURL    = "https://testnet.mirrornode.hedera.com/api/v1"
	PreviewnetBaseURL = "https://previewnet.mirrornode.hedera.com/api/v1"
	LocalBaseURL      = "http://localhost:5551/api/v1"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultRate      = 20
	defaultBurst     = 10
	defaultPageLimit = 100
)

// DefaultCacheTTL is how long token info stays cached when WithCache gets
// no positive TTL.
const DefaultCacheTTL = 5 * time.Minute

// ErrNotFound is returned when the mirror node answers 404.
var ErrNotFound = errors.New("mirror: resource not found")

// StatusError is returned for any other unsuccessful response.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mirror: %s returned %d: %s", e.URL, e.StatusCode, e.Body)
}

// DefaultBaseURL maps a network name to its public mirror node.
func DefaultBaseURL(network string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(network)) {
	case "mainnet":
		return MainnetBaseURL, nil
	case "testnet", "":
		return TestnetBaseURL, nil
	case "previewnet":
		return PreviewnetBaseURL, nil
	case "local", "local-node", "localnode":
		return LocalBaseURL, nil
	default:
		return "", fmt.Errorf("mirror: no default endpoint for network %q", network)
	}
}

// ObserveFunc receives one sample per mirror request.
type ObserveFunc func(endpoint string, status int, elapsed time.Duration)

// Client talks to the mirror node REST API.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      Cache
	cacheTTL   time.Duration
	logger     *slog.Logger
	observe    ObserveFunc
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit caps outgoing requests per second. A non-positive rps
// disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCache caches immutable lookups such as token metadata.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver installs a per-request hook, typically a metrics recorder.
func WithObserver(fn ObserveFunc) Option {
	return func(c *Client) {
		c.observe = fn
	}
}

// NewClient builds a client rooted at baseURL, for example
// https://testnet.mirrornode.hedera.com/api/v1.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("mirror: base url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("mirror: invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("mirror: base url %q must be absolute", baseURL)
	}
	c := &Client{
		base:       parsed,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRate), defaultBurst),
		cacheTTL:   DefaultCacheTTL,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) endpoint(query url.Values, segments ...string) *url.URL {
	u := c.base.JoinPath(segments...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u
}

// resolveNext turns a links.next value (an absolute path on the same host)
// into a full URL.
func (c *Client) resolveNext(next string) (*url.URL, error) {
	ref, err := url.Parse(next)
	if err != nil {
		return nil, fmt.Errorf("mirror: invalid next link %q: %w", next, err)
	}
	return c.base.ResolveReference(ref), nil
}

func (c *Client) getJSON(ctx context.Context, u *url.URL, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("mirror: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(u, 0, started)
		return fmt.Errorf("mirror: request %s: %w", u.Path, err)
	}
	defer resp.Body.Close()
	c.record(u, resp.StatusCode, started)

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, u.Path)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, URL: u.Path, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("mirror: decode %s: %w", u.Path, err)
	}
	return nil
}

func (c *Client) record(u *url.URL, status int, started time.Time) {
	elapsed := time.Since(started)
	c.logger.Debug("mirror request",
		slog.String("path", u.Path),
		slog.Int("status", status),
		slog.Duration("elapsed", elapsed),
	)
	if c.observe != nil {
		c.observe(endpointLabel(c.base.Path, u.Path), status, elapsed)
	}
}

// endpointLabel keeps the first resource segment after the API root so that
// metrics do not explode with entity ids.
func endpointLabel(basePath, path string) string {
	rest := strings.TrimPrefix(path, basePath)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "/"
	}
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return "/" + parts[0]
	case 2:
		return "/" + parts[0] + "/{id}"
	default:
		return "/" + parts[0] + "/{id}/" + strings.Join(parts[2:], "/")
	}
}

// paginate follows links.next until max items are collected (max <= 0 means
// all pages). key names the array field of the page.
func paginate[T any](ctx context.Context, c *Client, first *url.URL, key string, max int) ([]T, error) {
	var out []T
	next := first
	for next != nil {
		var page map[string]json.RawMessage
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, err
		}
		if raw, ok := page[key]; ok {
			var items []T
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("mirror: decode %s: %w", key, err)
			}
			out = append(out, items...)
		}
		if max > 0 && len(out) >= max {
			return out[:max], nil
		}

		next = nil
		if raw, ok := page["links"]; ok {
			var links Links
			if err := json.Unmarshal(raw, &links); err != nil {
				return nil, fmt.Errorf("mirror: decode links: %w", err)
			}
			if links.Next != nil && *links.Next != "" {
				resolved, err := c.resolveNext(*links.Next)
				if err != nil {
					return nil, err
				}
				next = resolved
			}
		}
	}
	return out, nil
}
