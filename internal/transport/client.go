package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the production endpoint of the USGS M2M API.
const DefaultBaseURL = "https://m2m.cr.usgs.gov/api/api/json/stable/"

// Client is the interface for the HTTP transport layer. All privileged API
// traffic and all archive transfers go through this interface.
type Client interface {
	// Post sends a JSON payload to an API endpoint and returns the data
	// field of the response envelope.
	Post(ctx context.Context, endpoint string, payload any) (json.RawMessage, error)

	// Fetch performs a single streaming GET against a resolved download
	// URL. It does not retry; callers own the retry policy for transfers.
	Fetch(ctx context.Context, rawURL string) (*FetchResponse, error)

	// SetToken attaches an auth token to subsequent Post requests.
	SetToken(token string)

	// ClearToken removes the auth token.
	ClearToken()
}

// FetchResponse is a streaming response for an archive transfer.
type FetchResponse struct {
	// Body streams the archive bytes. The caller must close it.
	Body io.ReadCloser

	// ContentLength is the advertised size, or -1 if unknown.
	ContentLength int64

	// Filename is taken from the Content-Disposition header, if present.
	Filename string
}

// Options configures the HTTP client.
type Options struct {
	// BaseURL is the API root. Default: DefaultBaseURL.
	BaseURL string

	// Timeout for individual requests.
	// Default: 30s
	Timeout time.Duration

	// RetryAttempts is the maximum number of retry attempts for transient
	// failures on API calls. Zero applies the default; negative disables
	// retries.
	// Default: 1
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 1s
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 30s
	RetryMaxBackoff time.Duration

	// RequestsPerSecond caps the API request rate (0 = unlimited).
	RequestsPerSecond float64

	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 16
	MaxIdleConnsPerHost int
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		BaseURL:             DefaultBaseURL,
		Timeout:             30 * time.Second,
		RetryAttempts:       1,
		RetryBackoff:        time.Second,
		RetryMaxBackoff:     30 * time.Second,
		MaxIdleConnsPerHost: 16,
	}
}

// envelope is the fixed response shape of every M2M API endpoint.
type envelope struct {
	RequestID    int             `json:"requestId"`
	Version      string          `json:"version"`
	Data         json.RawMessage `json:"data"`
	ErrorCode    string          `json:"errorCode"`
	ErrorMessage string          `json:"errorMessage"`
}

// DefaultClient is the default implementation of the Client interface,
// backed by net/http.
type DefaultClient struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter

	mu    sync.RWMutex
	token string
}

var _ Client = (*DefaultClient)(nil)

// NewClient creates a new DefaultClient with the given options. Zero-valued
// fields fall back to DefaultOptions.
func NewClient(opts Options) *DefaultClient {
	def := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = def.RetryAttempts
	} else if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = def.RetryBackoff
	}
	if opts.RetryMaxBackoff <= 0 {
		opts.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = def.MaxIdleConnsPerHost
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	c := &DefaultClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts: opts,
	}

	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return c
}

// SetToken attaches an auth token to subsequent Post requests.
func (c *DefaultClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ClearToken removes the auth token.
func (c *DefaultClient) ClearToken() {
	c.SetToken("")
}

// Post sends payload to the endpoint as JSON and returns the data field of
// the response envelope. Transient failures (network, 5xx, rate limit) are
// retried with exponential backoff up to RetryAttempts; authentication and
// authorization failures surface immediately.
func (c *DefaultClient) Post(ctx context.Context, endpoint string, payload any) (json.RawMessage, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", endpoint, err)
		}
	}

	requestURL, err := url.JoinPath(c.opts.BaseURL, endpoint)
	if err != nil {
		return nil, fmt.Errorf("build %s url: %w", endpoint, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying api request", "endpoint", endpoint, "attempt", attempt, "err", lastErr)
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		data, err := c.post(ctx, requestURL, endpoint, body)
		if err == nil {
			return data, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%s failed after %d attempts: %w", endpoint, c.opts.RetryAttempts+1, lastErr)
}

// post performs a single request/response exchange.
func (c *DefaultClient) post(ctx context.Context, requestURL, endpoint string, body []byte) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("X-Auth-Token", c.token)
	}
	c.mu.RUnlock()

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: %d %s", ErrServer, resp.StatusCode, resp.Status)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %v", ErrService, endpoint, err)
	}

	if serr := codeToError(env.ErrorCode); serr != nil {
		slog.Error("api error", "endpoint", endpoint, "code", env.ErrorCode, "msg", env.ErrorMessage)
		return nil, fmt.Errorf("%w: %s: %s", serr, env.ErrorCode, env.ErrorMessage)
	}

	// A non-2xx status without an envelope error code still means failure.
	if err := checkStatusCode(resp.StatusCode); err != nil {
		return nil, err
	}

	return env.Data, nil
}

// Fetch performs a single streaming GET against a resolved download URL.
// Download URLs are pre-signed by the service, so no auth token is attached.
func (c *DefaultClient) Fetch(ctx context.Context, rawURL string) (*FetchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Archive transfers are long-lived; the per-request timeout applies to
	// headers only, while ctx governs the body stream.
	client := &http.Client{Transport: c.client.Transport}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d %s", ErrServer, resp.StatusCode, resp.Status)
	}
	if err := checkStatusCode(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return &FetchResponse{
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
		Filename:      dispositionFilename(resp.Header.Get("Content-Disposition")),
	}, nil
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *DefaultClient) backoff(ctx context.Context, attempt int) error {
	backoff := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > c.opts.RetryMaxBackoff {
		backoff = c.opts.RetryMaxBackoff
	}

	// Add jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrAuth
	case code == http.StatusTooManyRequests:
		return ErrRateLimit
	default:
		return fmt.Errorf("%w: unexpected status code %d", ErrService, code)
	}
}

// dispositionFilename extracts the filename from a Content-Disposition
// header value, or returns "".
func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return strings.Trim(params["filename"], `"`)
}
