// Package remote is the REST client for the remote work tracker.
//
// Responses use the {"data": ...} envelope; list endpoints paginate with
// limit/offset. Transport retries come from go-retryablehttp and a token
// bucket keeps the client under the configured request ceiling.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/randalmurphal/tasksync/internal/config"
	syncerrors "github.com/randalmurphal/tasksync/internal/errors"
)

const (
	userAgent = "tasksync/1.0"
	pageSize  = 100
)

// ClientConfig holds the configuration for connecting to the remote API.
type ClientConfig struct {
	// BaseURL is the API root (e.g., "https://app.asana.com/api/1.0").
	BaseURL string
	// Token is the personal access token sent as a bearer token.
	Token string
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
	// MaxRetries is the number of retries after a failed attempt.
	MaxRetries int
	// RequestsPerMinute caps the request rate. Zero disables the cap.
	RequestsPerMinute int
	// Logger receives retry diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// ConfigFrom builds a ClientConfig from the remote section of the config.
func ConfigFrom(cfg config.RemoteConfig, token string, logger *slog.Logger) ClientConfig {
	return ClientConfig{
		BaseURL:           cfg.BaseURL,
		Token:             token,
		Timeout:           cfg.Timeout,
		MaxRetries:        cfg.MaxRetries,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Logger:            logger,
	}
}

// Client talks to the remote API.
type Client struct {
	http    *retryablehttp.Client
	limiter *rate.Limiter
	baseURL string
	token   string
	logger  *slog.Logger
}

// NewClient creates a new remote API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote base URL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("remote API token is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hc := retryablehttp.NewClient()
	hc.RetryMax = cfg.MaxRetries
	hc.RetryWaitMin = 500 * time.Millisecond
	hc.RetryWaitMax = 30 * time.Second
	hc.Logger = logger
	// Hand the last response back so status mapping sees it.
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if cfg.Timeout > 0 {
		hc.HTTPClient.Timeout = cfg.Timeout
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &Client{
		http:    hc,
		limiter: rate.NewLimiter(limit, 1),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		logger:  logger,
	}, nil
}

// do performs one API call and returns the parsed response body. Non-2xx
// statuses are mapped onto the sync error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (gjson.Result, error) {
	res, _, err := c.send(ctx, method, path, query, body)
	return res, err
}

// send is do that also returns the response headers.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any) (gjson.Result, http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(map[string]any{"data": body})
		if err != nil {
			return gjson.Result{}, nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return gjson.Result{}, nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return gjson.Result{}, nil, ctx.Err()
		}
		return gjson.Result{}, nil, syncerrors.ErrRemoteUnavailable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, nil, syncerrors.ErrRemoteUnavailable(fmt.Errorf("read %s %s: %w", method, path, err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return gjson.ParseBytes(data), resp.Header, nil
	}
	return gjson.Result{}, nil, statusError(resp.StatusCode, path, data)
}

// get fetches a single object.
func (c *Client) get(ctx context.Context, path string, query url.Values) (gjson.Result, error) {
	res, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	return res.Get("data"), nil
}

// list fetches every page of a collection endpoint.
func (c *Client) list(ctx context.Context, path string, query url.Values) ([]gjson.Result, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("limit", fmt.Sprint(pageSize))

	var all []gjson.Result
	for {
		res, err := c.do(ctx, http.MethodGet, path, q, nil)
		if err != nil {
			return nil, err
		}
		all = append(all, res.Get("data").Array()...)

		offset := nextOffset(res)
		if offset == "" {
			break
		}
		q.Set("offset", offset)
	}
	return all, nil
}

// statusError maps an HTTP failure onto a SyncError.
func statusError(status int, path string, body []byte) error {
	msg := errorMessage(body)
	switch {
	case status == http.StatusNotFound:
		return syncerrors.ErrRemoteNotFound(path)
	case status == http.StatusForbidden:
		return syncerrors.ErrRemoteForbidden(path)
	case status == http.StatusPreconditionFailed:
		if fresh := gjson.GetBytes(body, "sync").String(); fresh != "" {
			return syncerrors.ErrCursorExpired(path, fresh)
		}
		return fmt.Errorf("remote %s: status %d: %s", path, status, msg)
	case status == http.StatusTooManyRequests || status >= 500:
		return syncerrors.ErrRemoteUnavailable(fmt.Errorf("remote %s: status %d: %s", path, status, msg))
	default:
		return fmt.Errorf("remote %s: status %d: %s", path, status, msg)
	}
}
