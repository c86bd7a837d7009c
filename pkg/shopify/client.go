// Package shopify fetches pages of store resources from the Shopify Admin
// REST API.
package shopify

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/models"
)

const (
	// DefaultAPIVersion is used when no version is configured.
	DefaultAPIVersion = "2024-01"

	accessTokenHeader = "X-Shopify-Access-Token"
	userAgent         = "shopsync/1.0"
)

// Config configures the Shopify client.
type Config struct {
	ShopName    string `mapstructure:"shop_name" yaml:"shop_name"`
	AccessToken string `mapstructure:"access_token" yaml:"access_token"`
	APIVersion  string `mapstructure:"api_version" yaml:"api_version"`
	// BaseURL overrides https://{ShopName}.myshopify.com.
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RateLimitPerSec float64       `mapstructure:"rate_limit_per_sec" yaml:"rate_limit_per_sec"`
	RateBurst       int           `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// Client implements paginator.Fetcher against the Admin REST API.
type Client struct {
	config     Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	mu         sync.Mutex
	pauseUntil time.Time
}

// NewClient creates a client. It does not perform any request.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, synerrors.New(synerrors.ErrorTypeConfig, "shopify access token is required")
	}
	if cfg.BaseURL == "" && cfg.ShopName == "" {
		return nil, synerrors.New(synerrors.ErrorTypeConfig, "shopify shop name is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = 2 // REST Admin API leaky bucket refill rate
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	root := cfg.BaseURL
	if root == "" {
		root = "https://" + cfg.ShopName + ".myshopify.com"
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		logger.Warn("failed to configure HTTP/2", zap.Error(err))
	}

	return &Client{
		config:  cfg,
		baseURL: strings.TrimRight(root, "/") + "/admin/api/" + cfg.APIVersion,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateBurst),
		logger:  logger.With(zap.String("component", "shopify_client")),
	}, nil
}

// Endpoint returns the REST collection backing a resource.
func Endpoint(resource models.Resource) string {
	if resource == models.ResourceInventory {
		return "inventory_items"
	}
	return string(resource)
}

// CheckAuth verifies the access token against shop.json.
func (c *Client) CheckAuth(ctx context.Context) error {
	resp, err := c.do(ctx, c.baseURL+"/shop.json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// FetchPage fetches one page of resource.
func (c *Client) FetchPage(ctx context.Context, resource models.Resource, req models.PageRequest) (models.Page, error) {
	endpoint := Endpoint(resource)
	pageURL := c.baseURL + "/" + endpoint + ".json?" + encodeQuery(req).Encode()

	c.logger.Debug("fetching page",
		zap.String("resource", resource.String()),
		zap.Int64("since_id", req.SinceID),
		zap.Bool("page_info", req.PageInfo != ""))

	resp, err := c.do(ctx, pageURL)
	if err != nil {
		return models.Page{}, err
	}
	defer resp.Body.Close()

	var envelope map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return models.Page{}, synerrors.Wrap(err, synerrors.ErrorTypeTransport, "failed to decode response").
			WithDetail("resource", resource.String())
	}

	records, err := decodeRecords(envelope[endpoint])
	if err != nil {
		return models.Page{}, synerrors.Wrap(err, synerrors.ErrorTypeMapping, "unexpected record envelope").
			WithDetail("resource", resource.String())
	}

	return models.Page{
		Records: records,
		Next:    NextPageInfo(resp.Header.Get("Link")),
	}, nil
}

// encodeQuery translates a page request into query parameters. The API
// rejects filters alongside page_info, so a continuation request carries
// only limit and the token.
func encodeQuery(req models.PageRequest) url.Values {
	q := url.Values{}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.PageInfo != "" {
		q.Set("page_info", req.PageInfo)
		return q
	}
	if !req.UpdatedAtMin.IsZero() {
		q.Set("updated_at_min", req.UpdatedAtMin.UTC().Format(time.RFC3339))
	}
	if req.Order != "" {
		q.Set("order", req.Order)
	}
	if req.SinceID > 0 {
		q.Set("since_id", strconv.FormatInt(req.SinceID, 10))
	}
	return q
}

type recordHeader struct {
	ID        int64      `json:"id"`
	UpdatedAt *time.Time `json:"updated_at"`
}

func decodeRecords(raw json.RawMessage) ([]models.Record, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}

	out := make([]models.Record, 0, len(items))
	for _, item := range items {
		var h recordHeader
		if err := json.Unmarshal(item, &h); err != nil {
			return nil, err
		}
		rec := models.Record{ID: h.ID, Raw: item}
		if h.UpdatedAt != nil {
			rec.UpdatedAt = h.UpdatedAt.UTC()
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, target string) (*http.Response, error) {
	if err := c.waitTurn(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, synerrors.Wrap(err, synerrors.ErrorTypeInternal, "failed to create HTTP request")
	}
	req.Header.Set(accessTokenHeader, c.config.AccessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, synerrors.Wrap(err, synerrors.ErrorTypeTransport, "HTTP request failed")
	}

	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return nil, c.statusError(resp, strings.TrimSpace(string(body)))
}

func (c *Client) statusError(resp *http.Response, body string) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return synerrors.Newf(synerrors.ErrorTypeAuthentication,
			"shopify rejected credentials: %d %s", resp.StatusCode, body).
			WithDetail("status", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := retryAfter(resp.Header.Get("Retry-After"))
		c.pause(wait)
		return synerrors.Newf(synerrors.ErrorTypeRateLimit, "shopify throttled request, retry after %s", wait).
			WithDetail("status", resp.StatusCode)
	case resp.StatusCode >= 500:
		return synerrors.Newf(synerrors.ErrorTypeTransport,
			"shopify returned status %d: %s", resp.StatusCode, body).
			WithDetail("status", resp.StatusCode)
	default:
		return synerrors.Newf(synerrors.ErrorTypeValidation,
			"shopify returned status %d: %s", resp.StatusCode, body).
			WithDetail("status", resp.StatusCode)
	}
}

func (c *Client) pause(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(c.pauseUntil) {
		c.pauseUntil = until
	}
}

func (c *Client) waitTurn(ctx context.Context) error {
	c.mu.Lock()
	wait := time.Until(c.pauseUntil)
	c.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return c.limiter.Wait(ctx)
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 2 * time.Second
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 2 * time.Second
}
