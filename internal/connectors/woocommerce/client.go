package woocommerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
)

const (
	// PageSize is the per_page value used when walking the catalog.
	PageSize = 100

	apiPath = "/wp-json/wc/v3"
)

// ErrMissingCredentials is returned when a project has no store URL configured.
var ErrMissingCredentials = errors.New("woocommerce: store url is required")

type Options struct {
	StoreURL       string
	ConsumerKey    string
	ConsumerSecret string
	// PageDelay is the minimum spacing between two page requests.
	PageDelay time.Duration
	// Timeout bounds each individual request, not the whole fetch.
	Timeout time.Duration
}

type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	store   string
	logger  *logger.Logger
}

func NewClient(opts Options, logger *logger.Logger) (*Client, error) {
	store := strings.TrimRight(strings.TrimSpace(opts.StoreURL), "/")
	if store == "" {
		return nil, ErrMissingCredentials
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(store+apiPath).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "catalogsync/1.0")

	if opts.ConsumerKey != "" {
		httpClient.SetBasicAuth(opts.ConsumerKey, opts.ConsumerSecret)
	}

	limit := rate.Inf
	if opts.PageDelay > 0 {
		limit = rate.Every(opts.PageDelay)
	}

	return &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
		store:   store,
		logger:  logger,
	}, nil
}

// GetProducts fetches one page of published products.
func (c *Client) GetProducts(ctx context.Context, page, perPage int) ([]Product, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"page":     strconv.Itoa(page),
			"per_page": strconv.Itoa(perPage),
			"status":   "publish",
		}).
		Get("/products")
	metrics.RemoteRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RemoteRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	metrics.RemoteRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode())).Inc()

	if resp.IsError() {
		return nil, fmt.Errorf("API request failed: %d - %s", resp.StatusCode(), truncate(resp.String(), 300))
	}

	var products []Product
	if err := json.Unmarshal(resp.Body(), &products); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return products, nil
}

// FetchAll walks the catalog page by page until a page comes back empty or short.
// Any failing page aborts the walk; no partial catalog is returned.
func (c *Client) FetchAll(ctx context.Context) ([]Product, error) {
	var all []Product

	for page := 1; ; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}

		batch, err := c.GetProducts(ctx, page, PageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}

		c.logger.Debug("Fetched page %d from %s: %d products", page, c.store, len(batch))

		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
		if len(batch) < PageSize {
			break
		}
	}

	c.logger.Info("Fetched %d products from %s", len(all), c.store)
	return all, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
