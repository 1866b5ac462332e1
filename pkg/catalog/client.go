// Package catalog is the HTTP client for the upstream product catalog API.
package catalog

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/Sternrassler/catalog-proxy/pkg/logging"
	"github.com/Sternrassler/catalog-proxy/pkg/product"
)

// QueryPath is the product query endpoint, relative to the base URL.
const QueryPath = "/superbusca/api/integracao/catalogo/produtos/query"

// Prometheus metrics for upstream catalog calls.
var (
	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_upstream_requests_total",
		Help: "Total catalog API requests by status",
	}, []string{"status"})

	upstreamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_upstream_request_duration_seconds",
		Help:    "Catalog API request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20},
	})

	upstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_upstream_errors_total",
		Help: "Total catalog API errors by class",
	}, []string{"class"})

	upstreamRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_upstream_retries_total",
		Help: "Total catalog API retry attempts by error class",
	}, []string{"error_class"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the catalog API root without trailing slash.
	BaseURL string

	// HTTPClient overrides the default client. Timeout and InsecureTLS are
	// ignored when it is set.
	HTTPClient *http.Client

	// Timeout bounds a single attempt (default 20s).
	Timeout time.Duration

	// InsecureTLS disables certificate verification.
	InsecureTLS bool

	Retry RetryConfig
}

// Client queries the catalog API.
type Client struct {
	httpClient *http.Client
	queryURL   string
	retry      RetryConfig
	logger     zerolog.Logger
}

// New creates a catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureTLS {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // staging endpoints
		}
		httpClient = &http.Client{Timeout: timeout, Transport: transport}
	}

	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}

	return &Client{
		httpClient: httpClient,
		queryURL:   strings.TrimRight(cfg.BaseURL, "/") + QueryPath,
		retry:      retry,
		logger:     logging.NewLogger("catalog-client"),
	}, nil
}

type productFilter struct {
	Name string `json:"nomeProduto"`
}

type queryRequest struct {
	Filter   productFilter `json:"produtoFiltro"`
	Page     int           `json:"pagina"`
	PageSize int           `json:"itensPorPagina"`
}

// FetchProducts returns one page of products whose name matches name.
// A response without pageResult.data yields an empty slice.
func (c *Client) FetchProducts(ctx context.Context, token, name string, page, pageSize int) ([]product.Product, error) {
	payload, err := json.Marshal(queryRequest{
		Filter:   productFilter{Name: name},
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	var body []byte
	err = retryWithBackoff(ctx, c.retry, c.logger, func() error {
		body, err = c.post(ctx, token, payload)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		upstreamErrors.WithLabelValues("malformed").Inc()
		return nil, ErrMalformedResponse
	}

	data := gjson.GetBytes(body, "pageResult.data")
	if !data.IsArray() {
		c.logger.Debug().Str("query", name).Msg("Catalog response without pageResult.data")
		return []product.Product{}, nil
	}

	var raws [][]byte
	data.ForEach(func(_, value gjson.Result) bool {
		raws = append(raws, []byte(value.Raw))
		return true
	})

	products := product.FromBatch(raws)
	c.logger.Debug().
		Str("query", name).
		Int("page", page).
		Int("count", len(products)).
		Msg("Catalog page fetched")
	return products, nil
}

// post performs a single attempt and returns the body of a 2xx response.
func (c *Client) post(ctx context.Context, token string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.queryURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	upstreamDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		upstreamRequests.WithLabelValues("error").Inc()
		upstreamErrors.WithLabelValues(string(ErrorClassNetwork)).Inc()
		if ctx.Err() != nil {
			// Caller gave up; nothing to retry.
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		return nil, &UpstreamError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	upstreamRequests.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		upstreamErrors.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response",
			Err:        err,
		}
	}

	if class := classifyStatus(resp.StatusCode); class != "" {
		upstreamErrors.WithLabelValues(string(class)).Inc()
		return nil, statusError(resp.StatusCode, truncate(string(body), 200))
	}

	return body, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
