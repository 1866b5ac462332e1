// Package search implements the proxy's query operations on top of the
// catalog API: cached sorted listings, autocomplete and top-k selection.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/catalog-proxy/pkg/cache"
	"github.com/Sternrassler/catalog-proxy/pkg/catalog"
	"github.com/Sternrassler/catalog-proxy/pkg/logging"
	"github.com/Sternrassler/catalog-proxy/pkg/ordering"
	"github.com/Sternrassler/catalog-proxy/pkg/prefix"
	"github.com/Sternrassler/catalog-proxy/pkg/product"
	"github.com/Sternrassler/catalog-proxy/pkg/selection"
)

// TokenFetcher supplies bearer tokens for catalog calls.
type TokenFetcher interface {
	FetchToken(ctx context.Context) (string, error)
}

// ProductFetcher retrieves one page of products matching a name.
type ProductFetcher interface {
	FetchProducts(ctx context.Context, token, name string, page, pageSize int) ([]product.Product, error)
}

// tokenInvalidator is implemented by token sources that can drop a token
// the catalog rejected.
type tokenInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Config holds the fetch sizes used by each operation.
type Config struct {
	DefaultPageSize       int    // listing page size when none is given
	AutocompleteFetchSize int    // products fetched to build the prefix index
	AutocompleteLimit     int    // maximum suggestions returned
	TopKPageSize          int    // products fetched for top-k selection
	DefaultField          string // top-k field when none is given
}

// DefaultConfig returns the sizes the proxy serves with.
func DefaultConfig() Config {
	return Config{
		DefaultPageSize:       15,
		AutocompleteFetchSize: 1000,
		AutocompleteLimit:     5,
		TopKPageSize:          15,
		DefaultField:          "hp",
	}
}

// ListRequest describes a listing query. Page is zero-indexed.
type ListRequest struct {
	Query    string
	Order    cache.Order
	Page     int
	PageSize int
	Brand    string // optional; applied after the cache
}

// TopKRequest describes a top-k selection.
type TopKRequest struct {
	Query   string
	K       int
	Field   string
	Largest bool
	Brand   string // optional
}

// Service runs search operations. It is safe for concurrent use.
type Service struct {
	cfg      Config
	tokens   TokenFetcher
	products ProductFetcher
	listings *cache.Manager[Listing]
	logger   zerolog.Logger
}

// New creates a search service. A nil listings cache gets an unbounded one.
func New(cfg Config, tokens TokenFetcher, products ProductFetcher, listings *cache.Manager[Listing]) (*Service, error) {
	if tokens == nil {
		return nil, errors.New("token fetcher is required")
	}
	if products == nil {
		return nil, errors.New("product fetcher is required")
	}

	defaults := DefaultConfig()
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = defaults.DefaultPageSize
	}
	if cfg.AutocompleteFetchSize <= 0 {
		cfg.AutocompleteFetchSize = defaults.AutocompleteFetchSize
	}
	if cfg.AutocompleteLimit <= 0 {
		cfg.AutocompleteLimit = defaults.AutocompleteLimit
	}
	if cfg.TopKPageSize <= 0 {
		cfg.TopKPageSize = defaults.TopKPageSize
	}
	if cfg.DefaultField == "" {
		cfg.DefaultField = defaults.DefaultField
	}

	if listings == nil {
		var err error
		listings, err = cache.NewManager[Listing](cache.Config{})
		if err != nil {
			return nil, fmt.Errorf("create listing cache: %w", err)
		}
	}

	return &Service{
		cfg:      cfg,
		tokens:   tokens,
		products: products,
		listings: listings,
		logger:   logging.NewLogger("search"),
	}, nil
}

// ListProducts returns a sorted page of products matching req.Query.
//
// Listings are cached for cache.TTL under (query, order, page, size). A failed
// catalog fetch yields an empty listing that is not cached, so the next call
// retries upstream.
func (s *Service) ListProducts(ctx context.Context, req ListRequest) (Listing, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Listing{}, ErrMissingQuery
	}
	page := max(req.Page, 0)
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = s.cfg.DefaultPageSize
	}
	order := cache.ParseOrder(string(req.Order))

	key := cache.CacheKey{Query: query, Order: order, Page: page, PageSize: pageSize}
	logger := s.loggerFor(ctx)

	if listing, ok := s.listings.Get(key); ok {
		logger.Debug().Str("cache_key", key.String()).Msg("Listing served from cache")
		return listing.withBrand(req.Brand), nil
	}

	products, err := s.fetch(ctx, query, page, pageSize)
	if err != nil {
		if errors.Is(err, ErrServiceUnavailable) {
			return Listing{}, err
		}
		logger.Error().Err(err).Str("query", query).Int("page", page).Msg("Catalog fetch failed")
		return emptyListing(), nil
	}

	if len(products) >= 2 {
		products = ordering.Sort(products, order.Ascending())
	}
	listing := newListing(products)
	s.listings.Put(key, listing)

	logger.Debug().
		Str("cache_key", key.String()).
		Int("count", len(listing.Results)).
		Msg("Listing fetched and cached")
	return listing.withBrand(req.Brand), nil
}

// Autocomplete returns up to AutocompleteLimit lowercase product names that
// start with prefix, drawn from the first AutocompleteFetchSize matches of
// query. Results are never cached.
func (s *Service) Autocomplete(ctx context.Context, query, namePrefix string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrMissingQuery
	}
	if namePrefix == "" {
		return []string{}, nil
	}

	products, err := s.fetch(ctx, query, 0, s.cfg.AutocompleteFetchSize)
	if err != nil {
		if errors.Is(err, ErrServiceUnavailable) {
			return nil, err
		}
		s.loggerFor(ctx).Error().Err(err).Str("query", query).Msg("Catalog fetch failed")
		return []string{}, nil
	}

	if len(products) >= 2 {
		products = ordering.Sort(products, true)
	}
	return prefix.Build(products).SearchPrefix(namePrefix, s.cfg.AutocompleteLimit), nil
}

// TopKByField returns the req.K products with the largest (or smallest)
// value of req.Field among the first TopKPageSize matches of req.Query.
func (s *Service) TopKByField(ctx context.Context, req TopKRequest) ([]product.Product, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrMissingQuery
	}
	field := req.Field
	if field == "" {
		field = s.cfg.DefaultField
	}

	products, err := s.fetch(ctx, query, 0, s.cfg.TopKPageSize)
	if err != nil {
		if errors.Is(err, ErrServiceUnavailable) {
			return nil, err
		}
		s.loggerFor(ctx).Error().Err(err).Str("query", query).Msg("Catalog fetch failed")
		return []product.Product{}, nil
	}

	products = product.FilterByBrand(products, req.Brand)
	return selection.TopK(products, req.K, field, req.Largest), nil
}

// fetch obtains a token and one page of products. Token failures are
// wrapped in ErrServiceUnavailable; fetch failures are returned as is.
func (s *Service) fetch(ctx context.Context, query string, page, pageSize int) ([]product.Product, error) {
	token, err := s.tokens.FetchToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}

	products, err := s.products.FetchProducts(ctx, token, query, page, pageSize)
	if err != nil {
		if errors.Is(err, catalog.ErrUnauthorized) {
			s.invalidateToken(ctx)
		}
		return nil, err
	}
	return products, nil
}

func (s *Service) invalidateToken(ctx context.Context) {
	inv, ok := s.tokens.(tokenInvalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx); err != nil {
		s.loggerFor(ctx).Warn().Err(err).Msg("Token invalidation failed")
		return
	}
	s.loggerFor(ctx).Info().Msg("Rejected token dropped")
}

// loggerFor prefers the request-scoped logger carried by ctx.
func (s *Service) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		scoped := l.With().Str("component", "search").Logger()
		return &scoped
	}
	return &s.logger
}
