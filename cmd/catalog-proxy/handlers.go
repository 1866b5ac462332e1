package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/catalog-proxy/pkg/cache"
	"github.com/Sternrassler/catalog-proxy/pkg/product"
	"github.com/Sternrassler/catalog-proxy/pkg/search"
)

// Searcher is the subset of *search.Service the handlers use.
type Searcher interface {
	ListProducts(ctx context.Context, req search.ListRequest) (search.Listing, error)
	Autocomplete(ctx context.Context, query, prefix string) ([]string, error)
	TopKByField(ctx context.Context, req search.TopKRequest) ([]product.Product, error)
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "Catalog proxy running.")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports ready once Redis answers, or always when the proxy
// runs without Redis.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := redisClient.Ping(ctx).Err(); err != nil {
				hlog.FromRequest(r).Warn().Err(err).Msg("Readiness check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, "Redis unavailable")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "Ready")
	}
}

// listHandler serves GET /buscar.
func listHandler(svc Searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		req := search.ListRequest{
			Query:    q.Get("produto"),
			Order:    cache.ParseOrder(queryDefault(q.Get("ordem"), "asc")),
			Page:     intParam(q.Get("pagina"), 1) - 1,
			PageSize: intParam(q.Get("itensPorPagina"), 15),
			Brand:    q.Get("marca"),
		}

		listing, err := svc.ListProducts(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, listing)
	}
}

// autocompleteHandler serves GET /autocomplete.
func autocompleteHandler(svc Searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		suggestions, err := svc.Autocomplete(r.Context(), q.Get("produto"), strings.TrimSpace(q.Get("prefix")))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, suggestions)
	}
}

// topKHandler serves GET /heap. criterio and modo=maior|menor are accepted
// as aliases for key and largest.
func topKHandler(svc Searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		field := strings.TrimSpace(q.Get("key"))
		if field == "" {
			field = strings.TrimSpace(q.Get("criterio"))
		}

		largest := true
		if v := q.Get("largest"); v != "" {
			largest = strings.EqualFold(strings.TrimSpace(v), "true")
		} else if modo := strings.ToLower(strings.TrimSpace(q.Get("modo"))); modo != "" {
			largest = modo != "menor"
		}

		items, err := svc.TopKByField(r.Context(), search.TopKRequest{
			Query:   q.Get("produto"),
			K:       intParam(q.Get("k"), 5),
			Field:   field,
			Largest: largest,
			Brand:   q.Get("marca"),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, items)
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, search.ErrMissingQuery):
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, search.ErrServiceUnavailable):
		hlog.FromRequest(r).Error().Err(err).Msg("Token unavailable")
		writeJSON(w, r, http.StatusServiceUnavailable, errorResponse{Error: search.ErrServiceUnavailable.Error()})
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("Request failed")
		writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "Internal server error", Message: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Encode response failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// intParam parses s as an int, falling back to def when empty or invalid.
func intParam(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func queryDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
