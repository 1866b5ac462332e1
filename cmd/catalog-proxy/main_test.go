package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/catalog-proxy/internal/testutil"
	"github.com/Sternrassler/catalog-proxy/pkg/config"
)

var catalogProducts = []string{
	`{"nomeProduto":"Oil Pump","marca":"Bosch","hp":40}`,
	`{"nomeProduto":"Oil Filter","marca":"Mann","hp":10}`,
	`{"data":{"nomeProduto":"Oil Cooler","marca":"Bosch","hp":25}}`,
	`{"nomeProduto":"Brake Oil Seal","marca":"TRW","hp":5}`,
}

func testConfig(mock *testutil.MockCatalog) *config.Config {
	return &config.Config{
		Port:              "0",
		CatalogBaseURL:    mock.URL(),
		CatalogTimeout:    5 * time.Second,
		CatalogMaxRetries: 1,
		TokenURL:          mock.TokenURL(),
		ClientID:          testutil.ClientID,
		ClientSecret:      testutil.ClientSecret,
		ShutdownTimeout:   time.Second,
	}
}

func setupServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()

	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	t.Cleanup(a.Close)

	srv := httptest.NewServer(a.routes())
	t.Cleanup(srv.Close)
	return srv
}

func setupProxy(t *testing.T) (*httptest.Server, *testutil.MockCatalog) {
	t.Helper()

	mock := testutil.NewMockCatalog(catalogProducts...)
	t.Cleanup(mock.Close)
	return setupServer(t, testConfig(mock)), mock
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestRootEndpoint(t *testing.T) {
	srv, _ := setupProxy(t)

	resp, body := get(t, srv.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "running") {
		t.Errorf("unexpected banner %q", body)
	}

	resp, _ = get(t, srv.URL+"/nope")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("without redis", func(t *testing.T) {
		w := httptest.NewRecorder()
		readyHandler(nil)(w, httptest.NewRequest("GET", "/ready", nil))
		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("redis up and down", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer rdb.Close()

		w := httptest.NewRecorder()
		readyHandler(rdb)(w, httptest.NewRequest("GET", "/ready", nil))
		if w.Code != http.StatusOK || w.Body.String() != "Ready" {
			t.Errorf("Expected 200 Ready, got %d %q", w.Code, w.Body.String())
		}

		mr.Close()
		w = httptest.NewRecorder()
		readyHandler(rdb)(w, httptest.NewRequest("GET", "/ready", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}
	})
}

func TestBuscar_SortedListing(t *testing.T) {
	srv, mock := setupProxy(t)

	resp, body := get(t, srv.URL+"/buscar?produto=oil&ordem=ASC")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var listing struct {
		Results []json.RawMessage `json:"results"`
		Brands  []string          `json:"brands"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listing.Results) != 4 {
		t.Fatalf("results = %s", body)
	}
	// Records are passed through unchanged, wrapped ones included.
	want := []string{catalogProducts[3], catalogProducts[2], catalogProducts[1], catalogProducts[0]}
	for i, w := range want {
		if string(listing.Results[i]) != w {
			t.Errorf("result %d = %s, want %s", i, listing.Results[i], w)
		}
	}
	if strings.Join(listing.Brands, ",") != "TRW,Bosch,Mann" {
		t.Errorf("brands = %v", listing.Brands)
	}

	q := mock.LastQuery()
	if q.Filter.Name != "oil" || q.Page != 0 || q.PageSize != 15 {
		t.Errorf("upstream query = %+v", q)
	}
}

func TestBuscar_CachedResponseIsByteIdentical(t *testing.T) {
	srv, mock := setupProxy(t)
	url := srv.URL + "/buscar?produto=oil&ordem=desc&pagina=1&itensPorPagina=15"

	_, first := get(t, url)
	_, second := get(t, url)

	if string(first) != string(second) {
		t.Errorf("cached response differs:\n%s\n%s", first, second)
	}
	if mock.QueryCount() != 1 {
		t.Errorf("QueryCount = %d, want 1", mock.QueryCount())
	}
	if mock.TokenCount() != 1 {
		t.Errorf("TokenCount = %d, want 1", mock.TokenCount())
	}
}

func TestBuscar_Parameters(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		wantPage     int
		wantPageSize int
	}{
		{name: "one-based page", query: "pagina=3&itensPorPagina=5", wantPage: 2, wantPageSize: 5},
		{name: "invalid page", query: "pagina=abc", wantPage: 0, wantPageSize: 15},
		{name: "invalid size", query: "itensPorPagina=many", wantPage: 0, wantPageSize: 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, mock := setupProxy(t)

			resp, body := get(t, srv.URL+"/buscar?produto=oil&"+tt.query)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status %d: %s", resp.StatusCode, body)
			}
			q := mock.LastQuery()
			if q.Page != tt.wantPage || q.PageSize != tt.wantPageSize {
				t.Errorf("upstream page = %d size = %d, want %d %d", q.Page, q.PageSize, tt.wantPage, tt.wantPageSize)
			}
		})
	}
}

func TestBuscar_BrandFilter(t *testing.T) {
	srv, _ := setupProxy(t)

	_, body := get(t, srv.URL+"/buscar?produto=oil&marca=mann")

	var listing struct {
		Results []map[string]any `json:"results"`
		Brands  []string         `json:"brands"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listing.Results) != 1 || listing.Results[0]["nomeProduto"] != "Oil Filter" {
		t.Errorf("results = %v", listing.Results)
	}
	if len(listing.Brands) != 3 {
		t.Errorf("brands = %v", listing.Brands)
	}
}

func TestMissingProduto(t *testing.T) {
	srv, mock := setupProxy(t)

	for _, path := range []string{"/buscar", "/buscar?produto=%20", "/autocomplete?prefix=o", "/heap"} {
		resp, body := get(t, srv.URL+path)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", path, resp.StatusCode)
		}
		var e errorResponse
		if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
			t.Errorf("%s: body %s", path, body)
		}
	}
	if mock.QueryCount() != 0 {
		t.Errorf("QueryCount = %d, want 0", mock.QueryCount())
	}
}

func TestTokenFailure(t *testing.T) {
	srv, mock := setupProxy(t)
	mock.SetTokenResponse(testutil.MockResponse{StatusCode: http.StatusInternalServerError})

	for _, path := range []string{"/buscar?produto=oil", "/autocomplete?produto=oil&prefix=o", "/heap?produto=oil"} {
		resp, _ := get(t, srv.URL+path)
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s: status %d, want 503", path, resp.StatusCode)
		}
	}
}

func TestUpstreamFailureYieldsEmptyListing(t *testing.T) {
	srv, mock := setupProxy(t)
	mock.QueueQueryResponses(testutil.MockResponse{StatusCode: http.StatusBadGateway})

	_, body := get(t, srv.URL+"/buscar?produto=oil")
	if string(body) != `{"results":[],"brands":[]}` {
		t.Errorf("body = %s", body)
	}

	// Not cached: the next call reaches the catalog again.
	_, body = get(t, srv.URL+"/buscar?produto=oil")
	if !strings.Contains(string(body), "Oil Pump") {
		t.Errorf("body = %s", body)
	}
	if mock.QueryCount() != 2 {
		t.Errorf("QueryCount = %d, want 2", mock.QueryCount())
	}
}

func TestAutocompleteEndpoint(t *testing.T) {
	srv, mock := setupProxy(t)

	_, body := get(t, srv.URL+"/autocomplete?produto=oil&prefix=%20OIL%20C")
	if string(body) != `["oil cooler"]` {
		t.Errorf("body = %s", body)
	}
	if q := mock.LastQuery(); q.PageSize != 1000 || q.Page != 0 {
		t.Errorf("upstream query = %+v", q)
	}

	_, body = get(t, srv.URL+"/autocomplete?produto=oil")
	if string(body) != `[]` {
		t.Errorf("empty prefix body = %s", body)
	}
}

func TestHeapEndpoint(t *testing.T) {
	srv, mock := setupProxy(t)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "defaults", query: "produto=oil", want: []string{"Oil Pump", "Oil Cooler", "Oil Filter", "Brake Oil Seal"}},
		{name: "smallest", query: "produto=oil&k=2&largest=false", want: []string{"Brake Oil Seal", "Oil Filter"}},
		{name: "aliases", query: "produto=oil&k=1&criterio=hp&modo=menor", want: []string{"Brake Oil Seal"}},
		{name: "brand", query: "produto=oil&marca=bosch", want: []string{"Oil Pump", "Oil Cooler"}},
		{name: "zero k", query: "produto=oil&k=0", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, srv.URL+"/heap?"+tt.query)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status %d: %s", resp.StatusCode, body)
			}

			var items []map[string]any
			if err := json.Unmarshal(body, &items); err != nil {
				t.Fatalf("decode: %v", err)
			}
			got := make([]string, len(items))
			for i, item := range items {
				name, _ := item["nomeProduto"].(string)
				if data, ok := item["data"].(map[string]any); ok {
					name, _ = data["nomeProduto"].(string)
				}
				got[i] = name
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if q := mock.LastQuery(); q.PageSize != 15 {
		t.Errorf("upstream page size = %d, want 15", q.PageSize)
	}
}

func TestRecoverer(t *testing.T) {
	h := withLogging(zerolog.Nop(), instrument("/boom", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", w.Code)
	}
	var e errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Error != "Internal server error" || e.Message != "kaboom" {
		t.Errorf("body = %+v", e)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := setupProxy(t)

	resp, _ := get(t, srv.URL+"/health")
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("X-Request-Id header missing")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := setupProxy(t)

	get(t, srv.URL+"/buscar?produto=oil")
	resp, body := get(t, srv.URL+"/metrics")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	for _, name := range []string{
		"catalog_http_requests_total",
		"catalog_upstream_requests_total",
		"catalog_cache_misses_total",
		"catalog_token_refreshes_total",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestNewApp_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	mock := testutil.NewMockCatalog(catalogProducts...)
	t.Cleanup(mock.Close)

	cfg := testConfig(mock)
	cfg.RedisURL = "redis://" + mr.Addr()
	srv := setupServer(t, cfg)

	get(t, srv.URL+"/buscar?produto=oil")
	if !mr.Exists("catalog:oauth:token:" + testutil.ClientID) {
		t.Error("token not shared through redis")
	}

	resp, _ := get(t, srv.URL+"/ready")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready status %d", resp.StatusCode)
	}
}

func TestNewApp_InvalidRedisURL(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()

	cfg := testConfig(mock)
	cfg.RedisURL = "://bad"
	if _, err := newApp(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Error("newApp accepted an invalid redis url")
	}
}
