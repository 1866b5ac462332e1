// Package testutil provides testing utilities for the catalog proxy.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// Paths served by the mock.
const (
	TokenPath = "/connect/token"
	QueryPath = "/superbusca/api/integracao/catalogo/produtos/query"
)

// Credentials accepted by the mock token endpoint.
const (
	ClientID     = "test-client"
	ClientSecret = "test-secret"
)

// MockResponse is a canned response for one endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// QueryRequest is the decoded body of the last product query.
type QueryRequest struct {
	Filter struct {
		Name string `json:"nomeProduto"`
	} `json:"produtoFiltro"`
	Page     int `json:"pagina"`
	PageSize int `json:"itensPorPagina"`
}

// MockCatalog serves the OAuth2 token endpoint and the product query
// endpoint of the catalog API.
type MockCatalog struct {
	server *httptest.Server

	mu             sync.Mutex
	products       []string
	queryOverrides []MockResponse
	tokenOverride  *MockResponse

	tokenCount    int
	queryCount    int
	lastQuery     QueryRequest
	lastAuthorize string
}

// NewMockCatalog starts a mock catalog serving products, given as raw JSON
// objects. Queries match nomeProduto (top level or under data) by
// case-insensitive substring and are paginated with pagina/itensPorPagina.
func NewMockCatalog(products ...string) *MockCatalog {
	m := &MockCatalog{products: products}

	mux := http.NewServeMux()
	mux.HandleFunc(TokenPath, m.handleToken)
	mux.HandleFunc(QueryPath, m.handleQuery)
	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the mock server URL, usable as both base and token host.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// TokenURL returns the full token endpoint URL.
func (m *MockCatalog) TokenURL() string {
	return m.server.URL + TokenPath
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// SetProducts replaces the served catalog.
func (m *MockCatalog) SetProducts(products ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = products
}

// QueueQueryResponses makes the next queries return resps in order before
// falling back to the catalog.
func (m *MockCatalog) QueueQueryResponses(resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryOverrides = append(m.queryOverrides, resps...)
}

// SetTokenResponse makes every token request return resp.
func (m *MockCatalog) SetTokenResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenOverride = &resp
}

// TokenCount returns the number of token requests received.
func (m *MockCatalog) TokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenCount
}

// QueryCount returns the number of product queries received.
func (m *MockCatalog) QueryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queryCount
}

// LastQuery returns the body of the most recent product query.
func (m *MockCatalog) LastQuery() QueryRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQuery
}

// LastAuthorization returns the Authorization header of the most recent query.
func (m *MockCatalog) LastAuthorization() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAuthorize
}

func (m *MockCatalog) handleToken(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.tokenCount++
	n := m.tokenCount
	override := m.tokenOverride
	m.mu.Unlock()

	if override != nil {
		writeResponse(w, *override)
		return
	}

	if r.Method != http.MethodPost || r.ParseForm() != nil ||
		r.PostForm.Get("grant_type") != "client_credentials" ||
		r.PostForm.Get("client_id") != ClientID ||
		r.PostForm.Get("client_secret") != ClientSecret {
		writeResponse(w, MockResponse{StatusCode: http.StatusUnauthorized, Body: `{"error":"invalid_client"}`})
		return
	}

	writeResponse(w, MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"access_token":"token-%d","token_type":"Bearer","expires_in":3600}`, n),
	})
}

func (m *MockCatalog) handleQuery(w http.ResponseWriter, r *http.Request) {
	var q QueryRequest
	decodeErr := json.NewDecoder(r.Body).Decode(&q)

	m.mu.Lock()
	m.queryCount++
	m.lastQuery = q
	m.lastAuthorize = r.Header.Get("Authorization")
	var override *MockResponse
	if len(m.queryOverrides) > 0 {
		override = &m.queryOverrides[0]
		m.queryOverrides = m.queryOverrides[1:]
	}
	products := m.products
	m.mu.Unlock()

	if override != nil {
		writeResponse(w, *override)
		return
	}
	if r.Method != http.MethodPost || decodeErr != nil {
		writeResponse(w, MockResponse{StatusCode: http.StatusBadRequest, Body: `{"error":"bad request"}`})
		return
	}
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer token-") {
		writeResponse(w, MockResponse{StatusCode: http.StatusUnauthorized})
		return
	}

	needle := strings.ToLower(q.Filter.Name)
	var matched []string
	for _, p := range products {
		name := gjson.Get(p, "nomeProduto")
		if !name.Exists() {
			name = gjson.Get(p, "data.nomeProduto")
		}
		if strings.Contains(strings.ToLower(name.String()), needle) {
			matched = append(matched, p)
		}
	}

	start, end := 0, 0
	if q.PageSize > 0 && q.Page >= 0 {
		start = min(q.Page*q.PageSize, len(matched))
		end = min(start+q.PageSize, len(matched))
	}

	writeResponse(w, MockResponse{
		StatusCode: http.StatusOK,
		Body:       PageBody(matched[start:end]...),
	})
}

// PageBody wraps raw product objects in a catalog query response.
func PageBody(products ...string) string {
	return `{"pageResult":{"data":[` + strings.Join(products, ",") + `]}}`
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}
