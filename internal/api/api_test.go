package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gridctl/toolgate/pkg/audit"
	"github.com/gridctl/toolgate/pkg/catalog"
	"github.com/gridctl/toolgate/pkg/mcp"
	"github.com/gridctl/toolgate/pkg/openapi"
	"github.com/gridctl/toolgate/pkg/policy"
	"github.com/gridctl/toolgate/pkg/store"
)

// stubCatalog records how the catalog was requested.
type stubCatalog struct {
	mu          sync.Mutex
	cat         *catalog.Catalog
	err         error
	resets      int
	lastForce   bool
	lastRetries *int
}

func (s *stubCatalog) BuildCatalog(_ context.Context, force bool, retries *int) (*catalog.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastForce = force
	s.lastRetries = retries
	if s.err != nil {
		return nil, s.err
	}
	return s.cat, nil
}

func (s *stubCatalog) ResetCatalog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

// recordingAuditor keeps audit entries in memory.
type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAuditor) Record(_ context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Tools: map[string]*openapi.ToolDefinition{
			"billing__list_invoices": {Name: "billing__list_invoices", App: "billing", Method: "GET", Path: "/invoices", Title: "List invoices", InputSchema: openapi.ObjectSchema()},
			"billing__get_invoice":   {Name: "billing__get_invoice", App: "billing", Method: "GET", Path: "/invoices/{id}", Title: "Get invoice", InputSchema: openapi.ObjectSchema()},
		},
		SyncErrors: []string{"sync billing: boom"},
		Apps: []catalog.AppDiagnostics{
			{Name: "billing", URL: "http://billing.internal", Status: catalog.StatusHealthy, OperationCount: 2, ToolCount: 2},
			{Name: "legacy", URL: "http://legacy.internal", Status: catalog.StatusUnreachable, Error: "connection refused"},
		},
	}
}

type testEnv struct {
	server  *Server
	catalog *stubCatalog
	store   *store.MemoryStore
	auditor *recordingAuditor
}

// newTestServer wires a Server over an in-memory store and a stub catalog.
func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	st.PutPolicy(store.AccessPolicy{OwnerID: "app:billing", ToolID: store.DefaultToolID, Mode: store.ModeAllow})
	st.PutServer(store.Server{Name: "disabled", BaseURL: "http://127.0.0.1:1/mcp"})

	cat := &stubCatalog{cat: testCatalog()}
	resolver := policy.NewResolver(st, "")
	gateway := mcp.NewGateway(cat, st, resolver, nil, nil)

	auditor := &recordingAuditor{}
	srv := NewServer(gateway, cat, st)
	srv.SetRegistry(st, resolver)
	srv.SetAuditor(auditor)
	return &testEnv{server: srv, catalog: cat, store: st, auditor: auditor}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding body %q: %v", rec.Body.String(), err)
	}
}

func TestHandleCatalog(t *testing.T) {
	env := newTestServer(t)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp CatalogResponse
	decodeBody(t, rec, &resp)

	if resp.Summary.TotalApps != 2 || resp.Summary.Healthy != 1 || resp.Summary.Unreachable != 1 || resp.Summary.ToolCount != 2 {
		t.Errorf("summary = %+v", resp.Summary)
	}
	if resp.Summary.MCPServers != 0 {
		t.Errorf("mcp_servers = %d, want 0 (only a disabled server is registered)", resp.Summary.MCPServers)
	}
	if len(resp.Tools) != 2 || resp.Tools[0].Name != "billing__get_invoice" || resp.Tools[1].Name != "billing__list_invoices" {
		t.Errorf("tools = %+v", resp.Tools)
	}
	if len(resp.SyncErrors) != 1 {
		t.Errorf("sync_errors = %v", resp.SyncErrors)
	}
	if env.catalog.lastForce || env.catalog.lastRetries != nil {
		t.Errorf("default request forced=%v retries=%v", env.catalog.lastForce, env.catalog.lastRetries)
	}
}

func TestHandleCatalog_CountsEnabledServers(t *testing.T) {
	env := newTestServer(t)
	env.store.PutServer(store.Server{Name: "weather", BaseURL: "http://127.0.0.1:1/mcp", Enabled: true})

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))

	var resp CatalogResponse
	decodeBody(t, rec, &resp)
	if resp.Summary.MCPServers != 1 {
		t.Errorf("mcp_servers = %d, want 1", resp.Summary.MCPServers)
	}
}

func TestHandleCatalog_QueryParameters(t *testing.T) {
	env := newTestServer(t)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog?force_refresh=true&retries=3", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !env.catalog.lastForce {
		t.Error("force_refresh not passed through")
	}
	if env.catalog.lastRetries == nil || *env.catalog.lastRetries != 3 {
		t.Errorf("retries = %v, want 3", env.catalog.lastRetries)
	}
}

func TestHandleCatalog_InvalidParameters(t *testing.T) {
	env := newTestServer(t)
	handler := env.server.Handler()

	for _, query := range []string{"force_refresh=maybe", "retries=-1", "retries=two"} {
		t.Run(query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog?"+query, nil))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestHandleCatalog_BuildFailure(t *testing.T) {
	env := newTestServer(t)
	env.catalog.err = errors.New("application store unavailable")

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if !strings.Contains(body["error"], "application store unavailable") {
		t.Errorf("error = %q", body["error"])
	}
}

func TestHandleCatalog_MethodNotAllowed(t *testing.T) {
	env := newTestServer(t)
	handler := env.server.Handler()

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(method, "/api/catalog", nil))
			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("expected 405 for %s, got %d", method, rec.Code)
			}
		})
	}
}

func TestHandleCatalogReset(t *testing.T) {
	env := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/catalog/reset", nil)
	req.Header.Set("X-Actor", "alice")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if env.catalog.resets != 1 {
		t.Errorf("resets = %d, want 1", env.catalog.resets)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["status"] != "reset" || body["propagated"] != false {
		t.Errorf("body = %v", body)
	}

	if len(env.auditor.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(env.auditor.entries))
	}
	entry := env.auditor.entries[0]
	if entry.Actor != "alice" || entry.Action != "catalog.reset" || entry.ResourceType != "catalog" {
		t.Errorf("audit entry = %+v", entry)
	}

	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog/reset", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET reset: expected 405, got %d", rec.Code)
	}
}

func TestHandler_RoutesMCP(t *testing.T) {
	env := newTestServer(t)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp mcp.Response
	decodeBody(t, rec, &resp)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var result mcp.ToolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(result.Tools) != 2 {
		t.Errorf("tools = %+v", result.Tools)
	}
}

func TestHandler_CORS(t *testing.T) {
	env := newTestServer(t)
	env.server.SetAllowedOrigins([]string{"https://console.example.com"})
	env.server.SetAuth("bearer", "secret", "")
	handler := env.server.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/catalog", nil)
	req.Header.Set("Origin", "https://console.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	// Browsers send the requested header names lowercased.
	req.Header.Set("Access-Control-Request-Headers", "authorization")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example.com" {
		t.Errorf("preflight Allow-Origin = %q", got)
	}
	if rec.Code >= 400 {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); !strings.EqualFold(got, "authorization") {
		t.Errorf("preflight Allow-Headers = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/catalog", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unlisted origin got Allow-Origin %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("authorized request status = %d", rec.Code)
	}
}

func TestHandler_NoCORSWithoutOrigins(t *testing.T) {
	env := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/catalog", nil)
	req.Header.Set("Origin", "https://console.example.com")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want none", got)
	}
}

func TestHandler_AuthRequired(t *testing.T) {
	env := newTestServer(t)
	env.server.SetAuth("header", "k3y", "X-API-Key")
	handler := env.server.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without key: expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/catalog", nil)
	req.Header.Set("X-API-Key", "k3y")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with key: expected 200, got %d", rec.Code)
	}
}
