package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/gridctl/toolgate/pkg/audit"
	"github.com/gridctl/toolgate/pkg/catalog"
	"github.com/gridctl/toolgate/pkg/logging"
	"github.com/gridctl/toolgate/pkg/mcp"
	"github.com/gridctl/toolgate/pkg/policy"
	"github.com/gridctl/toolgate/pkg/store"
)

// CatalogService builds and invalidates the tool catalog.
type CatalogService interface {
	BuildCatalog(ctx context.Context, force bool, retryOverride *int) (*catalog.Catalog, error)
	ResetCatalog()
}

// Server provides the combined API server for toolgate.
type Server struct {
	mcpHandler *mcp.Handler
	catalog    CatalogService
	servers    store.ServerSource
	records    store.ToolRecords
	resolver   *policy.Resolver
	auditor    audit.Recorder
	logger     *slog.Logger

	resetClient  redis.UniversalClient
	resetChannel string

	allowedOrigins []string
	authType       string
	authToken      string
	authHeader     string
}

// NewServer creates a new API server.
func NewServer(gateway *mcp.Gateway, cat CatalogService, servers store.ServerSource) *Server {
	return &Server{
		mcpHandler: mcp.NewHandler(gateway),
		catalog:    cat,
		servers:    servers,
		auditor:    audit.Nop{},
		logger:     logging.NewDiscardLogger(),
	}
}

// SetLogger sets the logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetRegistry enables the /api/registry endpoints.
func (s *Server) SetRegistry(records store.ToolRecords, resolver *policy.Resolver) {
	s.records = records
	s.resolver = resolver
}

// SetAuditor sets where administrative actions are recorded.
func (s *Server) SetAuditor(r audit.Recorder) {
	if r != nil {
		s.auditor = r
	}
}

// SetResetPublisher makes catalog resets propagate to other replicas.
func (s *Server) SetResetPublisher(client redis.UniversalClient, channel string) {
	s.resetClient = client
	s.resetChannel = channel
}

// SetAllowedOrigins sets the CORS allowed origins for the server.
func (s *Server) SetAllowedOrigins(origins []string) {
	s.allowedOrigins = origins
}

// SetAuth configures authentication for the server.
// When configured, every request except CORS preflight must carry a valid token.
func (s *Server) SetAuth(authType, token, header string) {
	s.authType = authType
	s.authToken = token
	s.authHeader = header
}

// Routes lists the paths served by Handler.
var Routes = []string{"/mcp", "/api/catalog", "/api/catalog/reset", "/api/registry/tools", "/api/registry/records"}

// Handler returns the main HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/mcp", s.mcpHandler)
	mux.HandleFunc("/api/catalog", s.handleCatalog)
	mux.HandleFunc("/api/catalog/reset", s.handleCatalogReset)
	mux.HandleFunc("/api/registry/tools", s.handleRegistryTools)
	mux.HandleFunc("/api/registry/records", s.handleRegistryRecords)

	handler := authMiddleware(s.authType, s.authToken, s.authHeader, mux)

	if len(s.allowedOrigins) == 0 {
		return handler
	}
	allowHeaders := []string{"Content-Type", "Authorization", mcp.SessionHeader}
	if s.authHeader != "" && s.authHeader != "Authorization" {
		allowHeaders = append(allowHeaders, s.authHeader)
	}
	return cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: allowHeaders,
		ExposedHeaders: []string{mcp.SessionHeader},
	}).Handler(handler)
}

// CatalogResponse is the body of GET /api/catalog.
type CatalogResponse struct {
	GeneratedAt time.Time                `json:"generated_at"`
	Summary     CatalogSummary           `json:"summary"`
	Apps        []catalog.AppDiagnostics `json:"apps"`
	SyncErrors  []string                 `json:"sync_errors"`
	Tools       []CatalogTool            `json:"tools"`
}

// CatalogSummary extends the catalog summary with the native server count.
type CatalogSummary struct {
	catalog.Summary
	MCPServers int `json:"mcp_servers"`
}

// CatalogTool is a compact view of one catalog tool.
type CatalogTool struct {
	Name          string `json:"name"`
	App           string `json:"app"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	Title         string `json:"title"`
	IsPlaceholder bool   `json:"is_placeholder,omitempty"`
}

// NewCatalogResponse flattens a catalog snapshot into its API shape.
func NewCatalogResponse(cat *catalog.Catalog, mcpServers int) CatalogResponse {
	resp := CatalogResponse{
		GeneratedAt: cat.GeneratedAt,
		Summary:     CatalogSummary{Summary: cat.Summary(), MCPServers: mcpServers},
		Apps:        cat.Apps,
		SyncErrors:  cat.SyncErrors,
		Tools:       make([]CatalogTool, 0, len(cat.Tools)),
	}
	for _, t := range cat.Sorted() {
		resp.Tools = append(resp.Tools, CatalogTool{
			Name:          t.Name,
			App:           t.App,
			Method:        t.Method,
			Path:          t.Path,
			Title:         t.Title,
			IsPlaceholder: t.IsPlaceholder,
		})
	}
	return resp
}

// handleCatalog returns catalog diagnostics.
// GET /api/catalog?force_refresh=true&retries=2
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	force := false
	if v := q.Get("force_refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSONError(w, "force_refresh must be a boolean", http.StatusBadRequest)
			return
		}
		force = b
	}
	var retries *int
	if v := q.Get("retries"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSONError(w, "retries must be a non-negative integer", http.StatusBadRequest)
			return
		}
		retries = &n
	}

	cat, err := s.catalog.BuildCatalog(r.Context(), force, retries)
	if err != nil {
		s.logger.Error("catalog build failed", "error", err)
		writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	mcpServers := 0
	if s.servers != nil {
		servers, err := s.servers.ListEnabledServers(r.Context())
		if err != nil {
			s.logger.Warn("counting MCP servers failed", "error", err)
		}
		mcpServers = len(servers)
	}
	resp := NewCatalogResponse(cat, mcpServers)
	writeJSON(w, resp)
}

// handleCatalogReset drops the cached catalog here and, when a publisher is
// configured, on every other replica.
// POST /api/catalog/reset
func (s *Server) handleCatalogReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.catalog.ResetCatalog()
	s.auditor.Record(r.Context(), audit.Entry{
		Actor:        r.Header.Get("X-Actor"),
		Action:       "catalog.reset",
		ResourceType: "catalog",
	})

	resp := map[string]any{"status": "reset", "propagated": false}
	if s.resetClient != nil {
		if err := catalog.PublishReset(r.Context(), s.resetClient, s.resetChannel, "api"); err != nil {
			s.logger.Warn("catalog reset not propagated", "error", err)
		} else {
			resp["propagated"] = true
		}
	}
	writeJSON(w, resp)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
