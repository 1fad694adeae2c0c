package api

import (
	"net/http"
	"strconv"

	"github.com/gridctl/toolgate/pkg/registry"
	"github.com/gridctl/toolgate/pkg/store"
)

// registryAvailable writes 503 and returns false when no registry is wired.
func (s *Server) registryAvailable(w http.ResponseWriter) bool {
	if s.records == nil || s.resolver == nil {
		writeJSONError(w, "Registry not available", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// handleRegistryTools lists exposable registry records with their access mode.
// GET /api/registry/tools?public_only=true
func (s *Server) handleRegistryTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.registryAvailable(w) {
		return
	}

	publicOnly := false
	if v := r.URL.Query().Get("public_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSONError(w, "public_only must be a boolean", http.StatusBadRequest)
			return
		}
		publicOnly = b
	}

	tools, err := registry.Exposable(r.Context(), s.records, s.resolver, publicOnly)
	if err != nil {
		s.logger.Error("listing registry tools failed", "error", err)
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"tools": tools, "count": len(tools)})
}

// handleRegistryRecords returns raw registry rows, including stale and
// retired ones.
// GET /api/registry/records?owner=app:billing&source=openapi
func (s *Server) handleRegistryRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.registryAvailable(w) {
		return
	}

	q := r.URL.Query()
	filter := store.ToolFilter{OwnerID: q.Get("owner")}
	switch src := store.SourceType(q.Get("source")); src {
	case "", store.SourceOpenAPI, store.SourceMCP:
		filter.Source = src
	default:
		writeJSONError(w, "source must be openapi or mcp", http.StatusBadRequest)
		return
	}
	if filter.OwnerID != "" {
		if _, _, ok := store.SplitOwner(filter.OwnerID); !ok {
			writeJSONError(w, "owner must start with app: or mcp:", http.StatusBadRequest)
			return
		}
	}

	records, err := s.records.ListToolRecords(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing registry records failed", "error", err)
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []store.ToolRecord{}
	}

	type recordView struct {
		store.ToolRecord
		Lifecycle store.Lifecycle `json:"lifecycle"`
	}
	out := make([]recordView, 0, len(records))
	for _, rec := range records {
		out = append(out, recordView{ToolRecord: rec, Lifecycle: rec.Lifecycle()})
	}
	writeJSON(w, out)
}
