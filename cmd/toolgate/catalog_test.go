package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridctl/toolgate/internal/api"
	"github.com/gridctl/toolgate/pkg/catalog"
	"github.com/gridctl/toolgate/pkg/openapi"
	"github.com/gridctl/toolgate/pkg/policy"
	"github.com/gridctl/toolgate/pkg/store"
)

const invoicesSpec = `{
  "openapi": "3.0.3",
  "info": {"title": "billing", "version": "1"},
  "paths": {
    "/invoices": {
      "get": {"operationId": "listInvoices", "responses": {"200": {"description": "ok"}}}
    }
  }
}`

func writeCatalogConfig(t *testing.T, appURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toolgate.yaml")
	content := fmt.Sprintf(`
catalog:
  fetch_retries: 0
applications:
  - name: billing
    base_url: %s
    openapi_path: /openapi.json
servers:
  - name: search
    base_url: http://127.0.0.1:1/mcp
`, appURL)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunCatalog_JSON(t *testing.T) {
	app := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openapi.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(invoicesSpec))
	}))
	defer app.Close()

	configPath = writeCatalogConfig(t, app.URL)
	catalogJSON = true
	catalogRetries = -1
	t.Cleanup(func() {
		configPath = "toolgate.yaml"
		catalogJSON = false
	})

	var buf bytes.Buffer
	require.NoError(t, runCatalog(context.Background(), &buf))

	var resp api.CatalogResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, 1, resp.Summary.TotalApps)
	assert.Equal(t, 1, resp.Summary.Healthy)
	assert.Equal(t, 1, resp.Summary.MCPServers)
	require.Len(t, resp.Tools, 1)
	assert.Equal(t, "billing", resp.Tools[0].App)
	assert.Equal(t, "/invoices", resp.Tools[0].Path)
}

func TestRunCatalog_MissingConfig(t *testing.T) {
	configPath = filepath.Join(t.TempDir(), "missing.yaml")
	t.Cleanup(func() { configPath = "toolgate.yaml" })

	err := runCatalog(context.Background(), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestToolRows(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.UpsertPolicy(ctx, store.AccessPolicy{
		OwnerID: "app:billing", ToolID: store.DefaultToolID, Mode: store.ModeAllow,
	}))
	require.NoError(t, st.UpsertPolicy(ctx, store.AccessPolicy{
		OwnerID: "app:billing", ToolID: "billing_delete", Mode: store.ModeDeny,
	}))

	cat := &catalog.Catalog{Tools: map[string]*openapi.ToolDefinition{
		"billing_list":   {Name: "billing_list", App: "billing", Method: "GET", Path: "/invoices"},
		"billing_delete": {Name: "billing_delete", App: "billing", Method: "DELETE", Path: "/invoices/{id}"},
	}}

	rows, err := toolRows(ctx, policy.NewResolver(st, store.ModeDeny), cat)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "billing_delete", rows[0].Name)
	assert.Equal(t, "deny", rows[0].Mode)
	assert.Equal(t, "app:billing", rows[1].Owner)
	assert.Equal(t, "allow", rows[1].Mode)
}

func TestAppRows(t *testing.T) {
	rows := appRows([]catalog.AppDiagnostics{
		{Name: "billing", URL: "http://billing", Status: catalog.StatusUnreachable, Rounds: 2, Error: "connection refused"},
	})
	require.Len(t, rows, 1)
	assert.Equal(t, "unreachable", rows[0].Status)
	assert.Equal(t, 2, rows[0].Rounds)
	assert.Equal(t, "connection refused", rows[0].Error)
}
