package openapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridctl/toolgate/pkg/credentials"
)

type capturedRequest struct {
	method      string
	requestURI  string
	contentType string
	auth        string
	tenant      string
	cookie      string
	body        string
}

func newCaptureServer(t *testing.T, status int, contentType, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	got := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		got.method = r.Method
		got.requestURI = r.RequestURI
		got.contentType = r.Header.Get("Content-Type")
		got.auth = r.Header.Get("Authorization")
		got.tenant = r.Header.Get("X-Tenant")
		if c, err := r.Cookie("session"); err == nil {
			got.cookie = c.Value
		}
		got.body = string(data)
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestInvoke_BillingEndToEnd(t *testing.T) {
	srv, got := newCaptureServer(t, http.StatusOK, "application/json", `{"id":"42","total":10}`)

	doc := loadDoc(t, minimalSpec)
	defs := SynthesizeTools(App{Name: "billing", BaseURL: srv.URL, Domain: "ADM"}, doc)
	require.Len(t, defs, 1)

	inv := NewInvoker(srv.Client(), credentials.Static{"ADM": "abc"})
	res, err := inv.Invoke(t.Context(), &defs[0], map[string]any{"path": map[string]any{"id": "42"}})
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/invoices/42", got.requestURI)
	assert.Equal(t, "Bearer abc", got.auth)

	assert.True(t, res.OK)
	require.NotNil(t, res.StatusCode)
	assert.Equal(t, 200, *res.StatusCode)
	assert.Equal(t, srv.URL+"/invoices/42", res.URL)
	assert.Equal(t, map[string]any{"id": "42", "total": float64(10)}, res.Body)
	assert.Equal(t, "billing", res.App)
}

func TestInvoke_RequestShape(t *testing.T) {
	srv, got := newCaptureServer(t, http.StatusCreated, "text/plain", "created")

	tool := &ToolDefinition{
		Name: "crm__create", App: "crm", BaseURL: srv.URL + "/api/v2/", Domain: "ADM",
		Method: "POST", Path: "/items/{kind}/{name}", BodyContentType: "application/merge-patch+json",
	}
	inv := NewInvoker(srv.Client(), nil)
	res, err := inv.Invoke(t.Context(), tool, map[string]any{
		"path":        map[string]any{"kind": "a/b", "name": "x y+z"},
		"query":       map[string]any{"tag": []any{"one", "two"}, "limit": float64(5)},
		"headers":     map[string]any{"X-Tenant": "t1"},
		"cookies":     map[string]any{"session": "s1"},
		"body":        map[string]any{"status": "open"},
		"timeout_sec": "5",
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/v2/items/a%2Fb/x%20y%2Bz?limit=5&tag=one&tag=two", got.requestURI)
	assert.Equal(t, "application/merge-patch+json", got.contentType)
	assert.Equal(t, "t1", got.tenant)
	assert.Equal(t, "s1", got.cookie)
	assert.JSONEq(t, `{"status":"open"}`, got.body)
	assert.Empty(t, got.auth)

	assert.True(t, res.OK)
	assert.Equal(t, "created", res.Body)
	assert.Equal(t, "text/plain", res.ContentType)
}

func TestInvoke_CallerContentTypeWins(t *testing.T) {
	srv, got := newCaptureServer(t, http.StatusOK, "", "")

	tool := &ToolDefinition{Name: "a__b", BaseURL: srv.URL, Method: "PUT", Path: "/raw", BodyContentType: "application/json"}
	_, err := NewInvoker(srv.Client(), nil).Invoke(t.Context(), tool, map[string]any{
		"headers": map[string]any{"Content-Type": "text/csv"},
		"body":    "a,b\n1,2",
	})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", got.contentType)
	assert.Equal(t, "a,b\n1,2", got.body)
}

func TestInvoke_UpstreamErrorIsResult(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusNotFound, "application/json", `not json`)

	tool := &ToolDefinition{Name: "a__b", BaseURL: srv.URL, Method: "GET", Path: "/missing"}
	res, err := NewInvoker(srv.Client(), nil).Invoke(t.Context(), tool, nil)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, 404, *res.StatusCode)
	assert.Equal(t, "not json", res.Body)
}

func TestInvoke_TransportErrorIsResult(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	tool := &ToolDefinition{Name: "a__b", BaseURL: base, Method: "GET", Path: "/x"}
	res, err := NewInvoker(nil, nil).Invoke(t.Context(), tool, nil)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Nil(t, res.StatusCode)
	assert.Contains(t, res.Error, ErrTransport.Error())
}

func TestInvoke_ArgumentErrors(t *testing.T) {
	tool := &ToolDefinition{Name: "a__b", BaseURL: "http://svc", Method: "GET", Path: "/items/{id}"}
	inv := NewInvoker(nil, nil)

	tests := []struct {
		name string
		args map[string]any
		want error
	}{
		{"path not object", map[string]any{"path": "42"}, ErrInvalidArguments},
		{"query not object", map[string]any{"path": map[string]any{"id": 1}, "query": []any{}}, ErrInvalidArguments},
		{"headers not object", map[string]any{"headers": 1}, ErrInvalidArguments},
		{"cookies not object", map[string]any{"cookies": true}, ErrInvalidArguments},
		{"timeout not numeric", map[string]any{"path": map[string]any{"id": 1}, "timeout_sec": "soon"}, ErrInvalidArguments},
		{"missing path token", map[string]any{"path": map[string]any{}}, ErrMissingParameter},
		{"no args at all", nil, ErrMissingParameter},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := inv.Invoke(t.Context(), tool, tc.args)
			assert.ErrorIs(t, err, tc.want)
			assert.Nil(t, res)
		})
	}
}

func TestInvoke_Placeholder(t *testing.T) {
	tool := PlaceholderTool(App{Name: "crm", BaseURL: "http://crm"}, "")
	res, err := NewInvoker(nil, nil).Invoke(t.Context(), &tool, map[string]any{"message": "hi"})
	require.NoError(t, err)

	assert.False(t, res.OK)
	assert.Equal(t, "PLACEHOLDER", res.Method)
	assert.Equal(t, "application/json", res.ContentType)
	assert.Equal(t, "Endpoint unavailable", res.Error)
	assert.Nil(t, res.StatusCode)
	body := res.Body.(map[string]any)
	assert.Equal(t, "Check app health diagnostics and OpenAPI path configuration.", body["suggestion"])
}

func TestRenderPath(t *testing.T) {
	got, err := RenderPath("/a/{x}/b/{y}", map[string]any{"x": float64(7), "y": "é&?"})
	require.NoError(t, err)
	assert.Equal(t, "/a/7/b/%C3%A9%26%3F", got)

	_, err = RenderPath("/a/{x}", map[string]any{})
	assert.ErrorIs(t, err, ErrMissingParameter)
	assert.Contains(t, err.Error(), "'x'")
}

func TestCombineBaseAndPath(t *testing.T) {
	tests := []struct{ base, path, want string }{
		{"http://svc:9000", "/invoices/42", "http://svc:9000/invoices/42"},
		{"http://svc:9000/api/", "/invoices", "http://svc:9000/api/invoices"},
		{"https://svc/api?x=1", "items", "https://svc/api/items"},
	}
	for _, tc := range tests {
		got, err := CombineBaseAndPath(tc.base, tc.path)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}
