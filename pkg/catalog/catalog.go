// Package catalog builds and caches the merged set of OpenAPI-derived tools.
package catalog

import (
	"sort"
	"time"

	"github.com/gridctl/toolgate/pkg/openapi"
)

// Status classifies an application's discovery outcome.
type Status string

const (
	StatusHealthy       Status = "healthy"
	StatusZeroEndpoints Status = "zero_endpoints"
	StatusUnreachable   Status = "unreachable"
)

// zeroEndpointsMessage is the diagnostic for a spec without operations.
const zeroEndpointsMessage = "No OpenAPI operations found in discovered spec."

// AppDiagnostics reports how one application was discovered.
type AppDiagnostics struct {
	Name                    string   `json:"name"`
	URL                     string   `json:"url"`
	OpenAPIPath             string   `json:"openapi_path"`
	IncludeUnreachableTools bool     `json:"include_unreachable_tools"`
	Status                  Status   `json:"status"`
	OperationCount          int      `json:"operation_count"`
	ToolCount               int      `json:"tool_count"`
	PlaceholderToolAdded    bool     `json:"placeholder_tool_added"`
	UsedURL                 string   `json:"used_openapi_url,omitempty"`
	CandidateURLs           []string `json:"candidate_urls"`
	Rounds                  int      `json:"rounds_attempted"`
	Requests                int      `json:"requests_attempted"`
	LatencyMS               int64    `json:"latency_ms"`
	Error                   string   `json:"error,omitempty"`
}

// Catalog is an immutable snapshot of discovered tools.
type Catalog struct {
	GeneratedAt time.Time                          `json:"generated_at"`
	Tools       map[string]*openapi.ToolDefinition `json:"-"`
	SyncErrors  []string                           `json:"sync_errors"`
	Apps        []AppDiagnostics                   `json:"apps"`
}

// Lookup returns the tool with the given name.
func (c *Catalog) Lookup(name string) (*openapi.ToolDefinition, bool) {
	if c == nil {
		return nil, false
	}
	t, ok := c.Tools[name]
	return t, ok
}

// Sorted returns the tools ordered by name.
func (c *Catalog) Sorted() []*openapi.ToolDefinition {
	if c == nil {
		return nil
	}
	out := make([]*openapi.ToolDefinition, 0, len(c.Tools))
	for _, t := range c.Tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Summary aggregates per-app statuses.
type Summary struct {
	TotalApps     int `json:"total_apps"`
	Healthy       int `json:"healthy"`
	ZeroEndpoints int `json:"zero_endpoints"`
	Unreachable   int `json:"unreachable"`
	ToolCount     int `json:"tool_count"`
}

// Summary counts apps by status.
func (c *Catalog) Summary() Summary {
	s := Summary{TotalApps: len(c.Apps), ToolCount: len(c.Tools)}
	for _, a := range c.Apps {
		switch a.Status {
		case StatusHealthy:
			s.Healthy++
		case StatusZeroEndpoints:
			s.ZeroEndpoints++
		case StatusUnreachable:
			s.Unreachable++
		}
	}
	return s
}
