package mcp

import (
	"fmt"
	"strings"

	"github.com/gridctl/toolgate/pkg/openapi"
	"github.com/gridctl/toolgate/pkg/registry"
	"github.com/gridctl/toolgate/pkg/store"
)

// nameSeparator joins the segments of a native tool name.
const nameSeparator = "__"

// ToolRef is what a public tool name resolves to. It is either a NativeRef
// or an OpenAPIRef.
type ToolRef interface {
	// OwnerID is the policy owner of the tool.
	OwnerID() string
	// PolicyToolID is the tool id access rows are keyed by.
	PolicyToolID() string

	isToolRef()
}

// NativeRef points at a tool on a native MCP server.
type NativeRef struct {
	Server string
	Tool   string
}

func (r NativeRef) OwnerID() string      { return store.ServerOwner(r.Server) }
func (r NativeRef) PolicyToolID() string { return r.Tool }
func (NativeRef) isToolRef()             {}

// Name returns the public "mcp__{server}__{tool}" name.
func (r NativeRef) Name() string { return registry.NativeToolName(r.Server, r.Tool) }

// OpenAPIRef points at a catalog tool.
type OpenAPIRef struct {
	Definition *openapi.ToolDefinition
}

func (r OpenAPIRef) OwnerID() string      { return store.AppOwner(r.Definition.App) }
func (r OpenAPIRef) PolicyToolID() string { return r.Definition.Name }
func (OpenAPIRef) isToolRef()             {}

// IsNativeName reports whether name carries the native prefix.
func IsNativeName(name string) bool {
	return strings.HasPrefix(name, registry.NativeToolPrefix)
}

// ParseNativeName splits "mcp__{server}__{tool}". The tool segment keeps any
// further separators.
func ParseNativeName(name string) (NativeRef, error) {
	parts := strings.SplitN(name, nameSeparator, 3)
	if len(parts) != 3 || parts[0]+nameSeparator != registry.NativeToolPrefix || parts[1] == "" || parts[2] == "" {
		return NativeRef{}, fmt.Errorf("%w: '%s'", ErrMalformedToolName, name)
	}
	return NativeRef{Server: parts[1], Tool: parts[2]}, nil
}
