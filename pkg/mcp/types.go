package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gridctl/toolgate/pkg/jsonrpc"
)

// MCPProtocolVersion is the MCP protocol version supported by this implementation.
const MCPProtocolVersion = "2025-03-26"

// Default timeouts for native server sessions.
const (
	// DefaultProbeTimeout bounds connecting to a server and listing its tools.
	DefaultProbeTimeout = 10 * time.Second

	// DefaultCallTimeout bounds a forwarded native tool call.
	DefaultCallTimeout = 60 * time.Second
)

// MaxRequestBodySize is the maximum allowed size for incoming JSON-RPC request bodies (1MB).
const MaxRequestBodySize = 1 * 1024 * 1024

// JSON-RPC aliases used by the handler.
type (
	Request  = jsonrpc.Request
	Response = jsonrpc.Response
)

// Error codes. The last two are application-defined and distinguish policy
// outcomes from "tool not found".
const (
	ParseError     = jsonrpc.ParseError
	InvalidRequest = jsonrpc.InvalidRequest
	MethodNotFound = jsonrpc.MethodNotFound
	InvalidParams  = jsonrpc.InvalidParams
	InternalError  = jsonrpc.InternalError

	AccessDeniedCode     = -32003
	ApprovalRequiredCode = -32004
)

// NewErrorResponse creates a JSON-RPC error response.
func NewErrorResponse(id *json.RawMessage, code int, message string) Response {
	return jsonrpc.NewErrorResponse(id, code, message)
}

// NewSuccessResponse creates a JSON-RPC success response.
func NewSuccessResponse(id *json.RawMessage, result any) Response {
	return jsonrpc.NewSuccessResponse(id, result)
}

// MCP Protocol types

// ServerInfo contains information about the MCP server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientInfo contains information about the MCP client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities describes what the server/client can do.
type Capabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// ToolsCapability indicates tools support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeParams contains parameters for the initialize request.
type InitializeParams struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ClientInfo      ClientInfo   `json:"clientInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// InitializeResult is the response to initialize.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
	Instructions    string       `json:"instructions,omitempty"`
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolsListResult is the response to tools/list.
type ToolsListResult struct {
	Tools      []Tool  `json:"tools"`
	NextCursor *string `json:"nextCursor,omitempty"`
}

// ToolCallParams contains parameters for tools/call.
type ToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolCallResult is the response to tools/call.
type ToolCallResult struct {
	Content           []Content `json:"content"`
	StructuredContent any       `json:"structuredContent,omitempty"`
	IsError           bool      `json:"isError,omitempty"`
}

// Content represents content in a tool response.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// NewTextContent creates a text content item.
func NewTextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

//go:generate mockgen -destination=mock_native_test.go -package=mcp . NativeClient,NativeDialer,Approver

// NativeTool is one tool advertised by a native MCP server.
type NativeTool struct {
	Name        string
	Title       string
	Description string
	InputSchema json.RawMessage
}

// NativeClient is a session with a single native MCP server.
type NativeClient interface {
	ListTools(ctx context.Context) ([]NativeTool, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error)
	Close() error
}

// NativeDialer opens sessions to native MCP servers.
type NativeDialer interface {
	Dial(ctx context.Context, server Target) (NativeClient, error)
}

// Target identifies the server a NativeDialer connects to.
type Target struct {
	Name    string
	BaseURL string
	Domain  string
}

// Approver decides tool calls whose policy mode is approval. It returns nil
// to let the call proceed.
type Approver interface {
	Approve(ctx context.Context, req ApprovalRequest) error
}

// ApprovalRequest describes a call that needs approval.
type ApprovalRequest struct {
	OwnerID   string
	ToolID    string
	ToolName  string
	Arguments map[string]any
}
