package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/oauth2"

	"github.com/gridctl/toolgate/pkg/credentials"
	"github.com/gridctl/toolgate/pkg/logging"
)

// SDKDialer opens streamable HTTP sessions to native MCP servers. Each
// session is authenticated with the token for the server's domain.
type SDKDialer struct {
	client *http.Client
	tokens credentials.TokenSource
	impl   *sdk.Implementation
	logger *slog.Logger
}

// NewSDKDialer creates a dialer. A nil client uses http.DefaultClient and a
// nil token source sends no credentials.
func NewSDKDialer(client *http.Client, tokens credentials.TokenSource, version string) *SDKDialer {
	if client == nil {
		client = http.DefaultClient
	}
	if tokens == nil {
		tokens = credentials.None
	}
	return &SDKDialer{
		client: client,
		tokens: tokens,
		impl:   &sdk.Implementation{Name: "toolgate", Version: version},
		logger: logging.NewDiscardLogger(),
	}
}

// SetLogger sets the logger.
func (d *SDKDialer) SetLogger(logger *slog.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// Dial connects to target and completes the MCP handshake.
func (d *SDKDialer) Dial(ctx context.Context, target Target) (NativeClient, error) {
	httpClient := d.client
	token, err := d.tokens.Token(ctx, target.Domain)
	if err != nil {
		d.logger.Warn("token unavailable for MCP server", "server", target.Name, "domain", target.Domain, "error", err)
	}
	if token != "" {
		base := d.client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		httpClient = &http.Client{
			Timeout: d.client.Timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
				Base:   base,
			},
		}
	}

	transport := &sdk.StreamableClientTransport{
		Endpoint:   target.BaseURL,
		HTTPClient: httpClient,
	}
	session, err := sdk.NewClient(d.impl, nil).Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to MCP server %s at %s: %w", target.Name, target.BaseURL, err)
	}
	return &sdkClient{session: session}, nil
}

// sdkClient adapts a go-sdk client session to NativeClient.
type sdkClient struct {
	session *sdk.ClientSession
}

func (c *sdkClient) ListTools(ctx context.Context) ([]NativeTool, error) {
	var tools []NativeTool
	params := &sdk.ListToolsParams{}
	for {
		res, err := c.session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("listing tools: %w", err)
		}
		for _, t := range res.Tools {
			if t == nil {
				continue
			}
			tools = append(tools, NativeTool{
				Name:        t.Name,
				Title:       t.Title,
				Description: t.Description,
				InputSchema: encodeSchema(t.InputSchema),
			})
		}
		if res.NextCursor == "" {
			return tools, nil
		}
		params.Cursor = res.NextCursor
	}
}

func (c *sdkClient) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	res, err := c.session.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}
	out := &ToolCallResult{
		Content:           make([]Content, 0, len(res.Content)),
		StructuredContent: res.StructuredContent,
		IsError:           res.IsError,
	}
	for _, item := range res.Content {
		out.Content = append(out.Content, normalizeContent(item))
	}
	return out, nil
}

func (c *sdkClient) Close() error {
	return c.session.Close()
}

// normalizeContent flattens any content block to {type, text}.
func normalizeContent(c sdk.Content) Content {
	switch v := c.(type) {
	case *sdk.TextContent:
		return NewTextContent(v.Text)
	case *sdk.ImageContent:
		return Content{Type: "image", Text: fmt.Sprintf("[image %s, %d bytes]", v.MIMEType, len(v.Data))}
	case *sdk.AudioContent:
		return Content{Type: "audio", Text: fmt.Sprintf("[audio %s, %d bytes]", v.MIMEType, len(v.Data))}
	case *sdk.ResourceLink:
		return Content{Type: "resource_link", Text: v.URI}
	case *sdk.EmbeddedResource:
		if v.Resource != nil && v.Resource.Text != "" {
			return Content{Type: "resource", Text: v.Resource.Text}
		}
		if v.Resource != nil {
			return Content{Type: "resource", Text: v.Resource.URI}
		}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return NewTextContent(fmt.Sprint(c))
	}
	return NewTextContent(string(data))
}

func encodeSchema(schema any) json.RawMessage {
	if schema == nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	data, err := json.Marshal(schema)
	if err != nil || string(data) == "null" {
		return json.RawMessage(`{"type":"object"}`)
	}
	return data
}
