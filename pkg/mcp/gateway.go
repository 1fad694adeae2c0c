package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/gridctl/toolgate/pkg/catalog"
	"github.com/gridctl/toolgate/pkg/logging"
	"github.com/gridctl/toolgate/pkg/openapi"
	"github.com/gridctl/toolgate/pkg/policy"
	"github.com/gridctl/toolgate/pkg/registry"
	"github.com/gridctl/toolgate/pkg/store"
)

var tracer = otel.Tracer("github.com/gridctl/toolgate/pkg/mcp")

// CatalogSource supplies the OpenAPI tool catalog.
type CatalogSource interface {
	BuildCatalog(ctx context.Context, force bool, retryOverride *int) (*catalog.Catalog, error)
}

// ToolInvoker executes OpenAPI tools.
type ToolInvoker interface {
	Invoke(ctx context.Context, tool *openapi.ToolDefinition, args map[string]any) (*openapi.InvokeResult, error)
}

// NativeReconciler records what a native probe found.
type NativeReconciler interface {
	Reconcile(ctx context.Context, ownerID string, snap registry.Snapshot, selected []string) (registry.Result, error)
}

// Gateway exposes OpenAPI applications and native MCP servers as one tool
// namespace.
type Gateway struct {
	catalog  CatalogSource
	servers  store.ServerSource
	resolver *policy.Resolver
	invoker  ToolInvoker
	dialer   NativeDialer

	reconciler NativeReconciler
	approver   Approver
	sessions   *SessionManager
	logger     *slog.Logger
	cancel     context.CancelFunc

	probeTimeout time.Duration
	callTimeout  time.Duration

	mu         sync.RWMutex
	serverInfo ServerInfo
}

// NewGateway creates a gateway over its collaborators.
func NewGateway(cat CatalogSource, servers store.ServerSource, resolver *policy.Resolver, invoker ToolInvoker, dialer NativeDialer) *Gateway {
	return &Gateway{
		catalog:      cat,
		servers:      servers,
		resolver:     resolver,
		invoker:      invoker,
		dialer:       dialer,
		sessions:     NewSessionManager(),
		logger:       logging.NewDiscardLogger(),
		probeTimeout: DefaultProbeTimeout,
		callTimeout:  DefaultCallTimeout,
		serverInfo: ServerInfo{
			Name:    "toolgate",
			Version: "dev",
		},
	}
}

// SetLogger sets the logger for gateway operations.
// If nil is passed, logging is disabled (default).
func (g *Gateway) SetLogger(logger *slog.Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// SetVersion sets the gateway version string.
func (g *Gateway) SetVersion(version string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.serverInfo.Version = version
}

// SetReconciler makes successful native probes update the registry.
func (g *Gateway) SetReconciler(r NativeReconciler) { g.reconciler = r }

// SetApprover sets who decides calls in approval mode.
func (g *Gateway) SetApprover(a Approver) { g.approver = a }

// SetTimeouts overrides the native probe and call timeouts. Non-positive
// values keep the current setting.
func (g *Gateway) SetTimeouts(probe, call time.Duration) {
	if probe > 0 {
		g.probeTimeout = probe
	}
	if call > 0 {
		g.callTimeout = call
	}
}

// ServerInfo returns the gateway server info.
func (g *Gateway) ServerInfo() ServerInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.serverInfo
}

// Sessions returns the session manager.
func (g *Gateway) Sessions() *SessionManager {
	return g.sessions
}

// StartCleanup drops idle sessions in the background until ctx ends or
// Close is called.
func (g *Gateway) StartCleanup(ctx context.Context) {
	ctx, g.cancel = context.WithCancel(ctx)
	go func() {
		tick := time.NewTicker(sessionSweepEvery)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				g.sweepSessions()
			}
		}
	}()
}

func (g *Gateway) sweepSessions() {
	dropped, live := g.sessions.Sweep(sessionIdleTTL)
	if dropped > 0 {
		g.logger.Info("idle sessions dropped", "dropped", dropped, "live", live)
		return
	}
	g.logger.Debug("session sweep", "live", live)
}

// Close stops background session cleanup.
func (g *Gateway) Close() {
	if g.cancel != nil {
		g.cancel()
	}
}

// HandleInitialize handles the initialize request.
func (g *Gateway) HandleInitialize(params InitializeParams) (*InitializeResult, *Session) {
	session := g.sessions.Create(params.ClientInfo)
	g.logger.Info("client initialized",
		"session", session.ID,
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version)

	return &InitializeResult{
		ProtocolVersion: MCPProtocolVersion,
		ServerInfo:      g.ServerInfo(),
		Capabilities: Capabilities{
			Tools: &ToolsCapability{},
		},
		Instructions: "Exposes every registered application's OpenAPI operations and every native MCP server's tools. " +
			"Use tools/list to discover tools and tools/call to invoke them.",
	}, session
}

// probe is the outcome of listing one native server.
type probe struct {
	server store.Server
	tools  []NativeTool
	err    error
}

// ListTools returns every tool the caller may see: catalog tools and the
// prefixed tools of every reachable native server, minus denied ones.
func (g *Gateway) ListTools(ctx context.Context) ([]Tool, error) {
	ctx, span := tracer.Start(ctx, "mcp.list_tools")
	defer span.End()

	var (
		cat    *catalog.Catalog
		probes []probe
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		c, err := g.catalog.BuildCatalog(egCtx, false, nil)
		if err != nil {
			return fmt.Errorf("building catalog: %w", err)
		}
		cat = c
		return nil
	})
	eg.Go(func() error {
		probes = g.probeServers(egCtx)
		return nil
	})
	if err := eg.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, err
	}

	defs := cat.Sorted()
	owners := make([]string, 0, len(defs)+len(probes))
	for _, def := range defs {
		owners = append(owners, store.AppOwner(def.App))
	}
	for _, p := range probes {
		owners = append(owners, p.server.OwnerID())
	}
	table, err := g.resolver.Snapshot(ctx, owners)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "policy lookup failed")
		return nil, err
	}

	tools := make([]Tool, 0, len(defs))
	for _, def := range defs {
		ref := OpenAPIRef{Definition: def}
		if !policy.Visible(table.Resolve(ref.OwnerID(), ref.PolicyToolID())) {
			continue
		}
		schema, err := json.Marshal(def.InputSchema)
		if err != nil {
			g.logger.Warn("dropping tool with unencodable schema", "tool", def.Name, "error", err)
			continue
		}
		tools = append(tools, Tool{
			Name:        def.Name,
			Title:       def.Title,
			Description: def.Description,
			InputSchema: schema,
		})
	}

	for _, p := range probes {
		if p.err != nil {
			continue
		}
		for _, nt := range p.tools {
			ref := NativeRef{Server: p.server.Name, Tool: nt.Name}
			if !policy.Visible(table.Resolve(ref.OwnerID(), ref.PolicyToolID())) {
				continue
			}
			tools = append(tools, nativeTool(p.server.Name, nt))
		}
	}

	span.SetAttributes(attribute.Int("toolgate.tools", len(tools)))
	return tools, nil
}

// nativeTool renders a native tool under its prefixed public name.
func nativeTool(server string, nt NativeTool) Tool {
	desc := nt.Description
	if desc == "" {
		desc = "No description"
	}
	schema := nt.InputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{}`)
	}
	return Tool{
		Name:        registry.NativeToolName(server, nt.Name),
		Title:       nt.Name,
		Description: fmt.Sprintf("[MCP: %s] %s", server, desc),
		InputSchema: schema,
	}
}

// probeServers lists every enabled server in parallel. A server that cannot
// be reached is logged and reported with its error; it never fails the
// listing.
func (g *Gateway) probeServers(ctx context.Context) []probe {
	servers, err := g.servers.ListEnabledServers(ctx)
	if err != nil {
		g.logger.Warn("loading MCP servers failed", "error", err)
		return nil
	}

	probes := make([]probe, len(servers))
	var wg sync.WaitGroup
	for i, srv := range servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tools, err := g.probe(ctx, srv)
			sort.Slice(tools, func(a, b int) bool { return tools[a].Name < tools[b].Name })
			probes[i] = probe{server: srv, tools: tools, err: err}
			if err != nil {
				g.logger.Warn("MCP server unreachable", "server", srv.Name, "url", srv.BaseURL, "error", err)
			}
			g.reconcileProbe(ctx, probes[i])
		}()
	}
	wg.Wait()

	sort.SliceStable(probes, func(i, j int) bool { return probes[i].server.Name < probes[j].server.Name })
	return probes
}

func (g *Gateway) probe(ctx context.Context, srv store.Server) ([]NativeTool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.probeTimeout)
	defer cancel()

	client, err := g.dialer.Dial(ctx, targetOf(srv))
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return client.ListTools(ctx)
}

// reconcileProbe writes a successful probe to the registry. Failures are
// logged only.
func (g *Gateway) reconcileProbe(ctx context.Context, p probe) {
	if g.reconciler == nil || p.err != nil {
		return
	}
	snap := registry.Snapshot{
		OwnerID: p.server.OwnerID(),
		Source:  store.SourceMCP,
		Alive:   true,
		Tools:   make([]registry.DiscoveredTool, 0, len(p.tools)),
	}
	for _, nt := range p.tools {
		snap.Tools = append(snap.Tools, registry.DiscoveredTool{
			Name:        nt.Name,
			Description: nt.Description,
			DisplayName: nt.Title,
		})
	}
	if _, err := g.reconciler.Reconcile(ctx, snap.OwnerID, snap, p.server.SelectedToolNames); err != nil {
		g.logger.Warn("registry sync for MCP server failed", "server", p.server.Name, "error", err)
	}
}

func targetOf(srv store.Server) Target {
	return Target{Name: srv.Name, BaseURL: srv.BaseURL, Domain: srv.Domain}
}

// Resolve maps a public tool name to its ToolRef. An OpenAPI name missing
// from the cached catalog triggers one forced rebuild before it is reported
// unknown.
func (g *Gateway) Resolve(ctx context.Context, name string) (ToolRef, error) {
	if IsNativeName(name) {
		return ParseNativeName(name)
	}

	cat, err := g.catalog.BuildCatalog(ctx, false, nil)
	if err != nil {
		return nil, fmt.Errorf("building catalog: %w", err)
	}
	if def, ok := cat.Lookup(name); ok {
		return OpenAPIRef{Definition: def}, nil
	}

	g.logger.Debug("tool not in cached catalog, refreshing", "tool", name)
	cat, err = g.catalog.BuildCatalog(ctx, true, nil)
	if err != nil {
		return nil, fmt.Errorf("building catalog: %w", err)
	}
	if def, ok := cat.Lookup(name); ok {
		return OpenAPIRef{Definition: def}, nil
	}
	return nil, &unknownToolError{name: name}
}

// CallTool resolves name, checks access and invokes the tool. Malformed or
// unknown names and policy refusals are returned as errors; failures of the
// call itself are reported in the result.
func (g *Gateway) CallTool(ctx context.Context, name string, args map[string]any) (*ToolCallResult, error) {
	ctx, span := tracer.Start(ctx, "mcp.call_tool")
	defer span.End()
	span.SetAttributes(attribute.String("toolgate.tool", name))

	result, err := g.callTool(ctx, name, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "call refused")
		return nil, err
	}
	if result.IsError {
		span.SetStatus(codes.Error, "tool error")
	}
	return result, nil
}

func (g *Gateway) callTool(ctx context.Context, name string, args map[string]any) (*ToolCallResult, error) {
	ref, err := g.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	switch r := ref.(type) {
	case NativeRef:
		return g.callNative(ctx, r, args)
	case OpenAPIRef:
		return g.callOpenAPI(ctx, r, args)
	default:
		return nil, fmt.Errorf("unsupported tool reference %T", ref)
	}
}

func (g *Gateway) callNative(ctx context.Context, ref NativeRef, args map[string]any) (*ToolCallResult, error) {
	srv, err := g.servers.GetServer(ctx, ref.Server)
	if errors.Is(err, store.ErrNotFound) || (err == nil && (!srv.Enabled || srv.Deleted)) {
		return nil, fmt.Errorf("%w: MCP server '%s' not found", ErrUnknownTool, ref.Server)
	}
	if err != nil {
		return nil, fmt.Errorf("loading MCP server %s: %w", ref.Server, err)
	}

	if err := g.authorize(ctx, ref, ref.Name(), args); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	logger := g.logger.With("server", ref.Server, "tool", ref.Tool)
	client, err := g.dialer.Dial(ctx, targetOf(srv))
	if err != nil {
		logger.Warn("connecting to MCP server failed", "error", err)
		return errorResult(fmt.Sprintf("MCP server '%s' unavailable: %v", ref.Server, err)), nil
	}
	defer client.Close()

	start := time.Now()
	result, err := client.CallTool(ctx, ref.Tool, args)
	if err != nil {
		logger.Warn("native tool call failed", "error", err, "duration", time.Since(start))
		return errorResult(fmt.Sprintf("calling '%s' on MCP server '%s' failed: %v", ref.Tool, ref.Server, err)), nil
	}
	logger.Debug("native tool call completed", "is_error", result.IsError, "duration", time.Since(start))
	if result.Content == nil {
		result.Content = []Content{}
	}
	return result, nil
}

func (g *Gateway) callOpenAPI(ctx context.Context, ref OpenAPIRef, args map[string]any) (*ToolCallResult, error) {
	def := ref.Definition
	if err := g.authorize(ctx, ref, def.Name, args); err != nil {
		return nil, err
	}

	res, err := g.invoker.Invoke(ctx, def, args)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		g.logger.Info("tool call unsuccessful", "tool", def.Name, "status", res.StatusCode, "error", res.Error)
	}

	text, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encoding result of %s: %w", def.Name, err)
	}
	return &ToolCallResult{
		Content:           []Content{NewTextContent(string(text))},
		StructuredContent: res,
		IsError:           !res.OK,
	}, nil
}

// authorize resolves the caller's mode for ref. Deny is refused outright;
// approval defers to the Approver, and fails without one.
func (g *Gateway) authorize(ctx context.Context, ref ToolRef, publicName string, args map[string]any) error {
	owner, toolID := ref.OwnerID(), ref.PolicyToolID()
	mode, err := g.resolver.Resolve(ctx, owner, toolID)
	if err != nil {
		return err
	}

	switch mode {
	case store.ModeAllow:
		return nil
	case store.ModeApproval:
		if g.approver == nil {
			return fmt.Errorf("%w for tool '%s' on '%s'", ErrApprovalRequired, toolID, owner)
		}
		err := g.approver.Approve(ctx, ApprovalRequest{
			OwnerID:   owner,
			ToolID:    toolID,
			ToolName:  publicName,
			Arguments: args,
		})
		if err != nil {
			g.logger.Info("tool call not approved", "owner", owner, "tool", toolID, "error", err)
			if errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrApprovalRequired) {
				return err
			}
			return fmt.Errorf("%w for tool '%s' on '%s': %w", ErrApprovalRequired, toolID, owner, err)
		}
		return nil
	default:
		g.logger.Info("tool call denied", "owner", owner, "tool", toolID)
		return fmt.Errorf("%w to tool '%s' on '%s'", ErrAccessDenied, toolID, owner)
	}
}

func errorResult(text string) *ToolCallResult {
	return &ToolCallResult{Content: []Content{NewTextContent(text)}, IsError: true}
}
