package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gridctl/toolgate/internal/api"
	"github.com/gridctl/toolgate/pkg/catalog"
	"github.com/gridctl/toolgate/pkg/config"
	"github.com/gridctl/toolgate/pkg/output"
	"github.com/gridctl/toolgate/pkg/policy"
	"github.com/gridctl/toolgate/pkg/store"
)

var (
	catalogRetries int
	catalogJSON    bool
	catalogTools   bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Discover registered applications and print the tool catalog",
	Long: `Runs one forced discovery pass over every enabled application, syncs the
tool registry, and prints per-application diagnostics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return runCatalog(ctx, cmd.OutOrStdout())
	},
}

func init() {
	catalogCmd.Flags().IntVarP(&catalogRetries, "retries", "r", -1, "Discovery rounds override (default: catalog.fetch_retries)")
	catalogCmd.Flags().BoolVar(&catalogJSON, "json", false, "Print the catalog as JSON")
	catalogCmd.Flags().BoolVarP(&catalogTools, "tools", "t", false, "Also list every tool with its access mode")
}

func runCatalog(ctx context.Context, w io.Writer) error {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	cfg, err := config.LoadConfig(absPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var retries *int
	if catalogRetries >= 0 {
		retries = &catalogRetries
	}
	cat, err := a.builder.BuildCatalog(ctx, true, retries)
	if err != nil {
		return fmt.Errorf("building catalog: %w", err)
	}

	servers, err := a.store.ListEnabledServers(ctx)
	if err != nil {
		return fmt.Errorf("listing MCP servers: %w", err)
	}

	resp := api.NewCatalogResponse(cat, len(servers))
	if catalogJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	printer := output.NewWithWriter(w)
	printer.Apps(appRows(cat.Apps))
	if catalogTools {
		rows, err := toolRows(ctx, a.resolver, cat)
		if err != nil {
			return err
		}
		printer.Tools(rows)
	}
	printer.SyncErrors(cat.SyncErrors)
	printer.Totals(output.CatalogTotals{
		Apps:          resp.Summary.TotalApps,
		Healthy:       resp.Summary.Healthy,
		ZeroEndpoints: resp.Summary.ZeroEndpoints,
		Unreachable:   resp.Summary.Unreachable,
		Tools:         resp.Summary.ToolCount,
		MCPServers:    resp.Summary.MCPServers,
	})
	return nil
}

func appRows(apps []catalog.AppDiagnostics) []output.AppRow {
	rows := make([]output.AppRow, 0, len(apps))
	for _, d := range apps {
		rows = append(rows, output.AppRow{
			Name:       d.Name,
			URL:        d.URL,
			Status:     string(d.Status),
			Operations: d.OperationCount,
			Tools:      d.ToolCount,
			Rounds:     d.Rounds,
			LatencyMS:  d.LatencyMS,
			Error:      d.Error,
		})
	}
	return rows
}

// toolRows resolves the access mode of every catalog tool in one snapshot.
func toolRows(ctx context.Context, resolver *policy.Resolver, cat *catalog.Catalog) ([]output.ToolRow, error) {
	tools := cat.Sorted()
	seen := make(map[string]bool)
	var owners []string
	for _, t := range tools {
		owner := store.AppOwner(t.App)
		if !seen[owner] {
			seen[owner] = true
			owners = append(owners, owner)
		}
	}
	table, err := resolver.Snapshot(ctx, owners)
	if err != nil {
		return nil, fmt.Errorf("resolving access policy: %w", err)
	}

	rows := make([]output.ToolRow, 0, len(tools))
	for _, t := range tools {
		owner := store.AppOwner(t.App)
		rows = append(rows, output.ToolRow{
			Name:        t.Name,
			Owner:       owner,
			Method:      t.Method,
			Path:        t.Path,
			Mode:        string(table.Resolve(owner, t.Name)),
			Placeholder: t.IsPlaceholder,
		})
	}
	return rows, nil
}
