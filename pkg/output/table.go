package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// AppRow is one application in the catalog diagnostics table.
type AppRow struct {
	Name       string
	URL        string
	Status     string // healthy, zero_endpoints, unreachable
	Operations int
	Tools      int
	Rounds     int
	LatencyMS  int64
	Error      string
}

// ToolRow is one tool in the tools table.
type ToolRow struct {
	Name        string
	Owner       string
	Method      string
	Path        string
	Mode        string
	Placeholder bool
}

// CatalogTotals is the one-line summary under the diagnostics table.
type CatalogTotals struct {
	Apps          int
	Healthy       int
	ZeroEndpoints int
	Unreachable   int
	Tools         int
	MCPServers    int
}

// maxErrorWidth truncates long discovery errors in the apps table.
const maxErrorWidth = 60

// Apps prints per-application discovery diagnostics.
func (p *Printer) Apps(apps []AppRow) {
	if len(apps) == 0 {
		return
	}

	p.Section("APPLICATIONS")

	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(p.tableStyle())
	t.AppendHeader(table.Row{"Name", "Status", "Ops", "Tools", "Rounds", "Latency", "URL", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Ops", Align: text.AlignRight},
		{Name: "Tools", Align: text.AlignRight},
		{Name: "Rounds", Align: text.AlignRight},
		{Name: "Latency", Align: text.AlignRight},
	})

	for _, a := range apps {
		status := a.Status
		if p.isTTY {
			status = colorStatus(a.Status)
		}
		t.AppendRow(table.Row{
			a.Name, status, a.Operations, a.Tools, a.Rounds,
			fmt.Sprintf("%dms", a.LatencyMS), a.URL, truncate(a.Error, maxErrorWidth),
		})
	}

	t.Render()
	p.Println()
}

// Totals prints the catalog summary line.
func (p *Printer) Totals(s CatalogTotals) {
	line := fmt.Sprintf("%d apps: %d healthy, %d zero endpoints, %d unreachable | %d tools | %d MCP servers",
		s.Apps, s.Healthy, s.ZeroEndpoints, s.Unreachable, s.Tools, s.MCPServers)
	if p.isTTY {
		line = lipgloss.NewStyle().Foreground(ColorGray).Render(line)
	}
	p.Println(line)
}

// Tools prints a tool listing.
func (p *Printer) Tools(tools []ToolRow) {
	if len(tools) == 0 {
		return
	}

	p.Section("TOOLS")

	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(p.tableStyle())
	t.AppendHeader(table.Row{"Name", "Owner", "Method", "Path", "Mode"})

	for _, tool := range tools {
		name := tool.Name
		if tool.Placeholder {
			name += " (placeholder)"
		}
		mode := tool.Mode
		if p.isTTY && mode != "" {
			mode = colorStatus(mode)
		}
		t.AppendRow(table.Row{name, tool.Owner, tool.Method, tool.Path, mode})
	}

	t.Render()
	p.Println()
}

// SyncErrors prints registry sync errors, if any.
func (p *Printer) SyncErrors(errs []string) {
	if len(errs) == 0 {
		return
	}
	p.Section("SYNC ERRORS")
	for _, e := range errs {
		p.Println("  - " + e)
	}
	p.Println()
}

// ReloadSummary prints what a config reload changed.
func (p *Printer) ReloadSummary(added, removed, modified, restart []string) {
	for _, group := range []struct {
		label string
		items []string
	}{
		{"added", added},
		{"removed", removed},
		{"modified", modified},
		{"restart required", restart},
	} {
		if len(group.items) == 0 {
			continue
		}
		p.Info("reload", group.label, strings.Join(group.items, ", "))
	}
}

// colorStatus colors catalog statuses and access modes.
func colorStatus(status string) string {
	var style lipgloss.Style
	switch status {
	case "healthy", "allow":
		style = lipgloss.NewStyle().Foreground(ColorGreen)
	case "unreachable", "deny":
		style = lipgloss.NewStyle().Foreground(ColorRed)
	case "zero_endpoints", "approval":
		style = lipgloss.NewStyle().Foreground(ColorYellow)
	default:
		style = lipgloss.NewStyle().Foreground(ColorGray)
	}
	return style.Render(status)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// tableStyle returns the standard table style.
func (p *Printer) tableStyle() table.Style {
	style := table.StyleRounded
	if p.isTTY {
		style.Color.Header = text.Colors{text.FgHiCyan, text.Bold}
		style.Color.Border = text.Colors{text.FgHiBlack}
	}
	style.Options.SeparateRows = false
	return style
}

// Section prints a section header.
func (p *Printer) Section(title string) {
	if p.isTTY {
		style := lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
		p.Println(style.Render(title))
	} else {
		p.Println(title)
	}
}
