// Package output renders the operator-facing terminal output of the toolgate
// CLI: status lines, the startup banner, and catalog tables.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
)

// Printer writes status lines and tables. Colors are used only on a terminal.
type Printer struct {
	out    io.Writer
	logger *log.Logger
	isTTY  bool
}

// New creates a Printer on stdout.
func New() *Printer {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter creates a Printer on w.
func NewWithWriter(w io.Writer) *Printer {
	p := &Printer{out: w, isTTY: isTerminal(w)}
	p.logger = log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
	if p.isTTY {
		p.logger.SetStyles(logStyles())
	}
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *Printer) Info(msg string, keyvals ...any)  { p.logger.Info(msg, keyvals...) }
func (p *Printer) Warn(msg string, keyvals ...any)  { p.logger.Warn(msg, keyvals...) }
func (p *Printer) Debug(msg string, keyvals ...any) { p.logger.Debug(msg, keyvals...) }

// SetDebug shows or hides Debug lines.
func (p *Printer) SetDebug(enabled bool) {
	level := log.InfoLevel
	if enabled {
		level = log.DebugLevel
	}
	p.logger.SetLevel(level)
}

// Banner prints the product name and version.
func (p *Printer) Banner(ver string) {
	if !p.isTTY {
		fmt.Fprintf(p.out, "toolgate %s\n\n", ver)
		return
	}
	name := lipgloss.NewStyle().Foreground(ColorAccent).Bold(true).Render("toolgate")
	tagline := lipgloss.NewStyle().Foreground(ColorMuted).Render("MCP gateway for OpenAPI apps and MCP servers")
	fmt.Fprintf(p.out, "%s %s\n%s\n\n", name, lipgloss.NewStyle().Foreground(ColorWhite).Render(ver), tagline)
}

// Endpoints lists the routes served on listen.
func (p *Printer) Endpoints(listen string, routes []string) {
	base := listen
	if strings.HasPrefix(base, ":") {
		base = "localhost" + base
	}
	base = "http://" + base

	p.Section("ENDPOINTS")
	for _, route := range routes {
		url := base + route
		if p.isTTY {
			url = lipgloss.NewStyle().Foreground(ColorWhite).Render(url)
		}
		p.Println("  " + url)
	}
	p.Println()
}

// Println writes args followed by a newline, unstyled.
func (p *Printer) Println(args ...any) {
	fmt.Fprintln(p.out, args...)
}
