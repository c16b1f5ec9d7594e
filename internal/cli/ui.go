package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/matzehuels/npmscout/pkg/model"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorBlue   = lipgloss.Color("75")  // Light blue - links
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Public Styles
// =============================================================================

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleLink for URLs.
	StyleLink = lipgloss.NewStyle().Foreground(colorBlue).Underline(true)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleCached   = lipgloss.NewStyle().Foreground(colorGreen)
	styleComputed = lipgloss.NewStyle().Foreground(colorGray)
	styleHeader   = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// =============================================================================
// Status Output
// =============================================================================

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconSuccess.Render(iconSuccess)+" "+fmt.Sprintf(format, args...))
}

func printError(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconError.Render(iconError)+" "+fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconWarning.Render(iconWarning)+" "+StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconInfo.Render(iconInfo)+" "+fmt.Sprintf(format, args...))
}

// printDetail prints an indented, dimmed line.
func printDetail(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, "  "+StyleDim.Render(fmt.Sprintf(format, args...)))
}

// printFile prints a file output line.
func printFile(w io.Writer, path string) {
	fmt.Fprintln(w, "  "+StyleDim.Render(iconArrow)+" "+StyleValue.Render(path))
}

// printKeyValue prints a labeled value. Empty values are skipped.
func printKeyValue(w io.Writer, key, value string) {
	if value == "" {
		return
	}
	keyStyle := lipgloss.NewStyle().Foreground(colorGray).Width(14)
	fmt.Fprintln(w, keyStyle.Render(key)+" "+StyleValue.Render(value))
}

func printLink(w io.Writer, key, url string) {
	if url == "" {
		return
	}
	keyStyle := lipgloss.NewStyle().Foreground(colorGray).Width(14)
	fmt.Fprintln(w, keyStyle.Render(key)+" "+StyleLink.Render(url))
}

// printStats prints dot-separated counters on one line.
func printStats(w io.Writer, parts ...string) {
	var b strings.Builder
	b.WriteString("  ")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i > 0 && b.Len() > 2 {
			b.WriteString(StyleDim.Render(" · "))
		}
		b.WriteString(StyleDim.Render(part))
	}
	fmt.Fprintln(w, b.String())
}

// =============================================================================
// Packages
// =============================================================================

// printPackageTable renders search results as a table.
func printPackageTable(w io.Writer, pkgs []model.EnrichedPackage) {
	rows := make([][]string, 0, len(pkgs))
	for i, p := range pkgs {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			p.Name,
			p.LatestVersion,
			humanize.Comma(int64(p.Stars)),
			formatDownloads(p),
			truncate(p.Description, 60),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("#", "Package", "Version", "Stars", "Weekly", "Description").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == -1:
				return styleHeader
			case col == 1 && row < len(pkgs) && pkgs[row].Enriched:
				return lipgloss.NewStyle().Foreground(colorGreen)
			case col == 0 || col == 5:
				return lipgloss.NewStyle().Foreground(colorGray)
			}
			return lipgloss.NewStyle()
		})
	fmt.Fprintln(w, t.Render())
}

// printPackage prints the details of one package.
func printPackage(w io.Writer, p *model.EnrichedPackage, cached bool) {
	title := p.Name
	if p.LatestVersion != "" {
		title += "@" + p.LatestVersion
	}
	fmt.Fprintln(w, StyleTitle.Render(title))
	if p.Description != "" {
		fmt.Fprintln(w, StyleDim.Render(p.Description))
	}
	fmt.Fprintln(w)

	if p.Deprecated != "" {
		printWarning(w, "deprecated: %s", p.Deprecated)
	}
	printKeyValue(w, "License", p.License)
	printKeyValue(w, "Author", p.Author)
	printKeyValue(w, "Maintainers", maintainerNames(p.Maintainers))
	printLink(w, "Homepage", p.Homepage)
	printLink(w, "Repository", p.RepositoryURL)
	printKeyValue(w, "Keywords", strings.Join(p.Keywords, ", "))
	if p.Stars > 0 {
		printKeyValue(w, "Stars", humanize.Comma(int64(p.Stars)))
	}
	if p.DependentsCount > 0 {
		printKeyValue(w, "Dependents", humanize.Comma(int64(p.DependentsCount)))
	}
	if p.VersionsCount > 0 {
		printKeyValue(w, "Versions", strconv.Itoa(p.VersionsCount))
	}
	if n := len(p.Dependencies); n > 0 {
		printKeyValue(w, "Dependencies", dependencyList(p.Dependencies))
	}
	if p.UnpackedSize > 0 {
		printKeyValue(w, "Unpacked", fmt.Sprintf("%s in %d files", humanize.Bytes(uint64(p.UnpackedSize)), p.FileCount))
	}
	printKeyValue(w, "Created", formatTime(p.CreatedAt))
	printKeyValue(w, "Published", formatTime(p.LatestPublishedAt))
	for _, period := range model.DefaultPeriods {
		if n, ok := p.Downloads[period]; ok {
			printKeyValue(w, "Downloads", fmt.Sprintf("%s (%s)", humanize.Comma(n), period))
		}
	}

	status, style := "fresh", styleComputed
	if cached {
		status, style = "cached", styleCached
	}
	if !p.Enriched {
		status, style = "not enriched", StyleWarning
	}
	fmt.Fprintln(w)
	printStats(w, style.Render(status), formatTime(p.EnrichedAt))
}

// printTree prints a file listing as an indented tree.
func printTree(w io.Writer, root *model.FileNode) {
	root.Walk(func(n *model.FileNode, depth int) bool {
		if depth == 0 {
			return true
		}
		name := n.Path[strings.LastIndex(n.Path, "/")+1:]
		indent := strings.Repeat("  ", depth-1)
		if n.IsDir() {
			fmt.Fprintln(w, indent+StyleTitle.Render(name+"/"))
		} else {
			fmt.Fprintln(w, indent+name+" "+StyleDim.Render(humanize.Bytes(uint64(n.Size))))
		}
		return true
	})
	files, size := root.Stats()
	fmt.Fprintln(w)
	printStats(w, humanize.Comma(int64(files))+" files", humanize.Bytes(uint64(size)))
}

// =============================================================================
// Formatting
// =============================================================================

func formatDownloads(p model.EnrichedPackage) string {
	if !p.Enriched {
		return "-"
	}
	return humanize.Comma(p.WeeklyDownloads())
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02") + " (" + humanize.Time(t) + ")"
}

func maintainerNames(ms []model.Maintainer) string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Name
	}
	return strings.Join(names, ", ")
}

func dependencyList(deps map[string]string) string {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 8 {
		return fmt.Sprintf("%s, +%d more", strings.Join(names[:8], ", "), len(names)-8)
	}
	return strings.Join(names, ", ")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
