package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rbright/trace/internal/analysis"
)

// Theme defines the verdict palette.
type Theme struct {
	Authentic lipgloss.Color
	Synthetic lipgloss.Color
	Accent    lipgloss.Color
	Dim       lipgloss.Color
}

// DefaultTheme matches the web front-end's green/red verdict colors.
var DefaultTheme = Theme{
	Authentic: lipgloss.Color("#00ff9f"),
	Synthetic: lipgloss.Color("#ff4d6d"),
	Accent:    lipgloss.Color("#7aa2f7"),
	Dim:       lipgloss.Color("#6e7681"),
}

type styles struct {
	title    lipgloss.Style
	bonafide lipgloss.Style
	spoof    lipgloss.Style
	label    lipgloss.Style
	dim      lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{title: plain, bonafide: plain, spoof: plain, label: plain, dim: plain}
	}
	t := DefaultTheme
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(t.Accent),
		bonafide: lipgloss.NewStyle().Bold(true).Foreground(t.Authentic),
		spoof:    lipgloss.NewStyle().Bold(true).Foreground(t.Synthetic),
		label:    lipgloss.NewStyle().Bold(true),
		dim:      lipgloss.NewStyle().Foreground(t.Dim),
	}
}

const labelWidth = 14

func renderText(r analysis.Report, opts Options) string {
	s := newStyles(opts.Color)
	verdict := s.bonafide
	if r.Decision == analysis.Spoof {
		verdict = s.spoof
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s  %s\n", s.title.Render("TRACE"), verdict.Render(string(r.Decision)), r.Decision.Label())
	b.WriteString("\n")

	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", s.label.Render(fmt.Sprintf("%-*s", labelWidth, label)), value)
	}
	row("Summary", r.Summary)
	row("Authenticity", percent(r.Scores.Authenticity))
	row("Confidence", percent(r.Scores.Confidence))

	provenance := fmt.Sprintf("human %s / synthetic %s", percent(r.Provenance.HumanProbability), percent(r.Provenance.SyntheticProbability))
	if r.Provenance.Derived {
		provenance += " " + s.dim.Render("(derived from authenticity)")
	}
	row("Provenance", provenance)

	if strings.TrimSpace(r.Explanation) != "" {
		b.WriteString("\n")
		b.WriteString(s.label.Render("Explanation"))
		b.WriteString("\n")
		for _, line := range strings.Split(strings.TrimSpace(r.Explanation), "\n") {
			b.WriteString("  " + strings.TrimSpace(line) + "\n")
		}
	}

	if opts.ShowFindings {
		section := func(title string, items []string) {
			b.WriteString("\n")
			b.WriteString(s.label.Render(title))
			b.WriteString("\n")
			if len(items) == 0 {
				b.WriteString("  " + s.dim.Render("none reported") + "\n")
				return
			}
			for _, item := range items {
				b.WriteString("  - " + item + "\n")
			}
		}
		section("Spectral anomalies", r.Findings.SpectralAnomalies)
		section("Temporal inconsistencies", r.Findings.TemporalInconsistencies)
		section("Synthetic artifacts", r.Findings.SyntheticArtifacts)
	}

	return b.String()
}

func percent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}
