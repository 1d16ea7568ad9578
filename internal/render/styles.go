package render

import (
	"github.com/charmbracelet/lipgloss"
)

// Colors shared by text output and the dashboard.
var (
	PrimaryColor = lipgloss.Color("#A78BFA") // violet
	SuccessColor = lipgloss.Color("#10B981") // green
	WarningColor = lipgloss.Color("#F59E0B") // amber
	ErrorColor   = lipgloss.Color("#F87171") // red
	MutedColor   = lipgloss.Color("#9CA3AF") // gray
	BorderColor  = lipgloss.Color("#6B7280")
)

// Styles are the lipgloss styles used for text output. Unstyled output uses
// zero styles, which render text unchanged.
type Styles struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}

// NewStyles returns colored styles, or plain ones when color is false.
func NewStyles(color bool) *Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return &Styles{
			Title:   plain,
			Header:  plain,
			Label:   plain,
			Muted:   plain,
			Success: plain,
			Warning: plain,
			Error:   plain,
			Box:     plain,
		}
	}
	return &Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor),
		Header:  lipgloss.NewStyle().Bold(true),
		Label:   lipgloss.NewStyle().Foreground(MutedColor),
		Muted:   lipgloss.NewStyle().Foreground(MutedColor).Italic(true),
		Success: lipgloss.NewStyle().Foreground(SuccessColor),
		Warning: lipgloss.NewStyle().Foreground(WarningColor),
		Error:   lipgloss.NewStyle().Foreground(ErrorColor).Bold(true),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1),
	}
}

// Level styles a health level or similar severity word.
func (s *Styles) Level(level string) string {
	switch level {
	case "healthy", "approved", "active":
		return s.Success.Render(level)
	case "warning", "warn", "pending", "resolved":
		return s.Warning.Render(level)
	case "critical", "error", "denied", "expired":
		return s.Error.Render(level)
	default:
		return level
	}
}

// Bool renders yes or no in the matching color.
func (s *Styles) Bool(ok bool) string {
	if ok {
		return s.Success.Render("yes")
	}
	return s.Error.Render("no")
}
