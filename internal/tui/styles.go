package tui

import "github.com/charmbracelet/lipgloss"

// Row status values used by the install table.
const (
	StatusPending     = "pending"
	StatusDownloading = "downloading"
	StatusExtracting  = "extracting"
	StatusInstalled   = "installed"
	StatusError       = "error"
)

var (
	// HeaderStyle styles the column header row.
	HeaderStyle = lipgloss.NewStyle().Bold(true)
	// TitleStyle styles the table title.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))

	statusStyles = map[string]lipgloss.Style{
		StatusInstalled: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"cached":        lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"complete":      lipgloss.NewStyle().Foreground(lipgloss.Color("2")),

		StatusDownloading: lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		StatusExtracting:  lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"resolving":       lipgloss.NewStyle().Foreground(lipgloss.Color("4")),

		"skipped": lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		"missing": lipgloss.NewStyle().Foreground(lipgloss.Color("3")),

		StatusError: lipgloss.NewStyle().Foreground(lipgloss.Color("1")),

		StatusPending: lipgloss.NewStyle().Faint(true),
	}
)

// StatusStyle returns the lipgloss style for the given status string.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}
