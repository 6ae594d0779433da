package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	frameInterval = 150 * time.Millisecond
	barWidth      = 20
	columnGap     = "  "
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type frameMsg time.Time

// Column is one table column. Width is a minimum; the header always fits.
type Column struct {
	Header string
	Width  int
}

// Row is one package line of the table.
type Row struct {
	Key    string
	Fields []string
}

// ProgressModel renders the install table: one row per package, a status
// line with the package counter underneath. Rows arrive through AddRowMsg
// because a version's package list is only known once its manifest is in.
type ProgressModel struct {
	title   string
	columns []Column
	widths  []int
	status  int

	rows     []Row
	rowIndex map[string]int

	footer FooterMsg
	frame  int
	done   bool
	err    error
}

// NewProgressModel creates an empty table.
func NewProgressModel(title string, columns []Column) ProgressModel {
	m := ProgressModel{
		title:    title,
		columns:  columns,
		widths:   make([]int, len(columns)),
		status:   -1,
		rowIndex: make(map[string]int),
	}
	for i, c := range columns {
		m.widths[i] = max(len(c.Header), c.Width)
		if m.status < 0 && strings.EqualFold(c.Header, "STATUS") {
			m.status = i
		}
	}
	return m
}

// AddRow appends a row. A key that is already present keeps its fields.
func (m *ProgressModel) AddRow(key string, fields []string) {
	if _, ok := m.rowIndex[key]; ok {
		return
	}
	row := Row{Key: key, Fields: make([]string, len(m.columns))}
	copy(row.Fields, fields)
	m.rowIndex[key] = len(m.rows)
	m.rows = append(m.rows, row)
}

func nextFrame() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (m ProgressModel) Init() tea.Cmd {
	return nextFrame()
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.frame++
		if m.done {
			return m, nil
		}
		return m, nextFrame()
	case AddRowMsg:
		m.AddRow(msg.Key, msg.Fields)
	case RowUpdateMsg:
		m.update(msg)
	case FooterMsg:
		m.footer = msg
	case WorkDoneMsg:
		m.done = true
		return m, tea.Quit
	case ErrorMsg:
		m.done, m.err = true, msg.Err
		return m, tea.Quit
	case tea.KeyMsg:
		if k := msg.String(); k == "ctrl+c" || k == "q" {
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *ProgressModel) update(msg RowUpdateMsg) {
	idx, ok := m.rowIndex[msg.Key]
	if !ok {
		return
	}
	for i, c := range m.columns {
		if v, ok := msg.Fields[c.Header]; ok {
			m.rows[idx].Fields[i] = v
		}
	}
}

func (m ProgressModel) View() string {
	if m.done && m.err != nil {
		return fmt.Sprintf("Error: %v\n", m.err)
	}
	var b strings.Builder
	if m.title != "" {
		b.WriteString(TitleStyle.Render(m.title) + "\n\n")
	}

	cells := make([]string, len(m.columns))
	for i, c := range m.columns {
		cells[i] = HeaderStyle.Render(pad(c.Header, m.widths[i]))
	}
	b.WriteString(strings.Join(cells, columnGap) + "\n")
	for _, row := range m.rows {
		for i := range m.columns {
			v := clip(row.Fields[i], m.widths[i])
			if i == m.status {
				cells[i] = StatusStyle(v).Render(pad(v, m.widths[i]))
			} else {
				cells[i] = pad(v, m.widths[i])
			}
		}
		b.WriteString(strings.Join(cells, columnGap) + "\n")
	}

	if !m.done {
		b.WriteString("\n" + m.statusLine() + "\n")
	}
	return b.String()
}

func (m ProgressModel) statusLine() string {
	text := m.footer.Text
	if text == "" {
		text = "Installing"
	}
	spinner := spinnerFrames[m.frame%len(spinnerFrames)]
	if done, total := m.progressCounts(); total > 0 {
		return fmt.Sprintf("%s %s %d/%d packages...", spinner, text, done, total)
	}
	return fmt.Sprintf("%s %s...", spinner, text)
}

// progressCounts uses the installer's own counter when it has reported one,
// otherwise the number of rows that are no longer pending.
func (m ProgressModel) progressCounts() (int, int) {
	if m.footer.Total > 0 {
		return m.footer.Done, m.footer.Total
	}
	if m.status < 0 {
		return 0, len(m.rows)
	}
	started := 0
	for _, row := range m.rows {
		if s := strings.TrimSpace(row.Fields[m.status]); s != "" && s != StatusPending {
			started++
		}
	}
	return started, len(m.rows)
}

// Done reports whether the table stopped, on completion, error or quit.
func (m ProgressModel) Done() bool { return m.done }

// Err is the error that stopped the table, if any.
func (m ProgressModel) Err() error { return m.err }

// Bar renders fraction as a fixed-width bar with a percentage. Negative
// fractions mean the size is unknown.
func Bar(fraction float64) string {
	if fraction < 0 {
		return "[" + strings.Repeat("~", barWidth) + "]"
	}
	fraction = min(fraction, 1)
	filled := int(fraction * barWidth)
	return fmt.Sprintf("[%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat(".", barWidth-filled), int(fraction*100))
}

func pad(s string, width int) string {
	if n := width - len(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

// clip shortens s to width, marking the cut with "...".
func clip(s string, width int) string {
	s = strings.TrimSpace(s)
	switch {
	case width <= 0:
		return ""
	case len(s) <= width:
		return s
	case width <= 3:
		return s[:width]
	}
	return s[:width-3] + "..."
}

// OrDash returns "-" for a blank value.
func OrDash(value string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return "-"
}
