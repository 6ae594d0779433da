package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// InstallColumns is the table layout used while installing a Studio version.
var InstallColumns = []Column{
	{Header: "PACKAGE", Width: 28},
	{Header: "STATUS", Width: 11},
	{Header: "PROGRESS", Width: 27},
}

// Phase messages emitted by the installer that are not package names.
const (
	phaseFetching  = "Fetching manifest"
	phaseInstalled = "Already installed"
	phaseDone      = "Done"
	phaseError     = "Error: "
)

// InstallReporter turns installer progress callbacks into table updates.
// Its Progress method matches the installer's callback shape.
type InstallReporter struct {
	send func(tea.Msg)

	mu   sync.Mutex
	seen map[string]bool
}

// NewInstallReporter returns a reporter that forwards updates through send.
func NewInstallReporter(send func(tea.Msg)) *InstallReporter {
	return &InstallReporter{send: send, seen: make(map[string]bool)}
}

// Progress records one callback. fraction is -1 when the step has no
// measurable progress.
func (r *InstallReporter) Progress(item string, fraction float64, done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if isPhase(item) {
		r.send(FooterMsg{Text: item, Done: done, Total: total})
		return
	}
	if !r.seen[item] {
		r.seen[item] = true
		r.send(AddRowMsg{Key: item, Fields: []string{item, StatusPending, ""}})
	}
	r.send(RowUpdateMsg{Key: item, Fields: map[string]string{
		"STATUS":   packageStatus(fraction),
		"PROGRESS": Bar(fraction),
	}})
	r.send(FooterMsg{Text: "Installing", Done: done, Total: total})
}

func isPhase(item string) bool {
	switch item {
	case phaseFetching, phaseInstalled, phaseDone:
		return true
	}
	return strings.HasPrefix(item, phaseError)
}

func packageStatus(fraction float64) string {
	switch {
	case fraction >= 1:
		return StatusInstalled
	case fraction < 0:
		return StatusExtracting
	default:
		return StatusDownloading
	}
}

// PlainReporter writes one line per finished package and per phase change.
// It is used when stdout is not a terminal.
type PlainReporter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewPlainReporter returns a line-oriented reporter writing to w.
func NewPlainReporter(w io.Writer) *PlainReporter {
	return &PlainReporter{w: w}
}

// Progress implements the installer callback.
func (r *PlainReporter) Progress(item string, fraction float64, done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case isPhase(item):
		fmt.Fprintln(r.w, item)
	case fraction >= 1:
		fmt.Fprintf(r.w, "[%d/%d] %s\n", done, total, item)
	}
}
