package tui

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func newInstallModel() ProgressModel {
	return NewProgressModel("Installing version-abc", InstallColumns)
}

func TestRowUpdateMsg(t *testing.T) {
	m := newInstallModel()
	m.AddRow("content-fonts.zip", []string{"content-fonts.zip", StatusPending, ""})
	m.AddRow("RobloxApp.zip", []string{"RobloxApp.zip", StatusPending, ""})

	updated, _ := m.Update(RowUpdateMsg{
		Key:    "content-fonts.zip",
		Fields: map[string]string{"STATUS": StatusDownloading, "PROGRESS": Bar(0.5)},
	})
	m = updated.(ProgressModel)

	if m.rows[0].Fields[1] != StatusDownloading {
		t.Errorf("expected STATUS=downloading, got %q", m.rows[0].Fields[1])
	}
	if !strings.Contains(m.rows[0].Fields[2], "50%") {
		t.Errorf("expected PROGRESS to show 50%%, got %q", m.rows[0].Fields[2])
	}
	if m.rows[1].Fields[1] != StatusPending {
		t.Errorf("expected row 2 STATUS=pending, got %q", m.rows[1].Fields[1])
	}
}

func TestRowUpdateMsg_UnknownKey(t *testing.T) {
	m := NewProgressModel("test", []Column{{Header: "STATUS", Width: 10}})
	m.AddRow("a.zip", []string{StatusPending})

	updated, _ := m.Update(RowUpdateMsg{
		Key:    "b.zip",
		Fields: map[string]string{"STATUS": StatusInstalled},
	})
	m = updated.(ProgressModel)

	if len(m.rows) != 1 || m.rows[0].Fields[0] != StatusPending {
		t.Errorf("expected rows unchanged, got %+v", m.rows)
	}
}

func TestAddRowMsgIgnoresDuplicates(t *testing.T) {
	m := newInstallModel()
	updated, _ := m.Update(AddRowMsg{Key: "a.zip", Fields: []string{"a.zip", StatusPending}})
	m = updated.(ProgressModel)
	updated, _ = m.Update(AddRowMsg{Key: "a.zip", Fields: []string{"a.zip", StatusError}})
	m = updated.(ProgressModel)

	if len(m.rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(m.rows))
	}
	if m.rows[0].Fields[1] != StatusPending {
		t.Errorf("expected first AddRow to win, got %q", m.rows[0].Fields[1])
	}
	if len(m.rows[0].Fields) != len(InstallColumns) {
		t.Errorf("expected fields padded to %d, got %d", len(InstallColumns), len(m.rows[0].Fields))
	}
}

func TestWorkDoneMsg(t *testing.T) {
	m := newInstallModel()

	updated, cmd := m.Update(WorkDoneMsg{})
	m = updated.(ProgressModel)

	if !m.Done() {
		t.Error("expected Done() to be true after WorkDoneMsg")
	}
	if cmd == nil {
		t.Error("expected tea.Quit command")
	}
}

func TestErrorMsg(t *testing.T) {
	m := newInstallModel()

	updated, cmd := m.Update(ErrorMsg{Err: tea.ErrProgramKilled})
	m = updated.(ProgressModel)

	if !m.Done() {
		t.Error("expected Done() to be true after ErrorMsg")
	}
	if m.Err() == nil {
		t.Error("expected Err() to be non-nil")
	}
	if cmd == nil {
		t.Error("expected tea.Quit command")
	}
	if !strings.HasPrefix(m.View(), "Error: ") {
		t.Errorf("expected error view, got %q", m.View())
	}
}

func TestView(t *testing.T) {
	m := newInstallModel()
	m.AddRow("content-fonts.zip", []string{"content-fonts.zip", StatusPending, ""})
	m.AddRow("RobloxApp.zip", []string{"RobloxApp.zip", StatusInstalled, Bar(1)})

	view := m.View()

	for _, want := range []string{"PACKAGE", "STATUS", "PROGRESS", "content-fonts.zip", "RobloxApp.zip", "pending", "installed", "100%"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		fraction float64
		want     string
	}{
		{0, "[....................]   0%"},
		{0.5, "[##########..........]  50%"},
		{1, "[####################] 100%"},
		{2, "[####################] 100%"},
		{-1, "[~~~~~~~~~~~~~~~~~~~~]"},
	}
	for _, tt := range tests {
		if got := Bar(tt.fraction); got != tt.want {
			t.Errorf("Bar(%v) = %q, want %q", tt.fraction, got, tt.want)
		}
	}
}

func TestOrDash(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "-"},
		{"  ", "-"},
		{"hello", "hello"},
		{" hello ", "hello"},
	}
	for _, tt := range tests {
		got := OrDash(tt.input)
		if got != tt.want {
			t.Errorf("OrDash(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestClip(t *testing.T) {
	tests := []struct {
		input string
		max   int
		want  string
	}{
		{"short", 10, "short"},
		{"a longer string here", 10, "a longe..."},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc"},
		{"", 5, ""},
		{"hello", 0, ""},
	}
	for _, tt := range tests {
		got := clip(tt.input, tt.max)
		if got != tt.want {
			t.Errorf("clip(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
		}
	}
}

func TestFramesStopAfterDone(t *testing.T) {
	m := newInstallModel()

	updated, cmd := m.Update(frameMsg{})
	m = updated.(ProgressModel)
	if m.frame != 1 {
		t.Fatalf("expected frame=1, got %d", m.frame)
	}
	if cmd == nil {
		t.Fatal("expected next frame command")
	}

	updated, _ = m.Update(WorkDoneMsg{})
	m = updated.(ProgressModel)
	_, cmd = m.Update(frameMsg{})
	if cmd != nil {
		t.Error("expected no frame command after done")
	}
}

func TestProgressCounts(t *testing.T) {
	m := newInstallModel()
	m.AddRow("a.zip", []string{"a.zip", StatusPending})
	m.AddRow("b.zip", []string{"b.zip", StatusPending})
	m.AddRow("c.zip", []string{"c.zip", StatusInstalled})

	processed, total := m.progressCounts()
	if processed != 1 || total != 3 {
		t.Errorf("expected 1/3 from rows, got %d/%d", processed, total)
	}

	updated, _ := m.Update(FooterMsg{Text: "Installing", Done: 7, Total: 20})
	m = updated.(ProgressModel)
	processed, total = m.progressCounts()
	if processed != 7 || total != 20 {
		t.Errorf("expected reported 7/20, got %d/%d", processed, total)
	}
}

func TestViewFooter(t *testing.T) {
	m := newInstallModel()
	m.AddRow("a.zip", []string{"a.zip", StatusPending})

	if view := m.View(); !strings.Contains(view, "Installing 0/1 packages...") {
		t.Errorf("expected install footer, got %q", view)
	}

	updated, _ := m.Update(WorkDoneMsg{})
	m = updated.(ProgressModel)
	if strings.Contains(m.View(), "packages...") {
		t.Error("expected footer hidden when done")
	}
}

func TestCtrlC(t *testing.T) {
	m := newInstallModel()

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = updated.(ProgressModel)

	if !m.Done() {
		t.Error("expected Done() to be true after ctrl+c")
	}
	if cmd == nil {
		t.Error("expected tea.Quit command")
	}
}

func TestInstallReporter(t *testing.T) {
	var msgs []tea.Msg
	r := NewInstallReporter(func(msg tea.Msg) { msgs = append(msgs, msg) })

	r.Progress("Fetching manifest", -1, 0, 0)
	r.Progress("RobloxApp.zip", 0.25, 0, 2)
	r.Progress("RobloxApp.zip", 1, 1, 2)

	m := newInstallModel()
	for _, msg := range msgs {
		updated, _ := m.Update(msg)
		m = updated.(ProgressModel)
	}

	if len(m.rows) != 1 {
		t.Fatalf("expected a single row for the package, got %d", len(m.rows))
	}
	if got := m.rows[0].Fields[1]; got != StatusInstalled {
		t.Errorf("expected installed status, got %q", got)
	}
	if done, total := m.progressCounts(); done != 1 || total != 2 {
		t.Errorf("expected 1/2, got %d/%d", done, total)
	}

	if _, ok := msgs[0].(FooterMsg); !ok {
		t.Errorf("expected phase message to become a footer, got %T", msgs[0])
	}
}

func TestPackageStatus(t *testing.T) {
	if got := packageStatus(-1); got != StatusExtracting {
		t.Errorf("packageStatus(-1) = %q", got)
	}
	if got := packageStatus(0.3); got != StatusDownloading {
		t.Errorf("packageStatus(0.3) = %q", got)
	}
	if got := packageStatus(1); got != StatusInstalled {
		t.Errorf("packageStatus(1) = %q", got)
	}
}

func TestPlainReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainReporter(&buf)

	r.Progress("Fetching manifest", -1, 0, 0)
	r.Progress("a.zip", 0.5, 0, 2)
	r.Progress("a.zip", 1, 1, 2)
	r.Progress("Error: boom", 0, 1, 2)

	want := "Fetching manifest\n[1/2] a.zip\nError: boom\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestDetectMode(t *testing.T) {
	var buf bytes.Buffer
	if got := DetectMode(&buf, false, true); got != ModeJSON {
		t.Errorf("expected JSON mode, got %v", got)
	}
	if got := DetectMode(&buf, true, false); got != ModePlain {
		t.Errorf("expected plain mode with --no-progress, got %v", got)
	}
	if got := DetectMode(&buf, false, false); got != ModePlain {
		t.Errorf("expected plain mode for a buffer, got %v", got)
	}
}

func TestViewClipsLongPackageNames(t *testing.T) {
	m := newInstallModel()
	long := "extracontent-translations-and-more.zip"
	m.AddRow(long, []string{long, StatusDownloading, Bar(0.25)})

	view := m.View()
	if strings.Contains(view, long) {
		t.Fatalf("expected %q to be clipped, got %q", long, view)
	}
	if !strings.Contains(view, long[:25]+"...") {
		t.Errorf("expected clipped name in view, got %q", view)
	}
}
