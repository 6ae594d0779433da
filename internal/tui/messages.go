package tui

// AddRowMsg appends a row unless its key is already present.
type AddRowMsg struct {
	Key    string
	Fields []string
}

// RowUpdateMsg updates a single row's fields by column name.
type RowUpdateMsg struct {
	Key    string
	Fields map[string]string
}

// FooterMsg replaces the status line under the table.
type FooterMsg struct {
	Text  string
	Done  int
	Total int
}

// WorkDoneMsg signals that all background work has completed.
type WorkDoneMsg struct{}

// ErrorMsg signals a fatal error; the TUI should quit.
type ErrorMsg struct {
	Err error
}
