package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"vinestudio/internal/tui"
)

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// statusProgress returns a status callback suited to out and a stop func
// that must be called once the work is finished.
func statusProgress(out io.Writer) (func(string, float64), func()) {
	switch tui.DetectMode(out, noProgress, outputJSON) {
	case tui.ModeTUI:
		sw := tui.NewStatusWriter(out)
		return sw.Progress, sw.Stop
	case tui.ModeJSON:
		return func(string, float64) {}, func() {}
	default:
		var (
			mu   sync.Mutex
			last string
		)
		return func(status string, _ float64) {
			mu.Lock()
			defer mu.Unlock()
			if status != last {
				last = status
				fmt.Fprintln(out, status)
			}
		}, func() {}
	}
}
