package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"vinestudio/internal/paths"
)

const (
	levelEnv = "VINESTUDIO_LOG_LEVEL"
	jsonEnv  = "VINESTUDIO_JSON_LOG"
)

// Options controls logger construction.
type Options struct {
	Name  string
	Level string
	// Verbose mirrors log lines to Stderr.
	Verbose bool
	Stderr  io.Writer
	Now     func() time.Time
}

// New creates a logger that writes to a timestamped session file inside the
// logs directory. The returned closer should be closed when logging is no
// longer needed.
func New(p paths.AppPaths, opts Options) (hclog.Logger, io.Closer, error) {
	if err := os.MkdirAll(p.LogsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure logs directory: %w", err)
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	file, err := os.OpenFile(p.SessionLog(now()), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	var out io.Writer = file
	if opts.Verbose {
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		out = io.MultiWriter(file, stderr)
	}

	name := opts.Name
	if name == "" {
		name = "vinestudio"
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(Level(opts.Level, opts.Verbose)),
		JSONFormat: os.Getenv(jsonEnv) == "1",
		Output:     out,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	return logger, file, nil
}

// Level picks the effective level: $VINESTUDIO_LOG_LEVEL, then the
// requested level, then debug when verbose, else info.
func Level(requested string, verbose bool) string {
	if v := strings.TrimSpace(os.Getenv(levelEnv)); v != "" {
		return v
	}
	if v := strings.TrimSpace(requested); v != "" {
		return v
	}
	if verbose {
		return "debug"
	}
	return "info"
}
