// Package wine wraps one Wine or Proton build and one prefix directory:
// binary lookup across build layouts, environment layering, process
// execution and registry import.
package wine

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"

	"vinestudio/internal/paths"
)

// Prefix pairs a runtime root with a prefix directory. Root and Dir are fixed
// at construction; the environment map is merged, never replaced. A Prefix is
// not safe for concurrent mutation.
type Prefix struct {
	root   string
	dir    string
	env    map[string]string
	runner Runner
	logger hclog.Logger
}

// New returns a prefix handle. An empty dir selects ~/.wine. A nil runner
// uses ExecRunner.
func New(root, dir string, runner Runner, logger hclog.Logger) *Prefix {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = filepath.Join(home, ".wine")
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Prefix{root: root, dir: dir, env: map[string]string{}, runner: runner, logger: logger}
}

func (p *Prefix) Root() string { return p.root }
func (p *Prefix) Dir() string  { return p.dir }

// IsProton reports whether the root carries the Proton launcher script.
func (p *Prefix) IsProton() bool {
	if p.root == "" {
		return false
	}
	ok, _ := paths.FileExists(filepath.Join(p.root, "proton"))
	return ok
}

func (p *Prefix) binDir() string {
	if p.root == "" {
		return ""
	}
	if p.IsProton() {
		return filepath.Join(p.root, "files", "bin")
	}
	for _, rel := range []string{"files/bin", "dist/bin"} {
		dir := filepath.Join(p.root, filepath.FromSlash(rel))
		if ok, _ := paths.DirExists(dir); ok {
			return dir
		}
	}
	return filepath.Join(p.root, "bin")
}

func (p *Prefix) binPath(name string) string {
	dir := p.binDir()
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// Bin resolves a runtime program. "wine" prefers wine64 when present;
// "wine64" falls back to wine on builds that ship only one binary. Without a
// root the bare name is returned for PATH lookup.
func (p *Prefix) Bin(name string) string {
	switch name {
	case "wine":
		if p.root != "" {
			if p64 := p.binPath("wine64"); fileExists(p64) {
				return p64
			}
		}
		return p.binPath("wine")
	case "wine64":
		p64 := p.binPath("wine64")
		if p.root == "" || fileExists(p64) {
			return p64
		}
		if p32 := p.binPath("wine"); fileExists(p32) {
			return p32
		}
		return p64
	default:
		return p.binPath(name)
	}
}

// SetEnv sets one variable.
func (p *Prefix) SetEnv(key, value string) {
	p.env[key] = value
}

// MergeEnv overwrites the given keys and keeps all others.
func (p *Prefix) MergeEnv(updates map[string]string) {
	for k, v := range updates {
		p.env[k] = v
	}
}

// Getenv returns a variable from the prefix map, falling back to the
// process environment.
func (p *Prefix) Getenv(key string) string {
	if v, ok := p.env[key]; ok {
		return v
	}
	return os.Getenv(key)
}

// Env returns a copy of the prefix environment map.
func (p *Prefix) Env() map[string]string {
	out := make(map[string]string, len(p.env))
	for k, v := range p.env {
		out[k] = v
	}
	return out
}

// Environ layers the process environment, the prefix map and WINEPREFIX,
// in that order, and returns KEY=VALUE pairs sorted by key.
func (p *Prefix) Environ() []string {
	merged := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	for k, v := range p.env {
		merged[k] = v
	}
	merged["WINEPREFIX"] = p.dir

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out
}

// Execute runs cmd inside the prefix environment.
func (p *Prefix) Execute(ctx context.Context, cmd Command) (Result, error) {
	cmd.Env = p.Environ()
	p.logger.Debug("exec", "path", cmd.Path, "args", cmd.Args, "wait", cmd.Wait, "dir", cmd.Dir)
	return p.runner.Start(ctx, cmd)
}

// RunOptions controls Wine invocations.
type RunOptions struct {
	Output func(line string)
	Dir    string
	Wait   bool
}

// WineCommand builds the command that runs target through the runtime:
// "<root>/proton run target args..." for Proton, otherwise the 64-bit wine
// binary of the root or wine64 from PATH.
func (p *Prefix) WineCommand(target string, args []string) (string, []string) {
	if p.IsProton() {
		return filepath.Join(p.root, "proton"), append([]string{"run", target}, args...)
	}
	bin := "wine64"
	if p.root != "" {
		bin = p.Bin("wine64")
	}
	return bin, append([]string{target}, args...)
}

// Wine runs target (a Windows executable or builtin program) in the prefix.
func (p *Prefix) Wine(ctx context.Context, target string, args []string, opts RunOptions) (Result, error) {
	path, argv := p.WineCommand(target, args)
	return p.Execute(ctx, Command{Path: path, Args: argv, Dir: opts.Dir, Output: opts.Output, Wait: opts.Wait})
}

// Kill stops every process of the prefix through wineserver. The result does
// not distinguish an idle prefix from a failed kill.
func (p *Prefix) Kill(ctx context.Context) error {
	_, err := p.Execute(ctx, Command{Path: p.Bin("wineserver"), Args: []string{"-k"}, Wait: true})
	if err != nil {
		p.logger.Debug("wineserver -k", "error", err)
	}
	return err
}

func fileExists(path string) bool {
	ok, _ := paths.FileExists(path)
	return ok
}
