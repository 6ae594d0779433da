// Package proc finds and signals the studio and Wine processes that belong
// to one prefix.
package proc

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

// executableMarkers select candidate processes by executable path.
var executableMarkers = []string{"RobloxStudio", "wine"}

// Info describes one running process. Prefix is the WINEPREFIX the
// process was matched on and is only set in results of Find.
type Info struct {
	PID    int      `json:"pid"`
	Exe    string   `json:"exe"`
	Name   string   `json:"name,omitempty"`
	Prefix string   `json:"prefix,omitempty"`
	Env    []string `json:"-"`
}

// Source lists running processes.
type Source interface {
	Processes() ([]Info, error)
}

// Signaler delivers a signal to a pid.
type Signaler func(pid int, sig unix.Signal) error

// Registry matches processes to a prefix by their WINEPREFIX variable.
type Registry struct {
	Source Source
	Signal Signaler
	Logger hclog.Logger
}

// New returns a registry over the live process table.
func New(logger hclog.Logger) *Registry {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Registry{Source: SystemSource{}, Signal: unix.Kill, Logger: logger}
}

// Find returns the processes whose executable looks like studio or Wine and
// whose WINEPREFIX resolves to sandbox. Processes that vanish or cannot be
// inspected mid-scan are skipped.
func (r *Registry) Find(sandbox string) ([]Info, error) {
	want := canonical(sandbox)
	procs, err := r.Source.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	var out []Info
	for _, p := range procs {
		if !isCandidate(p.Exe) {
			continue
		}
		prefix, ok := lookupEnv(p.Env, "WINEPREFIX")
		if !ok || prefix == "" {
			continue
		}
		if canonical(prefix) == want {
			p.Prefix = prefix
			out = append(out, p)
		}
	}
	return out, nil
}

// Kill signals pid with SIGKILL when force is set, SIGTERM otherwise.
func (r *Registry) Kill(pid int, force bool) error {
	sig := unix.SIGTERM
	if force {
		sig = unix.SIGKILL
	}
	if err := r.Signal(pid, sig); err != nil {
		return fmt.Errorf("signal %d with %s: %w", pid, unix.SignalName(sig), err)
	}
	r.logger().Debug("signalled process", "pid", pid, "signal", unix.SignalName(sig))
	return nil
}

// KillAll terminates every process of sandbox and returns how many were
// signalled. The error joins every failed kill; no matches is success.
func (r *Registry) KillAll(sandbox string) (int, error) {
	procs, err := r.Find(sandbox)
	if err != nil {
		return 0, err
	}
	var errs []error
	killed := 0
	for _, p := range procs {
		if err := r.Kill(p.PID, false); err != nil {
			errs = append(errs, err)
			continue
		}
		killed++
	}
	return killed, errors.Join(errs...)
}

func (r *Registry) logger() hclog.Logger {
	if r.Logger == nil {
		return hclog.NewNullLogger()
	}
	return r.Logger
}

func isCandidate(exe string) bool {
	for _, marker := range executableMarkers {
		if strings.Contains(exe, marker) {
			return true
		}
	}
	return false
}

func lookupEnv(env []string, key string) (string, bool) {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}

func canonical(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// SystemSource reads the live process table through gopsutil.
type SystemSource struct{}

func (SystemSource) Processes() ([]Info, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(procs))
	for _, p := range procs {
		exe, err := p.Exe()
		if err != nil || !isCandidate(exe) {
			continue
		}
		env, err := p.Environ()
		if err != nil {
			continue
		}
		name, _ := p.Name()
		out = append(out, Info{PID: int(p.Pid), Exe: exe, Name: name, Env: env})
	}
	return out, nil
}
