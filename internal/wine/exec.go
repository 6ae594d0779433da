package wine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// Mode tells whether a command was waited on or left running.
type Mode int

const (
	// Synchronous commands ran to completion; ExitCode is meaningful.
	Synchronous Mode = iota
	// Detached commands were started and left running.
	Detached
)

func (m Mode) String() string {
	if m == Detached {
		return "detached"
	}
	return "synchronous"
}

// Command describes one process to start.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string
	// Output receives combined stdout/stderr lines of a waited command.
	Output func(line string)
	Wait   bool
}

// Result reports how a command ended, or that it is still running.
type Result struct {
	Mode     Mode
	PID      int
	ExitCode int

	done <-chan struct{}
}

// NewDetachedResult builds a Result whose liveness follows done.
func NewDetachedResult(pid int, done <-chan struct{}) Result {
	return Result{Mode: Detached, PID: pid, done: done}
}

// Alive reports whether a detached process is still running.
func (r Result) Alive() bool {
	if r.Mode != Detached || r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Done is closed when a detached process exits. It is nil for synchronous results.
func (r Result) Done() <-chan struct{} {
	return r.done
}

// ExitError reports a waited command that exited non-zero or by signal.
type ExitError struct {
	Path   string
	Code   int
	Signal string
}

func (e *ExitError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("%s terminated by signal %s", e.Path, e.Signal)
	}
	return fmt.Sprintf("%s exited with code %d", e.Path, e.Code)
}

// Runner starts processes.
type Runner interface {
	Start(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner starts real processes with os/exec.
type ExecRunner struct{}

func (ExecRunner) Start(ctx context.Context, c Command) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !c.Wait {
		return startDetached(c)
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env

	var pr *os.File
	if c.Output != nil {
		r, w, err := os.Pipe()
		if err != nil {
			return Result{}, fmt.Errorf("create output pipe: %w", err)
		}
		pr = r
		cmd.Stdout = w
		cmd.Stderr = w
		if err := cmd.Start(); err != nil {
			r.Close()
			w.Close()
			return Result{}, fmt.Errorf("start %s: %w", c.Path, err)
		}
		w.Close()
		streamLines(pr, c.Output)
		pr.Close()
	} else if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", c.Path, err)
	}

	res := Result{Mode: Synchronous, PID: cmd.Process.Pid}
	err := cmd.Wait()
	if err == nil {
		return res, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return res, fmt.Errorf("wait %s: %w", c.Path, err)
	}
	res.ExitCode = exitErr.ExitCode()
	ee := &ExitError{Path: c.Path, Code: res.ExitCode}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		ee.Signal = status.Signal().String()
	}
	return res, ee
}

func startDetached(c Command) (Result, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", c.Path, err)
	}
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	return NewDetachedResult(cmd.Process.Pid, done), nil
}

func streamLines(r io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	// Drain whatever an over-long line left behind so the child never blocks.
	_, _ = io.Copy(io.Discard, r)
}

var _ Runner = ExecRunner{}
