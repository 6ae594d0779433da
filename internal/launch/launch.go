// Package launch prepares a Wine or Proton prefix for the studio and runs
// it: runtime validation with a single self-heal, environment setup,
// teardown of stale instances, the optional virtual desktop wrapper and
// output capture.
package launch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"vinestudio/internal/config"
	"vinestudio/internal/metrics"
	"vinestudio/internal/paths"
	"vinestudio/internal/provision"
	"vinestudio/internal/release"
	"vinestudio/internal/studio"
	"vinestudio/internal/wine"
)

var (
	// ErrRuntimeUnavailable means the configured runtime is invalid and
	// could not be repaired.
	ErrRuntimeUnavailable = errors.New("wine runtime unavailable")
	// ErrLaunchFailed wraps a studio process that exited unsuccessfully.
	ErrLaunchFailed = errors.New("studio launch failed")
)

const (
	fatalMarker   = "Fatal exiting due to Trouble launching Studio"
	desktopPrefix = "VINESTUDIO_"

	protocolScheme = "roblox-studio:"
	authScheme     = "roblox-studio-auth:"
)

// ProgressFunc receives a status line and a fraction in [0,1], or -1 while
// a step has no measurable progress.
type ProgressFunc func(status string, fraction float64)

// Provisioner installs a runtime or DXVK build.
type Provisioner interface {
	Provision(ctx context.Context, req provision.Request, onProgress provision.ProgressFunc) (provision.Installation, error)
}

// ProcessKiller terminates the processes of a prefix.
type ProcessKiller interface {
	KillAll(sandbox string) (int, error)
}

// LayerRepairer restores the Vulkan layer library when missing.
type LayerRepairer interface {
	Ensure() error
}

// Launcher runs studio versions inside the configured prefix.
type Launcher struct {
	Store       *config.Store
	Paths       paths.AppPaths
	Provisioner Provisioner
	Processes   ProcessKiller
	Layer       LayerRepairer
	Runner      wine.Runner
	Logger      hclog.Logger
	Metrics     *metrics.Recorder
	// Debug selects verbose WINEDEBUG channels.
	Debug bool
	// Getpid names per-process virtual desktops. Defaults to os.Getpid.
	Getpid func() int
}

// Options controls a launch.
type Options struct {
	Args     []string
	Output   func(line string)
	Progress ProgressFunc
	// Wait blocks until the studio exits and captures its output.
	Wait bool
}

// Session describes a started launch.
type Session struct {
	ID      string
	Version string
	Mode    Mode
	Sandbox string
	Result  wine.Result
}

func (l *Launcher) logger() hclog.Logger {
	if l.Logger == nil {
		return hclog.NewNullLogger()
	}
	return l.Logger
}

func (l *Launcher) pid() int {
	if l.Getpid != nil {
		return l.Getpid()
	}
	return os.Getpid()
}

// Sandbox returns the prefix directory used for mode.
func (l *Launcher) Sandbox(mode Mode) string {
	if mode == ModeProton {
		return l.Paths.ProtonPrefix()
	}
	return l.Paths.PrefixDir
}

// Prefix resolves the configured runtime, repairing it once if needed, and
// returns a prefix handle with the launch environment applied.
func (l *Launcher) Prefix(ctx context.Context, progress ProgressFunc) (*wine.Prefix, Mode, error) {
	cfg := l.Store.Config()
	src := cfg.General.WineSource
	mode := DetectMode(src.Repo)
	sandbox := l.Sandbox(mode)
	log := l.logger().With("repo", src.Repo, "mode", mode.String())

	if err := os.MkdirAll(sandbox, 0o755); err != nil {
		return nil, mode, fmt.Errorf("create prefix: %w", err)
	}

	root := strings.TrimSpace(src.InstalledRoot)
	if src.Repo == release.RepoCustomPath && strings.TrimSpace(src.CustomPath) != "" {
		root = strings.TrimSpace(src.CustomPath)
	}
	if root == "" && !release.IsSentinel(src.Repo) {
		root = l.discover(src)
	}

	valid, err := l.validate(src.Repo, root, mode)
	if err != nil {
		return nil, mode, err
	}
	if !valid {
		switch src.Repo {
		case release.RepoSystem:
			if root != "" {
				log.Warn("configured root is not a runtime, using wine from PATH", "root", root)
			}
			root = ""
		case release.RepoCustomPath:
			return nil, mode, fmt.Errorf("%w: custom path %q is not a %s build", ErrRuntimeUnavailable, root, mode)
		default:
			root, err = l.heal(ctx, src, mode, progress)
			if err != nil {
				return nil, mode, err
			}
		}
	}

	pfx := wine.New(root, sandbox, l.Runner, l.logger().Named("wine"))
	l.configureEnvironment(pfx, mode, cfg)
	log.Debug("prefix ready", "root", root, "sandbox", sandbox)
	return pfx, mode, nil
}

// validate checks root against the layout mode expects. A usable root of the
// other flavour is a *ModeMismatchError.
func (l *Launcher) validate(repo, root string, mode Mode) (bool, error) {
	if root == "" {
		return false, nil
	}
	isProton := provision.IsProtonRoot(root)
	protonOK := isProton && paths.Exists(filepath.Join(root, "files", "bin", "wine"))
	wineOK := !isProton && paths.Exists(wine.New(root, "", nil, nil).Bin("wine"))

	switch {
	case mode == ModeProton && protonOK, mode == ModeWine && wineOK:
		return true, nil
	case mode == ModeProton && wineOK:
		return false, &ModeMismatchError{Repo: repo, Root: root, Configured: mode, Installed: ModeWine}
	case mode == ModeWine && protonOK:
		return false, &ModeMismatchError{Repo: repo, Root: root, Configured: mode, Installed: ModeProton}
	}
	return false, nil
}

func (l *Launcher) heal(ctx context.Context, src config.SourceConfig, mode Mode, progress ProgressFunc) (string, error) {
	l.logger().Info("wine root invalid or missing, attempting repair", "repo", src.Repo, "version", src.Version)
	if l.Provisioner == nil {
		return "", fmt.Errorf("%w: no provisioner configured", ErrRuntimeUnavailable)
	}
	inst, err := l.Provisioner.Provision(ctx, provision.Request{
		Kind:      release.Runtime,
		Repo:      src.Repo,
		Version:   src.Version,
		Asset:     src.Asset,
		CustomURL: src.CustomURL,
	}, provision.ProgressFunc(progress))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntimeUnavailable, err)
	}
	if valid, err := l.validate(src.Repo, inst.Path, mode); err != nil {
		return "", err
	} else if !valid {
		return "", fmt.Errorf("%w: provisioned %s is not a %s build", ErrRuntimeUnavailable, inst.Path, mode)
	}
	if err := l.Store.Update(func(c *config.Config) {
		c.General.WineSource.InstalledRoot = inst.Path
	}); err != nil {
		l.logger().Warn("save repaired wine root", "error", err)
	}
	l.logger().Info("wine repaired", "root", inst.Path)
	return inst.Path, nil
}

// discover looks for an already unpacked runtime matching the source and
// records it as the installed root.
func (l *Launcher) discover(src config.SourceConfig) string {
	entries, err := os.ReadDir(l.Paths.WineDir)
	if err != nil {
		return ""
	}
	pattern := discoveryPattern(src.Repo)
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() {
			continue
		}
		if src.Repo != release.RepoCustom && !strings.Contains(name, pattern) {
			continue
		}
		if src.Version != "" && src.Version != release.LatestVersion && !strings.Contains(name, src.Version) {
			continue
		}
		dir := filepath.Join(l.Paths.WineDir, name)
		if !provision.IsRuntimeRoot(dir) {
			continue
		}
		if err := l.Store.Update(func(c *config.Config) {
			c.General.WineSource.InstalledRoot = dir
		}); err != nil {
			l.logger().Warn("save discovered wine root", "error", err)
		}
		l.logger().Info("discovered wine root", "root", dir)
		return dir
	}
	return ""
}

func discoveryPattern(repo string) string {
	lower := strings.ToLower(repo)
	switch {
	case strings.Contains(lower, "vinegar"):
		return "wine-"
	case strings.Contains(lower, "cachy"):
		return "proton-cachyos"
	default:
		return "GE-Proton"
	}
}

// ProtocolArgs rewrites launch arguments: roblox-studio: links are passed
// behind -protocolString, auth links go through unchanged.
func ProtocolArgs(args []string) []string {
	out := make([]string, 0, len(args)+1)
	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, authScheme):
			out = append(out, arg)
		case strings.HasPrefix(arg, protocolScheme):
			out = append(out, "-protocolString", arg)
		default:
			out = append(out, arg)
		}
	}
	return out
}

// IsProtocolLaunch reports whether any argument carries a studio link.
func IsProtocolLaunch(args []string) bool {
	for _, arg := range args {
		if strings.Contains(arg, protocolScheme) || strings.Contains(arg, authScheme) {
			return true
		}
	}
	return false
}

// HasProtocolLink reports whether arg starts with a studio link scheme.
func HasProtocolLink(arg string) bool {
	return strings.HasPrefix(arg, protocolScheme) || strings.HasPrefix(arg, authScheme)
}

// Kill stops every process running in the configured prefix.
func (l *Launcher) Kill(ctx context.Context) error {
	pfx, _, err := l.Prefix(ctx, nil)
	if err != nil {
		return err
	}
	return l.teardown(ctx, pfx)
}

func (l *Launcher) teardown(ctx context.Context, pfx *wine.Prefix) error {
	l.logger().Info("killing studio processes", "sandbox", pfx.Dir())
	_ = pfx.Kill(ctx)
	if l.Processes == nil {
		return nil
	}
	n, err := l.Processes.KillAll(pfx.Dir())
	l.Metrics.ProcessesKilled(n)
	if err != nil {
		return fmt.Errorf("kill prefix processes: %w", err)
	}
	return nil
}

// OpenWineConfig runs winecfg in the prefix and waits for it to close.
func (l *Launcher) OpenWineConfig(ctx context.Context) error {
	pfx, _, err := l.Prefix(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := pfx.Wine(ctx, "winecfg", nil, wine.RunOptions{Wait: true}); err != nil {
		return fmt.Errorf("winecfg: %w", err)
	}
	return nil
}

// LaunchLatest writes FFlags and DXVK for the newest installed version and
// launches it.
func (l *Launcher) LaunchLatest(ctx context.Context, opts Options) (Session, error) {
	version, err := studio.LatestInstalled(l.Paths.VersionsDir)
	if err != nil {
		return Session{}, err
	}
	l.logger().Info("launching latest version", "version", version)
	if err := l.SetupFFlags(version); err != nil {
		l.logger().Warn("write fflags", "error", err)
	}
	if err := l.SetupDXVK(ctx, opts.Progress); err != nil {
		l.logger().Warn("dxvk setup", "error", err)
	}
	return l.LaunchVersion(ctx, version, opts)
}

// SetupFFlags writes the configured FFlags into a version directory.
func (l *Launcher) SetupFFlags(version string) error {
	return studio.WriteFFlags(l.Paths.VersionDir(version), l.Store.Config().FFlags)
}

// LaunchVersion runs one installed version.
func (l *Launcher) LaunchVersion(ctx context.Context, version string, opts Options) (sess Session, err error) {
	sess = Session{ID: uuid.NewString(), Version: version}
	log := l.logger().With("session", sess.ID, "version", version)
	defer func() {
		l.Metrics.Launched(sess.Mode.String(), err)
	}()

	if !studio.IsInstalled(l.Paths.VersionsDir, version) {
		return sess, fmt.Errorf("%w: %s", studio.ErrNotInstalled, version)
	}
	exe, err := studio.FindExecutable(l.Paths.VersionDir(version))
	if err != nil {
		return sess, err
	}
	pfx, mode, err := l.Prefix(ctx, opts.Progress)
	sess.Mode = mode
	if err != nil {
		return sess, err
	}
	sess.Sandbox = pfx.Dir()

	if !IsProtocolLaunch(opts.Args) {
		if err := l.teardown(ctx, pfx); err != nil {
			log.Warn("pre-launch teardown", "error", err)
		}
	}

	cfg := l.Store.Config()
	target := exe
	var args []string
	if cfg.Wine.DesktopMode || cfg.Wine.MultipleDesktops {
		if l.Layer != nil {
			if err := l.Layer.Ensure(); err != nil {
				log.Warn("layer repair failed", "error", err)
			}
		}
		target = "explorer"
		args = append(args, l.desktopArg(cfg.Wine), exe)
	}
	args = append(args, opts.Args...)

	log.Info("wine execution", "target", target, "args", args, "mode", mode.String())
	for _, key := range []string{"WINEDLLOVERRIDES", "VK_LOADER_LAYERS_ENABLE", "STEAM_COMPAT_DATA_PATH"} {
		if v := pfx.Getenv(key); v != "" {
			log.Debug("env", "key", key, "value", v)
		}
	}

	tee, closeTee := l.tee(log, opts.Output)
	defer closeTee()

	res, err := pfx.Wine(ctx, target, args, wine.RunOptions{Output: tee, Dir: filepath.Dir(exe), Wait: opts.Wait})
	sess.Result = res
	if err != nil {
		return sess, fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}
	if res.Mode == wine.Detached {
		log.Info("studio started", "pid", res.PID)
	} else {
		log.Info("studio exited", "code", res.ExitCode)
	}
	return sess, nil
}

func (l *Launcher) desktopArg(w config.WineConfig) string {
	name := "Desktop"
	if w.MultipleDesktops {
		name = strconv.Itoa(l.pid())
	}
	res := strings.ReplaceAll(w.DesktopResolution, " ", "")
	if res == "" {
		res = config.DefaultResolution
	}
	return "/desktop=" + desktopPrefix + name + "," + res
}

// tee fans each output line out to the studio log, the caller and the
// structured logger.
func (l *Launcher) tee(log hclog.Logger, output func(string)) (func(string), func()) {
	var file *os.File
	if err := os.MkdirAll(l.Paths.LogsDir, 0o755); err == nil {
		f, err := os.Create(l.Paths.StudioLog())
		if err != nil {
			log.Warn("open studio log", "error", err)
		} else {
			file = f
		}
	}
	fn := func(line string) {
		if file != nil {
			_, _ = file.WriteString(line + "\n")
		}
		if output != nil {
			output(line)
		}
		if strings.TrimSpace(line) != "" {
			log.Info("[wine] " + line)
		}
		if strings.Contains(line, fatalMarker) {
			log.Error("fatal studio error detected", "line", line)
		}
	}
	return fn, func() {
		if file != nil {
			_ = file.Close()
		}
	}
}
