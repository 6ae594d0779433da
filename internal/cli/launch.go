package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"vinestudio/internal/launch"
	"vinestudio/internal/proc"
	"vinestudio/internal/studio"
	"vinestudio/internal/wine"
)

var launchWait bool

func newLaunchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch [-- studio args]",
		Short: "Install updates, prepare the prefix and start Studio",
		Long: "Launch resolves the newest Studio version, installs it when missing, prepares the\n" +
			"Wine prefix and DXVK, and starts Studio. Studio links (roblox-studio:...) skip the\n" +
			"update check and open the newest installed version directly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runLaunch(ctx, cmd, a, args)
			})
		},
	}
	cmd.Flags().BoolVar(&launchWait, "wait", false, "Stay attached and stream Studio output until it exits")
	return cmd
}

type sessionResult struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Mode     string `json:"mode"`
	Sandbox  string `json:"sandbox"`
	PID      int    `json:"pid,omitempty"`
	ExitCode int    `json:"exitCode"`
	Detached bool   `json:"detached"`
}

func runLaunch(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
	out := cmd.OutOrStdout()
	progress, stop := statusProgress(cmd.ErrOrStderr())
	defer stop()

	opts := launch.Options{
		Args:     launch.ProtocolArgs(args),
		Progress: progress,
		Wait:     launchWait,
	}
	if launchWait && !outputJSON {
		opts.Output = func(line string) { fmt.Fprintln(out, line) }
	}

	if launch.IsProtocolLaunch(args) {
		sess, err := a.launcher.LaunchLatest(ctx, opts)
		if err == nil {
			stop()
			return reportSession(out, sess)
		}
		if !errors.Is(err, studio.ErrNoVersions) {
			return err
		}
		a.logger.Info("no installed version for protocol launch, installing")
	}

	lock, err := acquireLock(a.paths.LockFile)
	if err != nil {
		return err
	}
	defer lock.Release()

	version, err := a.launchVersion(ctx)
	if err != nil {
		return err
	}
	stop()
	if err := a.installWithProgress(ctx, out, version); err != nil {
		return err
	}

	progress, stop = statusProgress(cmd.ErrOrStderr())
	defer stop()
	opts.Progress = progress
	if err := a.launcher.SetupPrefix(ctx, progress); err != nil {
		return err
	}
	if err := a.launcher.SetupDXVK(ctx, progress); err != nil {
		a.logger.Warn("dxvk setup", "error", err)
	}
	if err := a.launcher.SetupFFlags(version); err != nil {
		a.logger.Warn("write fflags", "error", err)
	}

	progress("Launching Studio", -1)
	sess, err := a.launcher.LaunchVersion(ctx, version, opts)
	stop()
	if err != nil {
		return err
	}
	return reportSession(out, sess)
}

// launchVersion resolves the version to launch, falling back to the newest
// installed one when the channel cannot be reached.
func (a *app) launchVersion(ctx context.Context) (string, error) {
	version, err := a.resolveVersion(ctx, "")
	if err == nil {
		return version, nil
	}
	installed, lerr := studio.LatestInstalled(a.paths.VersionsDir)
	if lerr != nil {
		return "", errors.Join(err, errNothingInstalled)
	}
	a.logger.Warn("using installed version, update check failed", "version", installed, "error", err)
	return installed, nil
}

func reportSession(out io.Writer, sess launch.Session) error {
	res := sessionResult{
		ID:       sess.ID,
		Version:  sess.Version,
		Mode:     sess.Mode.String(),
		Sandbox:  sess.Sandbox,
		PID:      sess.Result.PID,
		ExitCode: sess.Result.ExitCode,
		Detached: sess.Result.Mode == wine.Detached,
	}
	if outputJSON {
		return writeJSON(out, res)
	}
	if res.Detached {
		fmt.Fprintf(out, "Started %s (%s, pid %d)\n", res.Version, res.Mode, res.PID)
	} else {
		fmt.Fprintf(out, "Studio %s exited with code %d\n", res.Version, res.ExitCode)
	}
	return nil
}

func newKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill",
		Short: "Stop every Studio and Wine process in the prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.launcher.Kill(ctx); err != nil {
					return err
				}
				if !outputJSON {
					fmt.Fprintln(cmd.OutOrStdout(), "Prefix processes stopped")
				}
				return nil
			})
		},
	}
}

func newPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List Studio and Wine processes running in the prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				repo := a.store.Config().General.WineSource.Repo
				sandbox := a.launcher.Sandbox(launch.DetectMode(repo))
				procs, err := a.processes.Find(sandbox)
				if err != nil {
					return err
				}
				return writeProcesses(cmd.OutOrStdout(), sandbox, procs)
			})
		},
	}
}

type psOutput struct {
	Sandbox   string      `json:"sandbox"`
	Processes []proc.Info `json:"processes"`
}

func writeProcesses(out io.Writer, sandbox string, procs []proc.Info) error {
	if outputJSON {
		if procs == nil {
			procs = []proc.Info{}
		}
		return writeJSON(out, psOutput{Sandbox: sandbox, Processes: procs})
	}
	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "PID\tEXE\tPREFIX")
	for _, p := range procs {
		fmt.Fprintf(w, "%d\t%s\t%s\n", p.PID, p.Exe, p.Prefix)
	}
	return w.Flush()
}

func newPrefixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefix",
		Short: "Prepare or configure the Wine prefix",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "setup",
		Short: "Import registry defaults and install DXVK into the prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				progress, stop := statusProgress(cmd.ErrOrStderr())
				defer stop()
				if err := a.launcher.SetupPrefix(ctx, progress); err != nil {
					return err
				}
				if err := a.launcher.SetupDXVK(ctx, progress); err != nil {
					return err
				}
				stop()
				fmt.Fprintln(cmd.OutOrStdout(), "Prefix ready:", a.launcher.SetupMarkerPath())
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "winecfg",
		Short: "Open winecfg inside the prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return a.launcher.OpenWineConfig(ctx)
			})
		},
	})
	return cmd
}
