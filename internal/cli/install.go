package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"vinestudio/internal/studio"
	"vinestudio/internal/tui"
)

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install [version]",
		Short: "Download and install a Studio version (default: latest on the configured channel)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runInstall(ctx, cmd, a, firstArg(args), false)
			})
		},
	}
}

func newReinstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reinstall [version]",
		Short: "Remove and install a Studio version again",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runInstall(ctx, cmd, a, firstArg(args), true)
			})
		},
	}
}

type installResult struct {
	Version string `json:"version"`
	Dir     string `json:"dir"`
}

func runInstall(ctx context.Context, cmd *cobra.Command, a *app, version string, reinstall bool) error {
	lock, err := acquireLock(a.paths.LockFile)
	if err != nil {
		return err
	}
	defer lock.Release()

	version, err = a.resolveVersion(ctx, version)
	if err != nil {
		return err
	}
	if reinstall {
		a.logger.Info("removing version for reinstall", "version", version)
		if err := studio.Remove(a.paths.VersionsDir, version); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if err := a.installWithProgress(ctx, out, version); err != nil {
		return err
	}
	if outputJSON {
		return writeJSON(out, installResult{Version: version, Dir: a.paths.VersionDir(version)})
	}
	fmt.Fprintf(out, "Installed %s\n", version)
	return nil
}

// resolveVersion picks an explicit version, then the pinned config version,
// then the newest upload on the configured channel.
func (a *app) resolveVersion(ctx context.Context, version string) (string, error) {
	if version != "" {
		return version, nil
	}
	cfg := a.store.Config()
	if cfg.General.StudioVersion != "" {
		return cfg.General.StudioVersion, nil
	}
	latest, err := a.studio.LatestVersion(ctx, cfg.General.Channel)
	if err != nil {
		return "", fmt.Errorf("resolve latest version: %w", err)
	}
	return latest, nil
}

// installWithProgress runs the installer behind the progress table when out
// is a terminal and behind line output otherwise. A directory left by an
// interrupted install is removed first.
func (a *app) installWithProgress(ctx context.Context, out io.Writer, version string) error {
	removed, err := studio.RemoveIncomplete(a.paths.VersionsDir, version)
	if err != nil {
		return err
	}
	if removed {
		a.logger.Warn("removed incomplete install", "version", version)
	}
	in := a.installer
	switch tui.DetectMode(out, noProgress, outputJSON) {
	case tui.ModeTUI:
		model := tui.NewProgressModel("Installing "+version, tui.InstallColumns)
		var installErr error
		err := tui.RunWithWork(ctx, out, model, func(ctx context.Context, send func(tea.Msg)) {
			reporter := tui.NewInstallReporter(send)
			if installErr = in.Install(ctx, version, reporter.Progress); installErr != nil {
				send(tui.ErrorMsg{Err: installErr})
			}
		})
		if installErr != nil {
			return installErr
		}
		return err
	case tui.ModeJSON:
		return in.Install(ctx, version, nil)
	default:
		return in.Install(ctx, version, tui.NewPlainReporter(out).Progress)
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

var errNothingInstalled = errors.New("no studio version installed; run `vinestudio install`")
