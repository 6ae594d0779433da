package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vinestudio/internal/config"
	"vinestudio/internal/provision"
	"vinestudio/internal/release"
	"vinestudio/internal/tui"
)

// buildFlags override the configured source for one install.
type buildFlags struct {
	repo  string
	asset string
	url   string
}

func newRunnerCmd() *cobra.Command {
	return newBuildCmd("runner", "Manage Wine and Proton builds", release.Runtime)
}

func newDXVKCmd() *cobra.Command {
	return newBuildCmd("dxvk", "Manage DXVK builds", release.GraphicsLayer)
}

func newBuildCmd(use, short string, kind release.Kind) *cobra.Command {
	cmd := &cobra.Command{Use: use, Short: short}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List provisioned builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				return runBuildList(cmd, a, kind)
			})
		},
	})

	var flags buildFlags
	install := &cobra.Command{
		Use:   "install [version]",
		Short: "Download a build and make it the active one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runBuildInstall(ctx, cmd, a, kind, firstArg(args), flags)
			})
		},
	}
	install.Flags().StringVar(&flags.repo, "repo", "", "GitHub repository (owner/name)")
	install.Flags().StringVar(&flags.asset, "asset", "", "Exact asset name to download")
	install.Flags().StringVar(&flags.url, "url", "", "Download this archive instead of a release asset")
	cmd.AddCommand(install)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a provisioned build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				return runBuildDelete(cmd, a, kind, args[0])
			})
		},
	})
	return cmd
}

func sourceOf(cfg *config.Config, kind release.Kind) *config.SourceConfig {
	if kind == release.GraphicsLayer {
		return &cfg.General.DXVKSource
	}
	return &cfg.General.WineSource
}

type buildEntry struct {
	provision.Installation
	Active bool   `json:"active"`
	Size   string `json:"size"`
}

func runBuildList(cmd *cobra.Command, a *app, kind release.Kind) error {
	installs, err := a.provisioner.ListInstalled(kind)
	if err != nil {
		return err
	}
	cfg := a.store.Config()
	active := filepath.Clean(sourceOf(&cfg, kind).InstalledRoot)

	entries := make([]buildEntry, 0, len(installs))
	for _, inst := range installs {
		entries = append(entries, buildEntry{
			Installation: inst,
			Active:       filepath.Clean(inst.Path) == active,
			Size:         humanize.Bytes(uint64(inst.SizeBytes)),
		})
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return writeJSON(out, entries)
	}
	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "\tNAME\tTAG\tREPO\tPROTON\tSIZE")
	for _, e := range entries {
		mark := ""
		if e.Active {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", mark, e.Name,
			tui.OrDash(e.Meta.Tag), tui.OrDash(e.Meta.Repo), e.IsProton, e.Size)
	}
	return w.Flush()
}

func runBuildInstall(ctx context.Context, cmd *cobra.Command, a *app, kind release.Kind, version string, flags buildFlags) error {
	lock, err := acquireLock(a.paths.LockFile)
	if err != nil {
		return err
	}
	defer lock.Release()

	cfg := a.store.Config()
	src := *sourceOf(&cfg, kind)
	if flags.repo != "" {
		src.Repo = flags.repo
		src.Asset = ""
	}
	if version != "" {
		src.Version = version
	}
	if flags.asset != "" {
		src.Asset = flags.asset
	}
	if flags.url != "" {
		src.CustomURL = flags.url
	}

	progress, stop := statusProgress(cmd.ErrOrStderr())
	inst, err := a.provisioner.Provision(ctx, provision.Request{
		Kind:      kind,
		Repo:      src.Repo,
		Version:   src.Version,
		Asset:     src.Asset,
		CustomURL: src.CustomURL,
	}, progress)
	stop()
	if err != nil {
		return err
	}

	if err := a.store.Update(func(c *config.Config) {
		dst := sourceOf(c, kind)
		dst.Repo = src.Repo
		dst.Version = src.Version
		dst.Asset = src.Asset
		dst.CustomURL = src.CustomURL
		dst.InstalledRoot = inst.Path
	}); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return writeJSON(out, inst)
	}
	fmt.Fprintf(out, "Installed %s (%s) at %s\n", inst.Name, humanize.Bytes(uint64(inst.SizeBytes)), inst.Path)
	return nil
}

func runBuildDelete(cmd *cobra.Command, a *app, kind release.Kind, name string) error {
	inst, ok := a.provisioner.FindInstalled(kind, name)
	if !ok {
		return fmt.Errorf("no %s build matching %q", kind, name)
	}
	if err := a.provisioner.Delete(inst.Path); err != nil {
		return err
	}
	cfg := a.store.Config()
	if filepath.Clean(sourceOf(&cfg, kind).InstalledRoot) == filepath.Clean(inst.Path) {
		if err := a.store.Update(func(c *config.Config) {
			sourceOf(c, kind).InstalledRoot = ""
		}); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", inst.Name)
	return nil
}
