package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"vinestudio/internal/studio"
)

var versionsRemote bool

func newVersionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List installed Studio versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runVersions(ctx, cmd, a)
			})
		},
	}
	cmd.Flags().BoolVar(&versionsRemote, "remote", false, "Also query the newest version on the configured channel")
	return cmd
}

type versionsOutput struct {
	Installed []string `json:"installed"`
	Latest    string   `json:"latest,omitempty"`
	Channel   string   `json:"channel,omitempty"`
}

func runVersions(ctx context.Context, cmd *cobra.Command, a *app) error {
	installed, err := studio.InstalledVersions(a.paths.VersionsDir)
	if err != nil {
		return err
	}
	res := versionsOutput{Installed: installed}
	if versionsRemote {
		res.Channel = a.store.Config().General.Channel
		if res.Latest, err = a.studio.LatestVersion(ctx, res.Channel); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return writeJSON(out, res)
	}
	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tDIR")
	for _, v := range installed {
		fmt.Fprintf(w, "%s\t%s\n", v, a.paths.VersionDir(v))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(installed) == 0 {
		fmt.Fprintln(out, "No versions installed")
	}
	if res.Latest != "" {
		fmt.Fprintf(out, "Latest on %s: %s\n", res.Channel, res.Latest)
	}
	return nil
}
