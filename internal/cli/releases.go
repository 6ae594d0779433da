package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var releasesLimit int

func newReleasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "releases <owner/repo>",
		Short: "List the GitHub releases of a runner or DXVK repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runReleases(ctx, cmd, a, args[0])
			})
		},
	}
	cmd.Flags().IntVar(&releasesLimit, "limit", 10, "Maximum number of releases to show (0 for all)")
	return cmd
}

func runReleases(ctx context.Context, cmd *cobra.Command, a *app, repo string) error {
	releases, err := a.releases.List(ctx, repo)
	if err != nil {
		return err
	}
	if releasesLimit > 0 && len(releases) > releasesLimit {
		releases = releases[:releasesLimit]
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return writeJSON(out, releases)
	}
	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "TAG\tASSET\tSIZE")
	for _, rel := range releases {
		if len(rel.Assets) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\n", rel.Tag)
			continue
		}
		for _, asset := range rel.Assets {
			fmt.Fprintf(w, "%s\t%s\t%s\n", rel.Tag, asset.Name, humanize.Bytes(uint64(asset.Size)))
		}
	}
	return w.Flush()
}
