package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vinestudio/internal/launch"
)

var (
	rootDir     string
	outputJSON  bool
	verbose     bool
	debugWine   bool
	noProgress  bool
	metricsFile string
	logLevel    string
)

// Execute runs the root cobra command and returns the process exit status.
func Execute(ctx context.Context) int {
	cmd := newRootCmd()
	cmd.SetArgs(protocolArgs(os.Args[1:]))
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// protocolArgs routes a bare studio link, as passed by the desktop handler,
// to the launch command.
func protocolArgs(args []string) []string {
	if len(args) > 0 && launch.HasProtocolLink(args[0]) {
		return append([]string{"launch", "--"}, args...)
	}
	return args
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vinestudio",
		Short:         "Install and launch Roblox Studio under Wine or Proton",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&rootDir, "root", "", "Data directory (default $VINESTUDIO_PATH or ~/.local/share/vinestudio)")
	flags.BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Mirror log output to stderr")
	flags.BoolVar(&debugWine, "debug", false, "Enable verbose WINEDEBUG channels")
	flags.BoolVar(&noProgress, "no-progress", false, "Disable interactive progress output")
	flags.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format on exit")
	flags.StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")

	cmd.AddCommand(newInstallCmd())
	cmd.AddCommand(newReinstallCmd())
	cmd.AddCommand(newLaunchCmd())
	cmd.AddCommand(newKillCmd())
	cmd.AddCommand(newPsCmd())
	cmd.AddCommand(newVersionsCmd())
	cmd.AddCommand(newRunnerCmd())
	cmd.AddCommand(newDXVKCmd())
	cmd.AddCommand(newReleasesCmd())
	cmd.AddCommand(newPrefixCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}
