package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"vinestudio/internal/archive"
	"vinestudio/internal/config"
	"vinestudio/internal/launch"
	"vinestudio/internal/layer"
	"vinestudio/internal/logx"
	"vinestudio/internal/metrics"
	"vinestudio/internal/paths"
	"vinestudio/internal/proc"
	"vinestudio/internal/provision"
	"vinestudio/internal/release"
	"vinestudio/internal/studio"
	"vinestudio/internal/transport"
)

// app holds the collaborators of one command invocation.
type app struct {
	paths       paths.AppPaths
	logger      hclog.Logger
	logCloser   io.Closer
	store       *config.Store
	http        *transport.Client
	releases    *release.Client
	studio      *studio.Client
	installer   *studio.Installer
	provisioner *provision.Provisioner
	processes   *proc.Registry
	launcher    *launch.Launcher
	metrics     *metrics.Recorder
}

// newApp resolves paths, opens the session log and config, and wires the
// installer, provisioner and launcher together.
func newApp(cmd *cobra.Command) (*app, error) {
	pp, err := paths.Resolve(rootDir)
	if err != nil {
		return nil, err
	}
	if err := pp.EnsureDirs(); err != nil {
		return nil, err
	}

	logger, closer, err := logx.New(pp, logx.Options{
		Name:    "vinestudio",
		Level:   logLevel,
		Verbose: verbose,
		Stderr:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	store, err := config.Open(pp.ConfigFile)
	if err != nil {
		closer.Close()
		return nil, err
	}
	cfg := store.Config()
	for _, res := range cfg.Validate() {
		logger.Warn("config validation", "level", res.Level, "message", res.Message)
	}

	rec := metrics.New()
	httpClient := transport.New()
	extractor := archive.New(logger.Named("archive"))
	releases := release.NewClient(httpClient)
	studioClient := studio.NewClient(httpClient, cfg.General.CDNBase)

	a := &app{
		paths:     pp,
		logger:    logger,
		logCloser: closer,
		store:     store,
		http:      httpClient,
		releases:  releases,
		studio:    studioClient,
		metrics:   rec,
	}
	a.installer = &studio.Installer{
		Manifests:    studioClient,
		Downloader:   httpClient,
		Extractor:    extractor,
		VersionsDir:  pp.VersionsDir,
		DownloadsDir: pp.DownloadsDir,
		Workers:      cfg.General.Workers,
		Logger:       logger.Named("install"),
		Metrics:      rec,
	}
	a.provisioner = &provision.Provisioner{
		Releases:   releases,
		Downloader: httpClient,
		Extractor:  extractor,
		WineDir:    pp.WineDir,
		DXVKDir:    pp.DXVKDir,
		Logger:     logger.Named("provision"),
		Metrics:    rec,
	}
	a.processes = proc.New(logger.Named("proc"))
	a.launcher = &launch.Launcher{
		Store:       store,
		Paths:       pp,
		Provisioner: a.provisioner,
		Processes:   a.processes,
		Layer:       layer.NewChecker(pp, logger.Named("layer")),
		Logger:      logger.Named("launch"),
		Metrics:     rec,
		Debug:       debugWine,
	}
	return a, nil
}

// Close writes the metrics textfile when requested and closes the session log.
func (a *app) Close() error {
	var errs []error
	if metricsFile != "" {
		if err := a.metrics.WriteTextfile(metricsFile); err != nil {
			errs = append(errs, err)
		}
	}
	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// withApp builds the app, runs fn and always closes it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", cerr)
		}
	}()
	return fn(commandContext(cmd), a)
}
