package studio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"vinestudio/internal/archive"
	"vinestudio/internal/metrics"
	"vinestudio/internal/paths"
	"vinestudio/internal/transport"
)

var (
	ErrDownload   = errors.New("package download failed")
	ErrExtract    = errors.New("package extract failed")
	ErrIncomplete = errors.New("install incomplete")
)

// MarkerFile is written last; a version directory without it is not installed.
const MarkerFile = "AppSettings.xml"

const markerContent = "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\r\n" +
	"<Settings>\r\n" +
	"        <ContentFolder>content</ContentFolder>\r\n" +
	"        <BaseUrl>http://www.roblox.com</BaseUrl>\r\n" +
	"        <Channel>production</Channel>\r\n" +
	"</Settings>\r\n"

// ProgressFunc receives install progress. fraction is the current item's
// progress in [0,1], or -1 when its size is unknown. Calls are serialized.
type ProgressFunc func(item string, fraction float64, done, total int)

// ManifestSource supplies package lists and download locations.
type ManifestSource interface {
	Manifest(ctx context.Context, version string) ([]Package, error)
	PackageURL(version, name string) string
}

// Downloader fetches a URL to a file.
type Downloader interface {
	Download(ctx context.Context, url, dest string, onProgress transport.ProgressFunc) error
}

// Extractor unpacks an archive into a directory.
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string) (archive.Result, error)
}

// Installer turns a remote manifest into an installed version directory.
type Installer struct {
	Manifests    ManifestSource
	Downloader   Downloader
	Extractor    Extractor
	VersionsDir  string
	DownloadsDir string
	Workers      int
	Logger       hclog.Logger
	Metrics      *metrics.Recorder
}

func (in *Installer) logger() hclog.Logger {
	if in.Logger == nil {
		return hclog.NewNullLogger()
	}
	return in.Logger
}

func (in *Installer) workers() int {
	if in.Workers <= 0 {
		return 4
	}
	return in.Workers
}

// Install installs version. An existing version directory is taken as
// complete and returns immediately without contacting the network. Every
// return path reports a final progress message; failures report "Error: ...".
func (in *Installer) Install(ctx context.Context, version string, onProgress ProgressFunc) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var cbMu sync.Mutex
	report := func(item string, fraction float64, done, total int) {
		if onProgress == nil {
			return
		}
		cbMu.Lock()
		defer cbMu.Unlock()
		onProgress(item, fraction, done, total)
	}

	log := in.logger().With("version", version)
	installDir := filepath.Join(in.VersionsDir, version)
	if ok, statErr := paths.DirExists(installDir); statErr == nil && ok {
		log.Info("version already installed")
		report("Already installed", 1, 0, 0)
		return nil
	}

	start := time.Now()
	var completed atomic.Int32
	total := 0
	defer func() {
		if err != nil {
			report("Error: "+err.Error(), 0, int(completed.Load()), total)
		}
		in.Metrics.ObserveInstall(time.Since(start), err)
	}()

	report("Fetching manifest", -1, 0, 0)
	packages, err := in.Manifests.Manifest(ctx, version)
	if err != nil {
		return err
	}
	total = len(packages)
	log.Info("installing version", "packages", total, "workers", in.workers())

	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return fmt.Errorf("create install dir: %w", err)
	}
	if err := os.MkdirAll(in.DownloadsDir, 0o755); err != nil {
		return fmt.Errorf("create downloads dir: %w", err)
	}

	queue := newWorkQueue(len(packages))
	var failed atomic.Bool
	var g errgroup.Group
	for w := 0; w < in.workers(); w++ {
		g.Go(func() error {
			for {
				idx, ok := queue.next(&failed)
				if !ok {
					return nil
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					failed.Store(true)
					return ctxErr
				}
				pkg := packages[idx]
				progress := func(fraction float64) {
					if failed.Load() {
						return
					}
					report(pkg.Name, fraction, int(completed.Load()), total)
				}
				report(pkg.Name, 0, int(completed.Load()), total)
				if err := in.installPackage(ctx, version, installDir, pkg, progress); err != nil {
					failed.Store(true)
					in.Metrics.PackageDone(metrics.ResultFailed)
					log.Error("package failed", "package", pkg.Name, "skipped", queue.remaining(), "error", err)
					return err
				}
				done := int(completed.Add(1))
				report(pkg.Name, 1, done, total)
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if got := int(completed.Load()); got != total {
		return fmt.Errorf("%w: %d of %d packages extracted", ErrIncomplete, got, total)
	}
	if err := relocate(installDir); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(installDir, MarkerFile), []byte(markerContent), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", MarkerFile, err)
	}

	log.Info("version installed", "elapsed", time.Since(start).Round(time.Millisecond))
	report("Done", 1, total, total)
	return nil
}

func (in *Installer) installPackage(ctx context.Context, version, installDir string, pkg Package, progress func(float64)) error {
	cachePath := filepath.Join(in.DownloadsDir, pkg.Hash)
	if ok, _ := paths.FileExists(cachePath); ok {
		in.Metrics.PackageDone(metrics.ResultCached)
		progress(1)
	} else {
		var written int64
		err := in.Downloader.Download(ctx, in.Manifests.PackageURL(version, pkg.Name), cachePath, func(cur, tot int64) {
			written = cur
			if tot > 0 {
				progress(float64(cur) / float64(tot))
			} else {
				progress(-1)
			}
		})
		in.Metrics.AddDownloadBytes(written)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDownload, pkg.Name, err)
		}
	}

	dest := PackageDir(installDir, pkg.Name)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrExtract, pkg.Name, err)
	}
	if _, err := in.Extractor.Extract(ctx, cachePath, dest); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrExtract, pkg.Name, err)
	}
	if err := os.Remove(cachePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		in.logger().Warn("remove cached package", "path", cachePath, "error", err)
	}
	in.Metrics.PackageDone(metrics.ResultOK)
	return nil
}

// relocate moves the contents of bundled plugin directories to the install
// root, replacing whatever is already there.
func relocate(installDir string) error {
	for _, rel := range relocatedDirs {
		src := filepath.Join(installDir, rel)
		ok, err := paths.DirExists(src)
		if err != nil {
			return fmt.Errorf("stat %s: %w", src, err)
		}
		if !ok {
			continue
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return fmt.Errorf("read %s: %w", src, err)
		}
		for _, entry := range entries {
			target := filepath.Join(installDir, entry.Name())
			if err := os.RemoveAll(target); err != nil {
				return fmt.Errorf("replace %s: %w", target, err)
			}
			if err := os.Rename(filepath.Join(src, entry.Name()), target); err != nil {
				return fmt.Errorf("relocate %s: %w", entry.Name(), err)
			}
		}
		if err := os.Remove(src); err != nil {
			return fmt.Errorf("remove %s: %w", src, err)
		}
	}
	return nil
}

// workQueue hands out package indices in FIFO order.
type workQueue struct {
	mu    sync.Mutex
	items []int
}

func newWorkQueue(n int) *workQueue {
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	return &workQueue{items: items}
}

func (q *workQueue) next(failed *atomic.Bool) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 || failed.Load() {
		return 0, false
	}
	idx := q.items[0]
	q.items = q.items[1:]
	return idx, true
}

func (q *workQueue) remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
