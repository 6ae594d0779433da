// Package provision downloads Wine/Proton runner and DXVK archives from
// GitHub releases or direct URLs, unpacks them and records where they came
// from in a sidecar file beside the unpacked root.
package provision

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"vinestudio/internal/archive"
	"vinestudio/internal/metrics"
	"vinestudio/internal/paths"
	"vinestudio/internal/release"
	"vinestudio/internal/transport"
)

var (
	ErrDownload     = errors.New("runtime download failed")
	ErrExtract      = errors.New("runtime extract failed")
	ErrRootNotFound = errors.New("no runtime root found in archive")
	ErrNoSource     = errors.New("source has no downloadable archive")
)

// knownRootPrefixes are directory name fragments used by published runner
// builds. Only consulted when the archive result identifies no root.
var knownRootPrefixes = []string{"wine-", "kombucha-", "GE-Proton", "proton-cachyos"}

// ProgressFunc receives a status line and a fraction in [0,1], or -1 while
// the current step has no measurable progress.
type ProgressFunc func(status string, fraction float64)

// Request names what to provision.
type Request struct {
	Kind      release.Kind
	Repo      string
	Version   string
	Asset     string
	CustomURL string
}

// ReleaseLister lists a repository's releases.
type ReleaseLister interface {
	List(ctx context.Context, repo string) ([]release.Release, error)
}

// Downloader fetches a URL to a file.
type Downloader interface {
	Download(ctx context.Context, url, dest string, onProgress transport.ProgressFunc) error
}

// Extractor unpacks an archive and reports its top-level entries.
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string) (archive.Result, error)
}

// Provisioner installs runner and DXVK builds under WineDir and DXVKDir.
type Provisioner struct {
	Releases   ReleaseLister
	Downloader Downloader
	Extractor  Extractor
	WineDir    string
	DXVKDir    string
	Logger     hclog.Logger
	Metrics    *metrics.Recorder
}

func (p *Provisioner) logger() hclog.Logger {
	if p.Logger == nil {
		return hclog.NewNullLogger()
	}
	return p.Logger
}

// Dir returns the cache directory for kind.
func (p *Provisioner) Dir(kind release.Kind) string {
	if kind == release.GraphicsLayer {
		return p.DXVKDir
	}
	return p.WineDir
}

// Provision downloads, unpacks and tags the build described by req. A final
// progress message is reported on every return path.
func (p *Provisioner) Provision(ctx context.Context, req Request, onProgress ProgressFunc) (inst Installation, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	report := func(status string, fraction float64) {
		if onProgress != nil {
			onProgress(status, fraction)
		}
	}
	log := p.logger().With("kind", req.Kind.String(), "repo", req.Repo)
	defer func() {
		if err != nil {
			log.Error("provision failed", "error", err)
			report("Error: "+err.Error(), 0)
		}
		p.Metrics.Provisioned(req.Kind.String(), err)
	}()

	src, err := p.resolveSource(ctx, req)
	if err != nil {
		return Installation{}, err
	}
	baseDir := p.Dir(req.Kind)
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return Installation{}, fmt.Errorf("create %s: %w", baseDir, err)
	}

	archivePath := filepath.Join(baseDir, src.filename)
	if ok, _ := paths.FileExists(archivePath); !ok {
		report("Downloading "+src.filename+"...", 0)
		var written int64
		err := p.Downloader.Download(ctx, src.url, archivePath, func(cur, total int64) {
			written = cur
			if total > 0 {
				report(src.filename, float64(cur)/float64(total))
			}
		})
		p.Metrics.AddDownloadBytes(written)
		if err != nil {
			return Installation{}, fmt.Errorf("%w: %s: %w", ErrDownload, src.url, err)
		}
	}

	report("Extracting (this may take a moment)...", -1)
	before, err := listDirs(baseDir)
	if err != nil {
		return Installation{}, err
	}
	res, err := p.Extractor.Extract(ctx, archivePath, baseDir)
	if err != nil {
		return Installation{}, fmt.Errorf("%w: %s: %w", ErrExtract, src.filename, err)
	}

	root, err := p.detectRoot(req, baseDir, res.TopLevel, before)
	if err != nil {
		return Installation{}, err
	}

	meta := Metadata{
		Repo:     req.Repo,
		Tag:      src.tag,
		Asset:    src.asset,
		IsProton: req.Kind == release.Runtime && IsProtonRoot(root),
	}
	if err := WriteMetadata(root, meta); err != nil {
		log.Warn("write metadata", "root", root, "error", err)
	}
	if err := os.Remove(archivePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("remove archive", "path", archivePath, "error", err)
	}

	log.Info("provisioned", "root", root, "tag", src.tag, "asset", src.asset)
	report(kindLabel(req.Kind)+" installed to "+root, 1)
	return Installation{Name: filepath.Base(root), Path: root, IsProton: meta.IsProton, Meta: meta}, nil
}

type source struct {
	url      string
	filename string
	tag      string
	asset    string
}

func (p *Provisioner) resolveSource(ctx context.Context, req Request) (source, error) {
	repo := strings.TrimSpace(req.Repo)
	var src source
	switch {
	case repo == release.RepoCustom && strings.TrimSpace(req.CustomURL) != "":
		src = source{url: strings.TrimSpace(req.CustomURL), tag: req.Version}
	case strings.Contains(repo, "://"):
		src = source{url: repo, tag: req.Version}
	case release.IsSentinel(repo) || repo == release.RepoCustom:
		return source{}, fmt.Errorf("%w: %q", ErrNoSource, repo)
	default:
		releases, err := p.Releases.List(ctx, repo)
		if err != nil {
			return source{}, err
		}
		sel, err := release.Resolve(releases, req.Version, req.Asset, req.Kind)
		if err != nil {
			return source{}, fmt.Errorf("resolve %s@%s: %w", repo, req.Version, err)
		}
		src = source{url: sel.Asset.URL, tag: sel.Tag, asset: sel.Asset.Name}
	}

	name, err := filenameFromURL(src.url)
	if err != nil {
		return source{}, err
	}
	src.filename = name
	if src.asset == "" {
		src.asset = name
	}
	return src, nil
}

func filenameFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse download url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("download url %q has no file name", raw)
	}
	return name, nil
}

// detectRoot picks the unpacked root. Entries the archive reported come
// first, then directories that appeared during extraction, then any existing
// directory carrying the marker (filtered by known runner names unless the
// source is a custom one).
func (p *Provisioner) detectRoot(req Request, baseDir string, topLevel []string, before map[string]bool) (string, error) {
	hasMarker := IsRuntimeRoot
	if req.Kind == release.GraphicsLayer {
		hasMarker = IsGraphicsRoot
	}

	for _, name := range topLevel {
		dir := filepath.Join(baseDir, name)
		if ok, _ := paths.DirExists(dir); ok && hasMarker(dir) {
			return dir, nil
		}
	}

	after, err := listDirs(baseDir)
	if err != nil {
		return "", err
	}
	names := sortedKeys(after)
	for _, name := range names {
		if !before[name] && hasMarker(filepath.Join(baseDir, name)) {
			return filepath.Join(baseDir, name), nil
		}
	}

	filter := req.Kind == release.Runtime && strings.TrimSpace(req.Repo) != release.RepoCustom
	for _, name := range names {
		dir := filepath.Join(baseDir, name)
		if !hasMarker(dir) {
			continue
		}
		if filter && !matchesKnownPrefix(name) {
			continue
		}
		p.logger().Debug("root found by directory scan", "root", dir)
		return dir, nil
	}
	return "", fmt.Errorf("%w: %s", ErrRootNotFound, baseDir)
}

func matchesKnownPrefix(name string) bool {
	for _, prefix := range knownRootPrefixes {
		if strings.Contains(name, prefix) {
			return true
		}
	}
	return false
}

func kindLabel(kind release.Kind) string {
	if kind == release.GraphicsLayer {
		return "DXVK"
	}
	return "Wine"
}
