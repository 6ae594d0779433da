package studio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"vinestudio/internal/archive"
	"vinestudio/internal/metrics"
	"vinestudio/internal/transport"
)

type fakeManifests struct {
	packages []Package
	calls    atomic.Int32
}

func (f *fakeManifests) Manifest(context.Context, string) ([]Package, error) {
	f.calls.Add(1)
	return f.packages, nil
}

func (f *fakeManifests) PackageURL(version, name string) string {
	return "fake://" + version + "/" + name
}

type fakeDownloader struct {
	mu       sync.Mutex
	attempts []string
	failOn   string
	delay    time.Duration
}

func (f *fakeDownloader) Download(_ context.Context, url, dest string, onProgress transport.ProgressFunc) error {
	f.mu.Lock()
	f.attempts = append(f.attempts, url)
	f.mu.Unlock()
	if f.failOn != "" && url == f.failOn {
		return errors.New("connection reset")
	}
	for i := int64(1); i <= 4; i++ {
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		if onProgress != nil {
			onProgress(i*25, 100)
		}
	}
	return os.WriteFile(dest, []byte(url), 0o644)
}

type fakeExtractor struct {
	mu    sync.Mutex
	dests []string
}

func (f *fakeExtractor) Extract(_ context.Context, archivePath, destDir string) (archive.Result, error) {
	f.mu.Lock()
	f.dests = append(f.dests, destDir)
	f.mu.Unlock()
	name := filepath.Base(archivePath) + ".txt"
	if err := os.WriteFile(filepath.Join(destDir, name), []byte("x"), 0o644); err != nil {
		return archive.Result{}, err
	}
	return archive.Result{TopLevel: []string{name}, Files: 1}, nil
}

func newTestInstaller(t *testing.T, pkgs []Package) (*Installer, *fakeManifests, *fakeDownloader, *fakeExtractor) {
	t.Helper()
	root := t.TempDir()
	m := &fakeManifests{packages: pkgs}
	d := &fakeDownloader{}
	e := &fakeExtractor{}
	return &Installer{
		Manifests:    m,
		Downloader:   d,
		Extractor:    e,
		VersionsDir:  filepath.Join(root, "versions"),
		DownloadsDir: filepath.Join(root, "downloads"),
		Workers:      4,
		Metrics:      metrics.New(),
	}, m, d, e
}

func packagesN(n int) []Package {
	pkgs := make([]Package, n)
	for i := range pkgs {
		pkgs[i] = Package{Name: fmt.Sprintf("content-%02d.zip", i), Hash: fmt.Sprintf("hash%02d", i)}
	}
	return pkgs
}

func TestInstallWritesMarkerAndDone(t *testing.T) {
	in, _, _, ext := newTestInstaller(t, []Package{
		{Name: "RobloxStudio.zip", Hash: "h1"},
		{Name: "content-fonts.zip", Hash: "h2"},
		{Name: "unknown.zip", Hash: "h3"},
	})
	var last string
	if err := in.Install(context.Background(), "version-1", func(item string, _ float64, _, _ int) {
		last = item
	}); err != nil {
		t.Fatalf("install: %v", err)
	}
	if last != "Done" {
		t.Fatalf("expected final Done message, got %q", last)
	}
	if !IsInstalled(in.VersionsDir, "version-1") {
		t.Fatal("marker missing")
	}
	data, err := os.ReadFile(filepath.Join(in.VersionsDir, "version-1", MarkerFile))
	if err != nil || !bytes.Contains(data, []byte("<ContentFolder>content</ContentFolder>\r\n")) {
		t.Fatalf("unexpected marker content %q (%v)", data, err)
	}
	fonts := filepath.Join(in.VersionsDir, "version-1", "content", "fonts", "h2.txt")
	if _, err := os.Stat(fonts); err != nil {
		t.Fatalf("content-fonts not extracted to mapped dir: %v", err)
	}
	if len(ext.dests) != 3 {
		t.Fatalf("expected 3 extractions, got %d", len(ext.dests))
	}
	entries, _ := os.ReadDir(in.DownloadsDir)
	if len(entries) != 0 {
		t.Fatalf("expected cache files removed, found %d", len(entries))
	}
}

func TestInstallIdempotentWithoutNetwork(t *testing.T) {
	in, m, d, _ := newTestInstaller(t, packagesN(3))
	if err := in.Install(context.Background(), "version-2", nil); err != nil {
		t.Fatalf("first install: %v", err)
	}
	before := len(d.attempts)
	var msgs []string
	if err := in.Install(context.Background(), "version-2", func(item string, fraction float64, _, _ int) {
		msgs = append(msgs, item)
		if fraction != 1 {
			t.Errorf("expected completion fraction, got %v", fraction)
		}
	}); err != nil {
		t.Fatalf("second install: %v", err)
	}
	if m.calls.Load() != 1 || len(d.attempts) != before {
		t.Fatalf("second install touched the network: manifest=%d downloads=%d", m.calls.Load(), len(d.attempts)-before)
	}
	if len(msgs) != 1 || msgs[0] != "Already installed" {
		t.Fatalf("unexpected messages %v", msgs)
	}
}

func TestInstallFailFast(t *testing.T) {
	pkgs := packagesN(6)
	in, _, d, _ := newTestInstaller(t, pkgs)
	in.Workers = 1
	d.failOn = in.Manifests.PackageURL("version-3", pkgs[1].Name)

	var last string
	err := in.Install(context.Background(), "version-3", func(item string, _ float64, _, _ int) {
		last = item
	})
	if !errors.Is(err, ErrDownload) {
		t.Fatalf("expected ErrDownload, got %v", err)
	}
	if len(d.attempts) != 2 {
		t.Fatalf("expected downloads to stop after the failure, got %d attempts", len(d.attempts))
	}
	if IsInstalled(in.VersionsDir, "version-3") {
		t.Fatal("failed install must not write the marker")
	}
	if len(last) < 6 || last[:6] != "Error:" {
		t.Fatalf("expected terminal error message, got %q", last)
	}
}

func TestInstallFailFastParallel(t *testing.T) {
	const workers, failAt = 3, 4
	pkgs := packagesN(12)
	in, _, d, _ := newTestInstaller(t, pkgs)
	in.Workers = workers
	d.delay = 20 * time.Millisecond
	d.failOn = in.Manifests.PackageURL("version-5", pkgs[failAt].Name)

	err := in.Install(context.Background(), "version-5", nil)
	if !errors.Is(err, ErrDownload) {
		t.Fatalf("expected ErrDownload, got %v", err)
	}
	d.mu.Lock()
	attempts := len(d.attempts)
	d.mu.Unlock()
	if attempts < failAt+1 || attempts > failAt+workers {
		t.Fatalf("expected between %d and %d download attempts, got %d", failAt+1, failAt+workers, attempts)
	}
	if IsInstalled(in.VersionsDir, "version-5") {
		t.Fatal("failed install must not write the marker")
	}
}

func TestInstallUsesCachedArchive(t *testing.T) {
	pkgs := packagesN(2)
	in, _, d, _ := newTestInstaller(t, pkgs)
	if err := os.MkdirAll(in.DownloadsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(in.DownloadsDir, pkgs[0].Hash), []byte("cached"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := in.Install(context.Background(), "version-4", nil); err != nil {
		t.Fatalf("install: %v", err)
	}
	if len(d.attempts) != 1 {
		t.Fatalf("expected only the uncached package to download, got %v", d.attempts)
	}
}

func TestInstallSerializesCallbacks(t *testing.T) {
	in, _, d, _ := newTestInstaller(t, packagesN(12))
	d.delay = time.Millisecond
	var inside atomic.Int32
	var overlaps atomic.Int32
	err := in.Install(context.Background(), "version-5", func(string, float64, int, int) {
		if inside.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(50 * time.Microsecond)
		inside.Add(-1)
	})
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if overlaps.Load() != 0 {
		t.Fatalf("progress callback ran concurrently %d times", overlaps.Load())
	}
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestInstallEndToEndRelocatesQt5(t *testing.T) {
	studioZip := zipBytes(t, map[string]string{
		"RobloxStudioBeta.exe":       "exe",
		`Qt5\platforms\qwindows.dll`: "qt",
	})
	fontsZip := zipBytes(t, map[string]string{"arial.ttf": "font"})
	manifest := "v0\nRobloxStudio.zip\nhs\n3\n3\ncontent-fonts.zip\nhf\n4\n4\n"

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/version-e2e-rbxPkgManifest.txt":
			_, _ = w.Write([]byte(manifest))
		case "/version-e2e-RobloxStudio.zip":
			_, _ = w.Write(studioZip)
		case "/version-e2e-content-fonts.zip":
			_, _ = w.Write(fontsZip)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	root := t.TempDir()
	tc := transport.New()
	in := &Installer{
		Manifests:    NewClient(tc, srv.URL),
		Downloader:   tc,
		Extractor:    archive.New(nil),
		VersionsDir:  filepath.Join(root, "versions"),
		DownloadsDir: filepath.Join(root, "downloads"),
	}
	if err := in.Install(context.Background(), "version-e2e", nil); err != nil {
		t.Fatalf("install: %v", err)
	}
	dir := filepath.Join(in.VersionsDir, "version-e2e")
	if exe, err := FindExecutable(dir); err != nil || filepath.Base(exe) != "RobloxStudioBeta.exe" {
		t.Fatalf("executable not found: %q %v", exe, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "platforms", "qwindows.dll")); err != nil {
		t.Fatalf("qt5 plugins not relocated: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Qt5")); !os.IsNotExist(err) {
		t.Fatalf("Qt5 dir should be removed after relocation")
	}
	if _, err := os.Stat(filepath.Join(dir, "content", "fonts", "arial.ttf")); err != nil {
		t.Fatalf("fonts missing: %v", err)
	}

	before := hits.Load()
	if err := in.Install(context.Background(), "version-e2e", nil); err != nil {
		t.Fatalf("reinstall: %v", err)
	}
	if hits.Load() != before {
		t.Fatalf("second install made %d requests", hits.Load()-before)
	}
}
