// Package archive unpacks zip and tar archives (plain, gzip, xz, zstd) into a
// directory. Entry paths are sanitized: leading separators are stripped and
// anything that would climb out of the destination is skipped.
package archive

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Format identifies an archive container/compression pair.
type Format string

const (
	FormatUnknown Format = ""
	FormatZip     Format = "zip"
	FormatTar     Format = "tar"
	FormatTarGz   Format = "tar.gz"
	FormatTarXz   Format = "tar.xz"
	FormatTarZst  Format = "tar.zst"
)

var (
	magicZip  = []byte("PK\x03\x04")
	magicGzip = []byte{0x1f, 0x8b}
	magicXz   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

const maxLinkHops = 40

// Result lists what an extraction wrote.
type Result struct {
	// TopLevel holds the first path element of every entry written, in
	// archive order without duplicates.
	TopLevel []string
	Files    int
}

// Extractor unpacks archives.
type Extractor struct {
	Logger hclog.Logger
}

// New returns an extractor that logs skipped entries to logger.
func New(logger hclog.Logger) *Extractor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Extractor{Logger: logger}
}

func (e *Extractor) logger() hclog.Logger {
	if e == nil || e.Logger == nil {
		return hclog.NewNullLogger()
	}
	return e.Logger
}

// Extract unpacks archivePath into destDir, detecting the format from the
// file name and falling back to the leading magic bytes.
func (e *Extractor) Extract(ctx context.Context, archivePath, destDir string) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	format, err := DetectFormat(archivePath)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("prepare extract dir: %w", err)
	}

	w := &writer{ctx: ctx, dest: destDir, logger: e.logger(), seen: map[string]bool{}}

	switch format {
	case FormatZip:
		err = w.extractZip(archivePath)
	case FormatTar:
		err = w.extractTarFile(archivePath, func(r io.Reader) (io.Reader, func(), error) {
			return r, func() {}, nil
		})
	case FormatTarGz:
		err = w.extractTarFile(archivePath, func(r io.Reader) (io.Reader, func(), error) {
			gz, err := gzip.NewReader(r)
			if err != nil {
				return nil, nil, fmt.Errorf("gzip reader: %w", err)
			}
			return gz, func() { gz.Close() }, nil
		})
	case FormatTarZst:
		err = w.extractTarFile(archivePath, func(r io.Reader) (io.Reader, func(), error) {
			zr, err := zstd.NewReader(r)
			if err != nil {
				return nil, nil, fmt.Errorf("zstd reader: %w", err)
			}
			return zr, zr.Close, nil
		})
	case FormatTarXz:
		err = w.extractTarFile(archivePath, func(r io.Reader) (io.Reader, func(), error) {
			xr, err := xz.NewReader(r)
			if err != nil {
				return nil, nil, fmt.Errorf("xz reader: %w", err)
			}
			return xr, func() {}, nil
		})
	default:
		err = fmt.Errorf("unsupported archive format for %s", archivePath)
	}
	if err != nil {
		return Result{TopLevel: w.top, Files: w.files}, err
	}
	return Result{TopLevel: w.top, Files: w.files}, nil
}

// DetectFormat classifies an archive by extension, then by content.
func DetectFormat(archivePath string) (Format, error) {
	name := strings.ToLower(filepath.Base(archivePath))
	switch {
	case strings.HasSuffix(name, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(name, ".tar.xz"), strings.HasSuffix(name, ".txz"):
		return FormatTarXz, nil
	case strings.HasSuffix(name, ".tar.zst"), strings.HasSuffix(name, ".tzst"):
		return FormatTarZst, nil
	case strings.HasSuffix(name, ".tar"):
		return FormatTar, nil
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return FormatUnknown, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return FormatUnknown, fmt.Errorf("read archive header: %w", err)
	}
	head = head[:n]
	switch {
	case bytes.HasPrefix(head, magicZip):
		return FormatZip, nil
	case bytes.HasPrefix(head, magicGzip):
		return FormatTarGz, nil
	case bytes.HasPrefix(head, magicXz):
		return FormatTarXz, nil
	case bytes.HasPrefix(head, magicZstd):
		return FormatTarZst, nil
	case len(head) >= 262 && string(head[257:262]) == "ustar":
		return FormatTar, nil
	}
	return FormatUnknown, fmt.Errorf("unrecognized archive format: %s", archivePath)
}

// SanitizeEntry maps an archive entry name to a slash-separated path relative
// to the destination. ok is false when the entry must be skipped.
func SanitizeEntry(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return "", false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", false
		}
	}
	clean := path.Clean(name)
	if clean == "." || clean == "" {
		return "", false
	}
	return clean, true
}

type writer struct {
	ctx    context.Context
	dest   string
	logger hclog.Logger
	top    []string
	seen   map[string]bool
	files  int
}

func (w *writer) record(rel string) {
	first := rel
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		first = rel[:i]
	}
	if !w.seen[first] {
		w.seen[first] = true
		w.top = append(w.top, first)
	}
}

func (w *writer) target(name string) (string, string, bool) {
	rel, ok := SanitizeEntry(name)
	if !ok {
		if strings.Trim(name, "/\\.") != "" {
			w.logger.Warn("skipping unsafe archive entry", "entry", name)
		}
		return "", "", false
	}
	target := filepath.Join(w.dest, filepath.FromSlash(rel))
	if w.throughSymlink(target) {
		w.logger.Warn("skipping archive entry below a symlink", "entry", name)
		return "", "", false
	}
	return rel, target, true
}

// throughSymlink reports whether any existing directory between dest and
// target is a symlink. Entries are never written through links.
func (w *writer) throughSymlink(target string) bool {
	rel, err := filepath.Rel(w.dest, filepath.Dir(target))
	if err != nil || rel == "." {
		return false
	}
	cur := w.dest
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if err != nil {
			return false
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return true
		}
	}
	return false
}

// linkEscapes resolves link relative to dir one element at a time, following
// symlinks already extracted, and reports whether the walk ever leaves dest.
func (w *writer) linkEscapes(dir, link string) bool {
	if filepath.IsAbs(link) {
		return true
	}
	cur := dir
	parts := strings.Split(filepath.ToSlash(link), "/")
	hops := 0
	for len(parts) > 0 {
		part := parts[0]
		parts = parts[1:]
		switch part {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
		default:
			cur = filepath.Join(cur, part)
		}
		if !within(w.dest, cur) {
			return true
		}
		info, err := os.Lstat(cur)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		hops++
		if hops > maxLinkHops {
			return true
		}
		next, err := os.Readlink(cur)
		if err != nil || filepath.IsAbs(next) {
			return true
		}
		cur = filepath.Dir(cur)
		parts = append(strings.Split(filepath.ToSlash(next), "/"), parts...)
	}
	return false
}

func (w *writer) extractZip(archivePath string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		isDir := file.FileInfo().IsDir() || strings.HasSuffix(strings.ReplaceAll(file.Name, "\\", "/"), "/")
		rel, target, ok := w.target(file.Name)
		if !ok {
			continue
		}
		w.record(rel)
		if isDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return fmt.Errorf("open zip entry %s: %w", file.Name, err)
		}
		err = w.writeFile(target, rc, file.Mode().Perm())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) extractTarFile(archivePath string, wrap func(io.Reader) (io.Reader, func(), error)) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	r, closeFn, err := wrap(bufio.NewReader(file))
	if err != nil {
		return err
	}
	defer closeFn()
	return w.untar(r)
}

func (w *writer) writeFile(target string, r io.Reader, perm os.FileMode) error {
	if perm == 0 {
		perm = 0o644
	}
	perm |= 0o200
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("prepare file %s: %w", target, err)
	}
	if info, err := os.Lstat(target); err == nil && info.Mode()&os.ModeSymlink != 0 {
		_ = os.Remove(target)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}
	w.files++
	return nil
}

// within reports whether p stays inside root once cleaned.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
