package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

func (w *writer) untar(r io.Reader) error {
	tr := tar.NewReader(r)
	for {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}
		rel, target, ok := w.target(header.Name)
		if !ok {
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			w.record(rel)
			mode := os.FileMode(header.Mode).Perm() | 0o700
			if err := os.MkdirAll(target, mode); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg, tar.TypeRegA:
			w.record(rel)
			if err := w.writeFile(target, tr, os.FileMode(header.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if w.linkEscapes(filepath.Dir(target), header.Linkname) {
				w.logger.Warn("skipping symlink escaping destination", "entry", header.Name, "target", header.Linkname)
				continue
			}
			w.record(rel)
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("prepare symlink %s: %w", target, err)
			}
			_ = os.RemoveAll(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("create symlink %s: %w", target, err)
			}
		case tar.TypeLink:
			_, source, ok := w.target(header.Linkname)
			if !ok {
				w.logger.Warn("skipping unsafe hardlink", "entry", header.Name, "target", header.Linkname)
				continue
			}
			w.record(rel)
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("prepare hardlink %s: %w", target, err)
			}
			_ = os.Remove(target)
			if err := os.Link(source, target); err != nil {
				return fmt.Errorf("create hardlink %s: %w", target, err)
			}
		default:
			// Device nodes, fifos and pax headers are not needed by any runner build.
		}
	}
}
