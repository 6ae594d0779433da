package provision

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"vinestudio/internal/paths"
	"vinestudio/internal/release"
)

// MetadataFile is the provenance sidecar written inside each provisioned root.
const MetadataFile = "vinestudio_meta.json"

// Metadata records where a provisioned root came from.
type Metadata struct {
	Repo     string `json:"repo"`
	Tag      string `json:"tag"`
	Asset    string `json:"asset"`
	IsProton bool   `json:"isProton"`
}

// Installation is one provisioned root on disk.
type Installation struct {
	Name      string   `json:"name"`
	Path      string   `json:"path"`
	IsProton  bool     `json:"isProton"`
	SizeBytes int64    `json:"sizeBytes"`
	Meta      Metadata `json:"meta"`
}

// IsRuntimeRoot reports whether dir looks like a Wine or Proton build.
func IsRuntimeRoot(dir string) bool {
	for _, rel := range []string{"bin/wine", "files/bin/wine"} {
		if ok, _ := paths.FileExists(filepath.Join(dir, filepath.FromSlash(rel))); ok {
			return true
		}
	}
	return false
}

// IsProtonRoot reports whether dir carries the Proton launcher script.
func IsProtonRoot(dir string) bool {
	ok, _ := paths.FileExists(filepath.Join(dir, "proton"))
	return ok
}

// IsGraphicsRoot reports whether dir looks like a DXVK build.
func IsGraphicsRoot(dir string) bool {
	for _, arch := range []string{"x64", "x86"} {
		if ok, _ := paths.DirExists(filepath.Join(dir, arch)); ok {
			return true
		}
	}
	return false
}

// WriteMetadata stores meta beside a provisioned root.
func WriteMetadata(root string, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, MetadataFile), data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// ReadMetadata loads the sidecar of root. A missing file yields zero metadata.
func ReadMetadata(root string) (Metadata, error) {
	data, err := os.ReadFile(filepath.Join(root, MetadataFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Metadata{}, nil
		}
		return Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

// ListInstalled returns the provisioned roots of kind, sorted by name.
func (p *Provisioner) ListInstalled(kind release.Kind) ([]Installation, error) {
	baseDir := p.Dir(kind)
	dirs, err := listDirs(baseDir)
	if err != nil {
		return nil, err
	}
	hasMarker := IsRuntimeRoot
	if kind == release.GraphicsLayer {
		hasMarker = IsGraphicsRoot
	}

	var out []Installation
	for _, name := range sortedKeys(dirs) {
		dir := filepath.Join(baseDir, name)
		if !hasMarker(dir) {
			continue
		}
		meta, err := ReadMetadata(dir)
		if err != nil {
			p.logger().Warn("ignoring unreadable metadata", "root", dir, "error", err)
		}
		out = append(out, Installation{
			Name:      name,
			Path:      dir,
			IsProton:  kind == release.Runtime && IsProtonRoot(dir),
			SizeBytes: dirSize(dir),
			Meta:      meta,
		})
	}
	return out, nil
}

// Delete removes a provisioned root. The path must live directly under the
// runner or DXVK directory.
func (p *Provisioner) Delete(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", root, err)
	}
	parent := filepath.Dir(abs)
	allowed := false
	for _, dir := range []string{p.WineDir, p.DXVKDir} {
		if dir == "" {
			continue
		}
		if d, err := filepath.Abs(dir); err == nil && d == parent {
			allowed = true
		}
	}
	if !allowed {
		return fmt.Errorf("refusing to delete %s: not a provisioned root", root)
	}
	if ok, _ := paths.DirExists(abs); !ok {
		return fmt.Errorf("%s does not exist", root)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("delete %s: %w", root, err)
	}
	return nil
}

// FindInstalled returns the first root of kind whose name contains fragment,
// or any root when fragment is empty.
func (p *Provisioner) FindInstalled(kind release.Kind, fragment string) (Installation, bool) {
	installs, err := p.ListInstalled(kind)
	if err != nil {
		return Installation{}, false
	}
	for _, inst := range installs {
		if fragment == "" || strings.Contains(inst.Name, fragment) {
			return inst, true
		}
	}
	return Installation{}, false
}

func listDirs(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	out := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			out[entry.Name()] = true
		}
	}
	return out, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
