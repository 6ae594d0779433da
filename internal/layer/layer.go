// Package layer checks that the Vulkan interception layer library is
// installed and restores it from the files shipped next to the binary.
package layer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"vinestudio/internal/paths"
)

// Name is the loader name enabled through VK_LOADER_LAYERS_ENABLE.
const Name = "VK_LAYER_VINESTUDIO_Layer"

// ErrSourceMissing means no bundled copy of the library could be found.
var ErrSourceMissing = errors.New("layer library not bundled with this binary")

// Status is the outcome of a presence check.
type Status struct {
	OK   bool
	Path string
}

// Checker verifies and repairs the layer library at Target.
type Checker struct {
	Target string
	// ExeDir is searched, then its parent, for a bundled library.
	ExeDir string
	// ManifestDir receives the implicit layer JSON. Empty skips it.
	ManifestDir string
	Logger      hclog.Logger
}

// NewChecker targets the library location of the data root and searches the
// directory of the running executable for a bundled copy.
func NewChecker(p paths.AppPaths, logger hclog.Logger) *Checker {
	exeDir := ""
	if exe, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exe)
	}
	manifestDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		manifestDir = filepath.Join(home, ".local", "share", "vulkan", "implicit_layer.d")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Checker{Target: p.LayerLib(), ExeDir: exeDir, ManifestDir: manifestDir, Logger: logger}
}

// Check reports whether the library exists.
func (c *Checker) Check() Status {
	ok, _ := paths.FileExists(c.Target)
	return Status{OK: ok, Path: c.Target}
}

// Repair copies the bundled library to Target and registers the implicit
// layer manifest.
func (c *Checker) Repair() error {
	src, ok := c.bundled()
	if !ok {
		return fmt.Errorf("%w: searched %s", ErrSourceMissing, c.ExeDir)
	}
	if err := os.MkdirAll(filepath.Dir(c.Target), 0o755); err != nil {
		return fmt.Errorf("create layer dir: %w", err)
	}
	if err := copyFile(src, c.Target); err != nil {
		return err
	}
	if c.ManifestDir != "" {
		if err := c.writeManifest(); err != nil {
			return err
		}
	}
	c.logger().Info("restored layer library", "source", src, "target", c.Target)
	return nil
}

// Ensure repairs the library when Check fails.
func (c *Checker) Ensure() error {
	if c.Check().OK {
		return nil
	}
	c.logger().Warn("layer library missing, attempting repair", "path", c.Target)
	return c.Repair()
}

func (c *Checker) bundled() (string, bool) {
	if c.ExeDir == "" {
		return "", false
	}
	name := paths.LayerLibName()
	for _, dir := range []string{c.ExeDir, filepath.Dir(c.ExeDir)} {
		candidate := filepath.Join(dir, name)
		if ok, _ := paths.FileExists(candidate); ok {
			return candidate, true
		}
	}
	return "", false
}

type manifest struct {
	FileFormatVersion string        `json:"file_format_version"`
	Layer             manifestLayer `json:"layer"`
}

type manifestLayer struct {
	Name                  string            `json:"name"`
	Type                  string            `json:"type"`
	LibraryPath           string            `json:"library_path"`
	APIVersion            string            `json:"api_version"`
	ImplementationVersion string            `json:"implementation_version"`
	Description           string            `json:"description"`
	DisableEnvironment    map[string]string `json:"disable_environment"`
}

// ManifestPath is where Repair writes the implicit layer JSON.
func (c *Checker) ManifestPath() string {
	return filepath.Join(c.ManifestDir, "VkLayer_VINESTUDIO_Layer.json")
}

func (c *Checker) writeManifest() error {
	m := manifest{
		FileFormatVersion: "1.0.0",
		Layer: manifestLayer{
			Name:                  Name,
			Type:                  "GLOBAL",
			LibraryPath:           c.Target,
			APIVersion:            "1.0.0",
			ImplementationVersion: "1",
			Description:           "vinestudio Vulkan layer",
			DisableEnvironment:    map[string]string{"DISABLE_VINESTUDIO_LAYER": "1"},
		},
	}
	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return fmt.Errorf("encode layer manifest: %w", err)
	}
	if err := os.MkdirAll(c.ManifestDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", c.ManifestDir, err)
	}
	if err := os.WriteFile(c.ManifestPath(), data, 0o644); err != nil {
		return fmt.Errorf("write layer manifest: %w", err)
	}
	return nil
}

func (c *Checker) logger() hclog.Logger {
	if c.Logger == nil {
		return hclog.NewNullLogger()
	}
	return c.Logger
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy layer library: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
