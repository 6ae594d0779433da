package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	rootEnv       = "VINESTUDIO_PATH"
	layerLibName  = "libVkLayer_VINESTUDIO_Layer.so"
	systemLibDir  = "/usr/lib"
	sessionLayout = "20060102_150405"
)

// AppPaths captures canonical locations under the vinestudio data root.
type AppPaths struct {
	Root          string
	ConfigFile    string
	VersionsDir   string
	DownloadsDir  string
	PrefixDir     string
	CompatDataDir string
	WineDir       string
	DXVKDir       string
	LogsDir       string
	LibDir        string
	LockFile      string
}

// Resolve determines the data root. Precedence: the --root flag, then
// $VINESTUDIO_PATH, then $XDG_DATA_HOME/vinestudio, then ~/.local/share/vinestudio.
func Resolve(rootFlag string) (AppPaths, error) {
	root, err := resolveRoot(rootFlag)
	if err != nil {
		return AppPaths{}, err
	}
	return New(root), nil
}

func resolveRoot(rootFlag string) (string, error) {
	if v := strings.TrimSpace(rootFlag); v != "" {
		abs, err := filepath.Abs(v)
		if err != nil {
			return "", fmt.Errorf("resolve root flag: %w", err)
		}
		return abs, nil
	}
	if v := strings.TrimSpace(os.Getenv(rootEnv)); v != "" {
		abs, err := filepath.Abs(v)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", rootEnv, err)
		}
		return abs, nil
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		abs, err := filepath.Abs(xdg)
		if err != nil {
			return "", fmt.Errorf("resolve XDG_DATA_HOME: %w", err)
		}
		return filepath.Join(abs, "vinestudio"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("detect user home: %w", err)
	}
	return filepath.Join(home, ".local", "share", "vinestudio"), nil
}

// New lays out the standard hierarchy beneath root without touching disk.
func New(root string) AppPaths {
	return AppPaths{
		Root:          root,
		ConfigFile:    filepath.Join(root, "config.yaml"),
		VersionsDir:   filepath.Join(root, "versions"),
		DownloadsDir:  filepath.Join(root, "downloads"),
		PrefixDir:     filepath.Join(root, "prefix"),
		CompatDataDir: filepath.Join(root, "compatdata"),
		WineDir:       filepath.Join(root, "wine"),
		DXVKDir:       filepath.Join(root, "dxvk"),
		LogsDir:       filepath.Join(root, "logs"),
		LibDir:        filepath.Join(root, "lib"),
		LockFile:      filepath.Join(root, "vinestudio.lock"),
	}
}

// EnsureDirs creates the data root and every managed subdirectory.
func (p AppPaths) EnsureDirs() error {
	dirs := []string{p.Root, p.VersionsDir, p.DownloadsDir, p.PrefixDir, p.WineDir, p.DXVKDir, p.LogsDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// VersionDir returns the install directory for a studio version.
func (p AppPaths) VersionDir(version string) string {
	return filepath.Join(p.VersionsDir, version)
}

// ProtonPrefix is the sandbox Proton creates inside its compat-data directory.
func (p AppPaths) ProtonPrefix() string {
	return filepath.Join(p.CompatDataDir, "pfx")
}

// SessionLog returns a fresh timestamped log path for this process.
func (p AppPaths) SessionLog(now time.Time) string {
	return filepath.Join(p.LogsDir, "vinestudio_"+now.Format(sessionLayout)+".log")
}

// StudioLog is the rolling log that captures the wine output of the last launch.
func (p AppPaths) StudioLog() string {
	return filepath.Join(p.LogsDir, "studio_latest.log")
}

// LayerLib returns the Vulkan layer library path, preferring a system-wide
// install and falling back to the user data directory.
func (p AppPaths) LayerLib() string {
	system := filepath.Join(systemLibDir, layerLibName)
	if ok, _ := FileExists(system); ok {
		return system
	}
	return filepath.Join(p.LibDir, layerLibName)
}

// LayerLibName is the file name of the interception layer library.
func LayerLibName() string {
	return layerLibName
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// Exists reports whether anything lives at path.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
