package studio

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"vinestudio/internal/paths"
)

var (
	// ErrNoVersions is returned when no studio version is installed.
	ErrNoVersions = errors.New("no studio versions installed")
	// ErrNotInstalled is returned for a version without its completion marker.
	ErrNotInstalled = errors.New("studio version not installed")
)

// Executable names tried in order inside a version directory.
var executableNames = []string{"RobloxStudioBeta.exe", "RobloxStudio.exe"}

// IsInstalled reports whether version has a directory and a completion marker.
func IsInstalled(versionsDir, version string) bool {
	if strings.TrimSpace(version) == "" {
		return false
	}
	ok, _ := paths.FileExists(filepath.Join(versionsDir, version, MarkerFile))
	return ok
}

// InstalledVersions lists completed installs, newest name first.
func InstalledVersions(versionsDir string) ([]string, error) {
	entries, err := os.ReadDir(versionsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read versions dir: %w", err)
	}
	var versions []string
	for _, entry := range entries {
		if entry.IsDir() && IsInstalled(versionsDir, entry.Name()) {
			versions = append(versions, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))
	return versions, nil
}

// LatestInstalled returns the highest-sorting installed "version-" directory.
func LatestInstalled(versionsDir string) (string, error) {
	versions, err := InstalledVersions(versionsDir)
	if err != nil {
		return "", err
	}
	for _, v := range versions {
		if strings.HasPrefix(v, "version-") {
			return v, nil
		}
	}
	return "", ErrNoVersions
}

// FindExecutable locates the studio binary inside versionDir.
func FindExecutable(versionDir string) (string, error) {
	for _, name := range executableNames {
		candidate := filepath.Join(versionDir, name)
		if ok, _ := paths.FileExists(candidate); ok {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no studio executable in %s", versionDir)
}

// WriteFFlags writes ClientSettings/ClientAppSettings.json for a version.
func WriteFFlags(versionDir string, flags map[string]any) error {
	dir := filepath.Join(versionDir, "ClientSettings")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create client settings dir: %w", err)
	}
	if flags == nil {
		flags = map[string]any{}
	}
	data, err := json.MarshalIndent(flags, "", "    ")
	if err != nil {
		return fmt.Errorf("encode fflags: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ClientAppSettings.json"), data, 0o644); err != nil {
		return fmt.Errorf("write fflags: %w", err)
	}
	return nil
}

// Remove deletes an installed version directory.
func Remove(versionsDir, version string) error {
	if strings.TrimSpace(version) == "" || strings.ContainsAny(version, `/\`) || version == ".." {
		return fmt.Errorf("invalid version %q", version)
	}
	if err := os.RemoveAll(filepath.Join(versionsDir, version)); err != nil {
		return fmt.Errorf("remove version %s: %w", version, err)
	}
	return nil
}

// RemoveIncomplete deletes a version directory that exists without its
// completion marker, as left behind by an interrupted install. It reports
// whether a directory was removed.
func RemoveIncomplete(versionsDir, version string) (bool, error) {
	if IsInstalled(versionsDir, version) {
		return false, nil
	}
	exists, err := paths.DirExists(filepath.Join(versionsDir, version))
	if err != nil || !exists {
		return false, err
	}
	if err := Remove(versionsDir, version); err != nil {
		return false, err
	}
	return true, nil
}
