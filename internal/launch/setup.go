package launch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"vinestudio/internal/config"
	"vinestudio/internal/paths"
	"vinestudio/internal/provision"
	"vinestudio/internal/release"
	"vinestudio/internal/wine"
)

// SetupMarker is written inside the prefix once the registry defaults are
// imported.
const SetupMarker = ".vinestudio_setup_complete"

const (
	credentialKey   = `HKCU\Software\Wine\Credential Manager`
	encryptionValue = "EncryptionKey"
	browserCommand  = `"C:\windows\system32\winebrowser.exe" "%1"`
)

// ErrNoGraphicsLayer means no DXVK build could be found or provisioned.
var ErrNoGraphicsLayer = errors.New("dxvk build unavailable")

func defaultRegistry() []wine.RegistryEntry {
	const (
		wineDbg   = `HKEY_CURRENT_USER\Software\Wine\WineDbg`
		x11       = `HKEY_CURRENT_USER\Software\Wine\X11 Driver`
		overrides = `HKEY_CURRENT_USER\Software\Wine\DllOverrides`
	)
	return []wine.RegistryEntry{
		{Key: wineDbg, Name: "ShowCrashDialog", Value: "0", Type: wine.DWORD},
		{Key: x11, Name: "UseEGL", Value: "Y"},
		{Key: overrides, Name: "dxgi", Value: "native"},
		{Key: overrides, Name: "d3d11", Value: "native"},
		{Key: overrides, Name: "mscoree", Value: ""},
		{Key: overrides, Name: "mshtml", Value: ""},
		{Key: overrides, Name: "winemenubuilder.exe", Value: ""},
		{Key: `HKEY_CLASSES_ROOT\http\shell\open\command`, Value: browserCommand},
		{Key: `HKEY_CLASSES_ROOT\https\shell\open\command`, Value: browserCommand},
	}
}

// SetupMarkerPath returns the marker location for the configured mode.
func (l *Launcher) SetupMarkerPath() string {
	return filepath.Join(l.Sandbox(DetectMode(l.Store.Config().General.WineSource.Repo)), SetupMarker)
}

// SetupPrefix imports the registry defaults and a Credential Manager key
// once per prefix.
func (l *Launcher) SetupPrefix(ctx context.Context, progress ProgressFunc) (err error) {
	report := reporter(progress)
	defer func() {
		if err != nil {
			report("Error: "+err.Error(), 0)
		}
	}()
	report("Initializing Wine Prefix...", 0)

	pfx, _, err := l.Prefix(ctx, progress)
	if err != nil {
		return err
	}
	marker := filepath.Join(pfx.Dir(), SetupMarker)
	if paths.Exists(marker) {
		l.logger().Info("prefix setup already complete", "prefix", pfx.Dir())
		report("Prefix Ready.", 1)
		return nil
	}

	report("Applying Registry Keys...", -1)
	entries := defaultRegistry()

	report("Checking Credentials...", -1)
	if !pfx.RegistryExists(ctx, credentialKey, encryptionValue) {
		report("Generating Encryption Key...", -1)
		key, err := encryptionKey(rand.Reader)
		if err != nil {
			return err
		}
		entries = append(entries, wine.RegistryEntry{
			Key:   `HKEY_CURRENT_USER\Software\Wine\Credential Manager`,
			Name:  encryptionValue,
			Value: key,
			Type:  wine.Binary,
		})
	}

	if err := pfx.ApplyRegistry(ctx, entries); err != nil {
		return err
	}
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		return fmt.Errorf("write setup marker: %w", err)
	}
	report("Registry Setup Complete.", 1)
	return nil
}

// encryptionKey returns 8 random bytes as comma-separated hex.
func encryptionKey(r io.Reader) (string, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("generate encryption key: %w", err)
	}
	parts := make([]string, len(buf))
	for i, b := range buf {
		parts[i] = hex.EncodeToString([]byte{b})
	}
	return strings.Join(parts, ","), nil
}

// SetupDXVK copies the configured DXVK build into the prefix, provisioning
// one first when nothing usable is on disk. It is a no-op when DXVK is off.
func (l *Launcher) SetupDXVK(ctx context.Context, progress ProgressFunc) error {
	cfg := l.Store.Config()
	if !cfg.General.DXVKEnabled() {
		return nil
	}
	report := reporter(progress)
	src := cfg.General.DXVKSource

	root := l.dxvkRoot(src)
	if root == "" {
		l.logger().Info("dxvk root not found, downloading", "repo", src.Repo, "version", src.Version)
		report("Downloading DXVK...", 0)
		if l.Provisioner == nil {
			return ErrNoGraphicsLayer
		}
		inst, err := l.Provisioner.Provision(ctx, provision.Request{
			Kind:      release.GraphicsLayer,
			Repo:      src.Repo,
			Version:   src.Version,
			Asset:     src.Asset,
			CustomURL: src.CustomURL,
		}, provision.ProgressFunc(progress))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNoGraphicsLayer, err)
		}
		root = inst.Path
		if err := l.Store.Update(func(c *config.Config) {
			c.General.DXVKSource.InstalledRoot = root
		}); err != nil {
			l.logger().Warn("save dxvk root", "error", err)
		}
	}

	sandbox := l.Sandbox(DetectMode(cfg.General.WineSource.Repo))
	pfx := wine.New("", sandbox, l.Runner, l.logger().Named("wine"))
	n, err := pfx.InstallDXVK(root)
	if err != nil {
		return fmt.Errorf("install dxvk: %w", err)
	}
	l.logger().Info("dxvk setup complete", "root", root, "dlls", n)
	return nil
}

func (l *Launcher) dxvkRoot(src config.SourceConfig) string {
	if src.Repo == release.RepoCustomPath {
		for _, candidate := range []string{src.CustomPath, src.InstalledRoot} {
			if candidate != "" && paths.Exists(candidate) {
				return candidate
			}
		}
		return ""
	}
	if src.InstalledRoot != "" && paths.Exists(src.InstalledRoot) {
		return src.InstalledRoot
	}
	entries, err := os.ReadDir(l.Paths.DXVKDir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		dir := filepath.Join(l.Paths.DXVKDir, entry.Name())
		if entry.IsDir() && provision.IsGraphicsRoot(dir) {
			return dir
		}
	}
	return ""
}

func reporter(progress ProgressFunc) ProgressFunc {
	return func(status string, fraction float64) {
		if progress != nil {
			progress(status, fraction)
		}
	}
}
