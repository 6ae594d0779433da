package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDXVKEnabledDefault(t *testing.T) {
	cfg := Config{}
	if !cfg.General.DXVKEnabled() {
		t.Fatal("expected DXVKEnabled() = true when DXVK is nil")
	}
	cfg.General.DXVK = boolPtr(false)
	if cfg.General.DXVKEnabled() {
		t.Fatal("expected DXVKEnabled() = false")
	}
}

func TestGPUIndex(t *testing.T) {
	var g GeneralConfig
	if g.GPUIndex() != -1 {
		t.Fatalf("expected -1 without selection, got %d", g.GPUIndex())
	}
	g.SetGPU(1)
	if g.GPUIndex() != 1 {
		t.Fatalf("expected 1, got %d", g.GPUIndex())
	}
	g.SetGPU(-3)
	if g.SelectedGPU != nil {
		t.Fatal("expected negative index to clear selection")
	}
}

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.General.WineSource.Repo != "vinegarhq/wine-builds" || cfg.General.DXVKSource.Repo != "doitsujin/dxvk" {
		t.Fatalf("unexpected default repos %+v %+v", cfg.General.WineSource, cfg.General.DXVKSource)
	}
	if cfg.General.Channel != DefaultChannel || cfg.General.Workers != DefaultWorkers {
		t.Fatalf("unexpected defaults %+v", cfg.General)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("general:\n  wine_source:\n    repo: GloriousEggroll/proton-ge-custom\n  env:\n    FOO: bar\nwine:\n  desktop_mode: true\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.General.WineSource.Repo != "GloriousEggroll/proton-ge-custom" {
		t.Fatalf("repo not loaded: %q", cfg.General.WineSource.Repo)
	}
	if cfg.General.WineSource.Version != "latest" {
		t.Fatalf("expected version default, got %q", cfg.General.WineSource.Version)
	}
	if cfg.General.Env["FOO"] != "bar" || !cfg.Wine.DesktopMode {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Wine.DesktopResolution != DefaultResolution {
		t.Fatalf("expected default resolution, got %q", cfg.Wine.DesktopResolution)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.General.WineSource.InstalledRoot = "/data/wine/wine-9.0"
	cfg.FFlags = map[string]any{"FFlagDebugGraphicsPreferVulkan": true}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.General.WineSource.InstalledRoot != "/data/wine/wine-9.0" {
		t.Fatalf("installed root lost: %+v", loaded.General.WineSource)
	}
	if v, ok := loaded.FFlags["FFlagDebugGraphicsPreferVulkan"].(bool); !ok || !v {
		t.Fatalf("fflag lost: %+v", loaded.FFlags)
	}
}

func TestStoreUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Update(func(c *Config) {
		c.General.DXVKSource.InstalledRoot = "/data/dxvk/dxvk-2.3"
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if store.Config().General.DXVKSource.InstalledRoot != "/data/dxvk/dxvk-2.3" {
		t.Fatal("in-memory config not updated")
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.General.DXVKSource.InstalledRoot != "/data/dxvk/dxvk-2.3" {
		t.Fatal("update not persisted")
	}
}

func TestStoreUpdateDoesNotAliasEnv(t *testing.T) {
	cfg := Default()
	cfg.General.Env = map[string]string{"A": "1"}
	store := NewStore("", cfg)
	snapshot := store.Config()
	if err := store.Update(func(c *Config) { c.General.Env["A"] = "2" }); err != nil {
		t.Fatal(err)
	}
	if snapshot.General.Env["A"] != "1" {
		t.Fatal("earlier snapshot mutated by update")
	}
	if store.Config().General.Env["A"] != "2" {
		t.Fatal("update not applied")
	}
}
