package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default repositories and presets offered for runner and DXVK sources.
var (
	WineRepos = []string{"vinegarhq/wine-builds", "GloriousEggroll/proton-ge-custom", "CachyOS/proton-cachyos"}
	DXVKRepos = []string{"doitsujin/dxvk", "Sarek-S/dxvk-guerilla"}
)

const (
	DefaultChannel    = "production"
	DefaultResolution = "1920x1080"
	DefaultWorkers    = 4
	DefaultRenderer   = "D3D11"
)

// Config is the persisted launcher configuration.
type Config struct {
	Version int            `yaml:"version"`
	General GeneralConfig  `yaml:"general"`
	Wine    WineConfig     `yaml:"wine"`
	FFlags  map[string]any `yaml:"fflags,omitempty"`
}

// SourceConfig describes where a runner or DXVK build comes from and where
// the selected build was unpacked.
type SourceConfig struct {
	Repo          string `yaml:"repo"`
	Version       string `yaml:"version"`
	Asset         string `yaml:"asset,omitempty"`
	InstalledRoot string `yaml:"installed_root,omitempty"`
	CustomURL     string `yaml:"custom_url,omitempty"`
	CustomPath    string `yaml:"custom_path,omitempty"`
}

// GeneralConfig holds runner, graphics and studio channel settings.
type GeneralConfig struct {
	Renderer      string            `yaml:"renderer"`
	DXVK          *bool             `yaml:"dxvk,omitempty"`
	DXVKSource    SourceConfig      `yaml:"dxvk_source"`
	WineSource    SourceConfig      `yaml:"wine_source"`
	StudioVersion string            `yaml:"studio_version,omitempty"`
	Channel       string            `yaml:"channel"`
	CDNBase       string            `yaml:"cdn_base,omitempty"`
	SelectedGPU   *int              `yaml:"selected_gpu,omitempty"`
	Env           map[string]string `yaml:"env,omitempty"`
	Workers       int               `yaml:"workers,omitempty"`
}

// WineConfig controls the virtual desktop wrapper.
type WineConfig struct {
	DesktopMode       bool   `yaml:"desktop_mode"`
	MultipleDesktops  bool   `yaml:"multiple_desktops"`
	DesktopResolution string `yaml:"desktop_resolution"`
}

// DXVKEnabled returns the effective DXVK flag, defaulting to on.
func (g GeneralConfig) DXVKEnabled() bool {
	if g.DXVK == nil {
		return true
	}
	return *g.DXVK
}

// GPUIndex returns the configured GPU or -1 when none is selected.
func (g GeneralConfig) GPUIndex() int {
	if g.SelectedGPU == nil {
		return -1
	}
	return *g.SelectedGPU
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Version: 1,
		General: GeneralConfig{
			Renderer:   DefaultRenderer,
			DXVK:       boolPtr(true),
			DXVKSource: SourceConfig{Repo: DXVKRepos[0], Version: "latest"},
			WineSource: SourceConfig{Repo: WineRepos[0], Version: "latest"},
			Channel:    DefaultChannel,
			Workers:    DefaultWorkers,
		},
		Wine: WineConfig{
			DesktopResolution: DefaultResolution,
		},
	}
}

// Load reads the YAML configuration from disk if it exists, otherwise returns
// the default configuration.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills fields the YAML left empty.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	if c.Version == 0 {
		c.Version = defaults.Version
	}
	if strings.TrimSpace(c.General.Renderer) == "" {
		c.General.Renderer = defaults.General.Renderer
	}
	if c.General.DXVK == nil {
		c.General.DXVK = boolPtr(true)
	}
	if strings.TrimSpace(c.General.Channel) == "" {
		c.General.Channel = defaults.General.Channel
	}
	if c.General.Workers <= 0 {
		c.General.Workers = defaults.General.Workers
	}
	applySourceDefaults(&c.General.WineSource, defaults.General.WineSource)
	applySourceDefaults(&c.General.DXVKSource, defaults.General.DXVKSource)
	if strings.TrimSpace(c.Wine.DesktopResolution) == "" {
		c.Wine.DesktopResolution = defaults.Wine.DesktopResolution
	}
}

func applySourceDefaults(src *SourceConfig, def SourceConfig) {
	if strings.TrimSpace(src.Repo) == "" {
		src.Repo = def.Repo
	}
	if strings.TrimSpace(src.Version) == "" {
		src.Version = def.Version
	}
}

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}

// Save writes the configuration to path through a temporary sibling file.
func (c Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

func boolPtr(v bool) *bool {
	return &v
}

func intPtr(v int) *int {
	return &v
}
