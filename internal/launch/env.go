package launch

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"vinestudio/internal/config"
	"vinestudio/internal/layer"
	"vinestudio/internal/paths"
	"vinestudio/internal/wine"
)

const (
	debugWineDebug = "warn+all,err+all,fixme+all,+debugstr"
	quietWineDebug = "-all"

	baseDLLOverrides = "dxdiagn=;winemenubuilder.exe=;mscoree=;mshtml=;gameoverlayrenderer=;gameoverlayrenderer64=;"
	dxvkDLLOverrides = "dxgi,d3d11,d3d10core,d3d9=n,b;"

	fallbackSteamRoot = "/usr/lib/steam"
)

// EnvVar is one variable in application order.
type EnvVar struct {
	Key   string
	Value string
}

// environment lists the variables a launch sets, in the order they are
// applied. Later entries win over custom variables with the same key.
func (l *Launcher) environment(pfx *wine.Prefix, mode Mode, cfg config.Config) []EnvVar {
	var vars []EnvVar
	add := func(k, v string) { vars = append(vars, EnvVar{Key: k, Value: v}) }

	if mode == ModeWine {
		if bin := pfx.Bin("wine"); filepath.IsAbs(bin) && paths.Exists(bin) {
			add("PATH", filepath.Dir(bin)+":"+os.Getenv("PATH"))
		}
	}
	add("WINEESYNC", "1")
	add("SDL_VIDEODRIVER", "x11")
	add("VK_LOADER_LAYERS_ENABLE", layer.Name)
	if gpu := cfg.General.GPUIndex(); gpu >= 0 {
		add("DRI_PRIME", strconv.Itoa(gpu))
	}

	keys := make([]string, 0, len(cfg.General.Env))
	for k := range cfg.General.Env {
		if strings.TrimSpace(k) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, cfg.General.Env[k])
	}

	if bus, ok := os.LookupEnv("DBUS_SESSION_BUS_ADDRESS"); ok {
		add("DBUS_SESSION_BUS_ADDRESS", bus)
	}
	if l.Debug {
		add("WINEDEBUG", debugWineDebug)
	} else {
		add("WINEDEBUG", quietWineDebug)
	}
	overrides := baseDLLOverrides
	if cfg.General.DXVKEnabled() {
		overrides = dxvkDLLOverrides + overrides
	}
	add("WINEDLLOVERRIDES", overrides)

	if mode == ModeProton {
		add("STEAM_COMPAT_DATA_PATH", l.Paths.CompatDataDir)
		add("STEAM_COMPAT_CLIENT_INSTALL_PATH", steamRoot())
	}
	return vars
}

func (l *Launcher) configureEnvironment(pfx *wine.Prefix, mode Mode, cfg config.Config) {
	for _, v := range l.environment(pfx, mode, cfg) {
		pfx.SetEnv(v.Key, v.Value)
	}
}

func steamRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, ".steam", "steam")
		if ok, _ := paths.DirExists(candidate); ok {
			return candidate
		}
	}
	return fallbackSteamRoot
}
