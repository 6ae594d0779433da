package studio

import "path/filepath"

// packageDirs maps package names to their directory under the install root.
// Packages not listed extract into the root.
var packageDirs = map[string]string{
	"ApplicationConfig.zip":             "ApplicationConfig/",
	"redist.zip":                        "",
	"RobloxStudio.zip":                  "",
	"Libraries.zip":                     "",
	"LibrariesQt5.zip":                  "",
	"content-avatar.zip":                "content/avatar/",
	"content-configs.zip":               "content/configs/",
	"content-fonts.zip":                 "content/fonts/",
	"content-sky.zip":                   "content/sky/",
	"content-sounds.zip":                "content/sounds/",
	"content-textures2.zip":             "content/textures/",
	"content-studio_svg_textures.zip":   "content/studio_svg_textures/",
	"content-models.zip":                "content/models/",
	"content-textures3.zip":             "PlatformContent/pc/textures/",
	"content-terrain.zip":               "PlatformContent/pc/terrain/",
	"content-platform-fonts.zip":        "PlatformContent/pc/fonts/",
	"content-platform-dictionaries.zip": "PlatformContent/pc/shared_compression_dictionaries/",
	"content-qt_translations.zip":       "content/qt_translations/",
	"content-api-docs.zip":              "content/api_docs/",
	"extracontent-scripts.zip":          "ExtraContent/scripts/",
	"extracontent-luapackages.zip":      "ExtraContent/LuaPackages/",
	"extracontent-translations.zip":     "ExtraContent/translations/",
	"extracontent-models.zip":           "ExtraContent/models/",
	"extracontent-textures.zip":         "ExtraContent/textures/",
	"studiocontent-models.zip":          "StudioContent/models/",
	"studiocontent-textures.zip":        "StudioContent/textures/",
	"shaders.zip":                       "shaders/",
	"BuiltInPlugins.zip":                "BuiltInPlugins/",
	"BuiltInStandalonePlugins.zip":      "BuiltInStandalonePlugins/",
	"Plugins.zip":                       "Plugins/",
	"RibbonConfig.zip":                  "RibbonConfig/",
	"StudioFonts.zip":                   "StudioFonts/",
	"ssl.zip":                           "ssl/",
}

// relocatedDirs are extracted bundles whose contents belong at the root.
var relocatedDirs = []string{
	"Qt5",
	filepath.Join("Plugins", "Qt5"),
}

// PackageDir returns the destination directory of pkg within installDir.
func PackageDir(installDir, name string) string {
	sub, ok := packageDirs[name]
	if !ok || sub == "" {
		return installDir
	}
	return filepath.Join(installDir, filepath.FromSlash(sub))
}
