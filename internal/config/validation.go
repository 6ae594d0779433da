package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"vinestudio/internal/release"
)

// ValidationResult captures a single validation finding.
type ValidationResult struct {
	Level   string `json:"level"` // "error" or "warning"
	Message string `json:"message"`
}

var (
	resolutionPattern = regexp.MustCompile(`^\d+x\d+$`)
	repoPattern       = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)
	knownRenderers    = []string{"D3D11", "Vulkan", "OpenGL", "D3D11FL10"}
)

// Validate reports configuration problems. Errors make a launch impossible;
// warnings flag settings that are probably unintended.
func (c Config) Validate() []ValidationResult {
	var results []ValidationResult
	results = append(results, validateSource("wine_source", c.General.WineSource)...)
	results = append(results, validateSource("dxvk_source", c.General.DXVKSource)...)
	results = append(results, c.validateGeneral()...)
	results = append(results, c.validateWine()...)
	return results
}

// HasErrors reports whether any result is an error.
func HasErrors(results []ValidationResult) bool {
	for _, r := range results {
		if r.Level == "error" {
			return true
		}
	}
	return false
}

func validateSource(field string, src SourceConfig) []ValidationResult {
	var results []ValidationResult
	repo := strings.TrimSpace(src.Repo)
	switch {
	case repo == release.RepoSystem:
	case repo == release.RepoCustomPath:
		if strings.TrimSpace(src.CustomPath) == "" && strings.TrimSpace(src.InstalledRoot) == "" {
			results = append(results, ValidationResult{
				Level:   "error",
				Message: fmt.Sprintf("%s: repo %s requires custom_path", field, release.RepoCustomPath),
			})
		}
	case repo == release.RepoCustom:
		if strings.TrimSpace(src.CustomURL) == "" {
			results = append(results, ValidationResult{
				Level:   "error",
				Message: fmt.Sprintf("%s: repo %s requires custom_url", field, release.RepoCustom),
			})
		}
	case strings.Contains(repo, "://"):
	case !repoPattern.MatchString(repo):
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("%s: repo %q must be user/repo, a URL, %s, %s or %s", field, repo, release.RepoSystem, release.RepoCustomPath, release.RepoCustom),
		})
	}
	if strings.TrimSpace(src.Version) == "" {
		results = append(results, ValidationResult{
			Level:   "warning",
			Message: fmt.Sprintf("%s: empty version, latest will be used", field),
		})
	}
	return results
}

func (c Config) validateGeneral() []ValidationResult {
	var results []ValidationResult
	if !contains(knownRenderers, c.General.Renderer) {
		results = append(results, ValidationResult{
			Level:   "warning",
			Message: fmt.Sprintf("renderer %q is not one of %s", c.General.Renderer, strings.Join(knownRenderers, ", ")),
		})
	}
	if c.General.Workers > 32 {
		results = append(results, ValidationResult{
			Level:   "warning",
			Message: fmt.Sprintf("workers=%d is unusually high", c.General.Workers),
		})
	}
	keys := make([]string, 0, len(c.General.Env))
	for k := range c.General.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.TrimSpace(k) == "" || strings.Contains(k, "=") {
			results = append(results, ValidationResult{
				Level:   "error",
				Message: fmt.Sprintf("env: invalid variable name %q", k),
			})
		}
	}
	return results
}

func (c Config) validateWine() []ValidationResult {
	res := strings.ReplaceAll(c.Wine.DesktopResolution, " ", "")
	if res != "" && !resolutionPattern.MatchString(res) {
		return []ValidationResult{{
			Level:   "error",
			Message: fmt.Sprintf("wine.desktop_resolution %q must look like 1920x1080", c.Wine.DesktopResolution),
		}}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
