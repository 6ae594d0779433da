package release

import (
	"errors"
	"fmt"
	"strings"
)

// Kind selects the asset preference order.
type Kind int

const (
	// Runtime is a Wine or Proton build.
	Runtime Kind = iota
	// GraphicsLayer is a DXVK build.
	GraphicsLayer
)

func (k Kind) String() string {
	switch k {
	case Runtime:
		return "runtime"
	case GraphicsLayer:
		return "graphics layer"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// LatestVersion selects the first release of a listing.
const LatestVersion = "latest"

var (
	ErrVersionNotFound = errors.New("release version not found")
	ErrAssetNotFound   = errors.New("no matching release asset")
)

var preferredSuffixes = map[Kind][]string{
	Runtime:       {".tar.xz", ".tar.gz", ".tar"},
	GraphicsLayer: {".tar.gz"},
}

var rejectedSuffixes = []string{".sha512", ".asc", ".sig", ".sum", ".sha256"}

// Selection is the outcome of resolving a version and asset.
type Selection struct {
	Tag   string
	Asset Asset
}

// Resolve picks the release matching version ("latest" or an exact tag)
// and, within it, the named asset or the best archive for kind.
func Resolve(releases []Release, version, assetName string, kind Kind) (Selection, error) {
	rel, err := findRelease(releases, version)
	if err != nil {
		return Selection{}, err
	}
	asset, err := pickAsset(rel, assetName, kind)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Tag: rel.Tag, Asset: asset}, nil
}

func findRelease(releases []Release, version string) (Release, error) {
	version = strings.TrimSpace(version)
	if version == "" || strings.EqualFold(version, LatestVersion) {
		if len(releases) == 0 {
			return Release{}, fmt.Errorf("%w: no releases published", ErrVersionNotFound)
		}
		return releases[0], nil
	}
	for _, rel := range releases {
		if rel.Tag == version {
			return rel, nil
		}
	}
	return Release{}, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
}

func pickAsset(rel Release, assetName string, kind Kind) (Asset, error) {
	if assetName = strings.TrimSpace(assetName); assetName != "" {
		for _, a := range rel.Assets {
			if a.Name == assetName {
				return a, nil
			}
		}
		return Asset{}, fmt.Errorf("%w: %s has no asset %q", ErrAssetNotFound, rel.Tag, assetName)
	}

	for _, suffix := range preferredSuffixes[kind] {
		for _, a := range rel.Assets {
			name := strings.ToLower(a.Name)
			if isSignature(name) {
				continue
			}
			if strings.Contains(name, suffix) {
				return a, nil
			}
		}
	}
	return Asset{}, fmt.Errorf("%w: %s has no %s archive", ErrAssetNotFound, rel.Tag, kind)
}

func isSignature(lowerName string) bool {
	for _, s := range rejectedSuffixes {
		if strings.Contains(lowerName, s) {
			return true
		}
	}
	return false
}
