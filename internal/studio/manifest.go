// Package studio resolves, downloads and installs versioned Roblox Studio
// package sets.
package studio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	ErrManifestFetch = errors.New("manifest fetch failed")
	ErrManifestParse = errors.New("manifest parse failed")
)

// Package describes one archive of a studio version.
type Package struct {
	Name       string
	Hash       string
	Size       int64
	PackedSize int64
}

// ParseManifest reads a package manifest: a header line followed by
// four-line records (name, hash, size, packed size). Blank lines between
// records are ignored. Unparsable sizes read as 0.
func ParseManifest(r io.Reader) ([]Package, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("%w: read header: %v", ErrManifestParse, err)
		}
		return nil, fmt.Errorf("%w: missing header", ErrManifestParse)
	}

	var packages []Package
	line := 1
	for scanner.Scan() {
		line++
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}

		var fields [3]string
		for i := range fields {
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrManifestParse, err)
				}
				return nil, fmt.Errorf("%w: record %q starting at line %d is truncated", ErrManifestParse, name, line)
			}
			fields[i] = strings.TrimSpace(scanner.Text())
		}
		line += len(fields)

		packages = append(packages, Package{
			Name:       name,
			Hash:       fields[0],
			Size:       parseSize(fields[1]),
			PackedSize: parseSize(fields[2]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestParse, err)
	}
	return packages, nil
}

func parseSize(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
