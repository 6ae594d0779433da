package wine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"vinestudio/internal/paths"
)

// InstallDXVK copies the DLLs of a DXVK build into the prefix: x64 into
// system32 and x32 (or x86) into syswow64. It returns the number of files copied.
func (p *Prefix) InstallDXVK(dxvkRoot string) (int, error) {
	if ok, _ := paths.DirExists(dxvkRoot); !ok {
		return 0, fmt.Errorf("dxvk root %s does not exist", dxvkRoot)
	}
	windows := filepath.Join(p.dir, "drive_c", "windows")

	copied, err := copyDLLs(filepath.Join(dxvkRoot, "x64"), filepath.Join(windows, "system32"))
	if err != nil {
		return copied, err
	}
	src32 := filepath.Join(dxvkRoot, "x32")
	if ok, _ := paths.DirExists(src32); !ok {
		src32 = filepath.Join(dxvkRoot, "x86")
	}
	n, err := copyDLLs(src32, filepath.Join(windows, "syswow64"))
	return copied + n, err
}

func copyDLLs(src, dst string) (int, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", src, err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".dll") {
			continue
		}
		if err := copyFile(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
