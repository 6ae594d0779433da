package paths

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResolveFlagWins(t *testing.T) {
	root := t.TempDir()
	t.Setenv(rootEnv, filepath.Join(root, "env"))

	pp, err := Resolve(filepath.Join(root, "flag"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if pp.Root != filepath.Join(root, "flag") {
		t.Fatalf("expected flag root, got %s", pp.Root)
	}
}

func TestResolveEnvThenXDG(t *testing.T) {
	root := t.TempDir()
	t.Setenv(rootEnv, filepath.Join(root, "env"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "xdg"))

	pp, err := Resolve("")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if pp.Root != filepath.Join(root, "env") {
		t.Fatalf("expected env root, got %s", pp.Root)
	}

	t.Setenv(rootEnv, "")
	pp, err = Resolve("")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if pp.Root != filepath.Join(root, "xdg", "vinestudio") {
		t.Fatalf("expected xdg root, got %s", pp.Root)
	}
}

func TestNewLayout(t *testing.T) {
	pp := New("/data")
	if pp.ConfigFile != "/data/config.yaml" {
		t.Fatalf("unexpected config path %s", pp.ConfigFile)
	}
	if pp.ProtonPrefix() != "/data/compatdata/pfx" {
		t.Fatalf("unexpected proton prefix %s", pp.ProtonPrefix())
	}
	if pp.VersionDir("version-abc") != "/data/versions/version-abc" {
		t.Fatalf("unexpected version dir %s", pp.VersionDir("version-abc"))
	}
	stamp := time.Date(2024, 3, 9, 8, 7, 6, 0, time.UTC)
	if got := pp.SessionLog(stamp); got != "/data/logs/vinestudio_20240309_080706.log" {
		t.Fatalf("unexpected session log %s", got)
	}
}

func TestEnsureDirs(t *testing.T) {
	pp := New(filepath.Join(t.TempDir(), "root"))
	if err := pp.EnsureDirs(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	for _, dir := range []string{pp.VersionsDir, pp.DownloadsDir, pp.PrefixDir, pp.WineDir, pp.DXVKDir, pp.LogsDir} {
		ok, err := DirExists(dir)
		if err != nil || !ok {
			t.Fatalf("expected %s to exist (err=%v)", dir, err)
		}
	}
}

func TestFileAndDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, _ := FileExists(file); !ok {
		t.Fatal("expected file to exist")
	}
	if ok, _ := FileExists(dir); ok {
		t.Fatal("directory must not count as a file")
	}
	if ok, _ := DirExists(filepath.Join(dir, "missing")); ok {
		t.Fatal("missing dir reported as existing")
	}
}
