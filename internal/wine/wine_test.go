package wine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

type recordingRunner struct {
	cmds []Command
	err  error
	hook func(Command)
}

func (r *recordingRunner) Start(_ context.Context, c Command) (Result, error) {
	r.cmds = append(r.cmds, c)
	if r.hook != nil {
		r.hook(c)
	}
	return Result{Mode: Synchronous}, r.err
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestBinLayouts(t *testing.T) {
	t.Run("empty root", func(t *testing.T) {
		p := New("", t.TempDir(), nil, nil)
		if got := p.Bin("wine"); got != "wine" {
			t.Fatalf("expected bare name, got %s", got)
		}
	})
	t.Run("plain bin prefers wine64", func(t *testing.T) {
		root := t.TempDir()
		touch(t, filepath.Join(root, "bin", "wine"))
		touch(t, filepath.Join(root, "bin", "wine64"))
		p := New(root, t.TempDir(), nil, nil)
		if got := p.Bin("wine"); got != filepath.Join(root, "bin", "wine64") {
			t.Fatalf("unexpected wine path %s", got)
		}
		if got := p.Bin("wineserver"); got != filepath.Join(root, "bin", "wineserver") {
			t.Fatalf("unexpected wineserver path %s", got)
		}
	})
	t.Run("wine64 falls back to wine", func(t *testing.T) {
		root := t.TempDir()
		touch(t, filepath.Join(root, "dist", "bin", "wine"))
		p := New(root, t.TempDir(), nil, nil)
		if got := p.Bin("wine64"); got != filepath.Join(root, "dist", "bin", "wine") {
			t.Fatalf("unexpected fallback %s", got)
		}
	})
	t.Run("proton layout", func(t *testing.T) {
		root := t.TempDir()
		touch(t, filepath.Join(root, "proton"))
		touch(t, filepath.Join(root, "files", "bin", "wine"))
		p := New(root, t.TempDir(), nil, nil)
		if !p.IsProton() {
			t.Fatal("expected proton")
		}
		if got := p.Bin("wine"); got != filepath.Join(root, "files", "bin", "wine") {
			t.Fatalf("unexpected proton wine %s", got)
		}
	})
}

func TestMergeEnvKeepsOtherKeys(t *testing.T) {
	p := New("", t.TempDir(), nil, nil)
	p.MergeEnv(map[string]string{"A": "1"})
	p.MergeEnv(map[string]string{"B": "2"})
	p.MergeEnv(map[string]string{"A": "3"})
	want := map[string]string{"A": "3", "B": "2"}
	if got := p.Env(); !reflect.DeepEqual(got, want) {
		t.Fatalf("env = %v, want %v", got, want)
	}
}

func TestEnvironLayersPrefixLast(t *testing.T) {
	t.Setenv("VINESTUDIO_TEST_VAR", "from-os")
	t.Setenv("WINEPREFIX", "/should/be/replaced")
	dir := t.TempDir()
	p := New("", dir, nil, nil)
	p.SetEnv("VINESTUDIO_TEST_VAR", "from-map")

	env := map[string]string{}
	for _, kv := range p.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}
	if env["VINESTUDIO_TEST_VAR"] != "from-map" {
		t.Fatalf("map should override process env, got %q", env["VINESTUDIO_TEST_VAR"])
	}
	if env["WINEPREFIX"] != dir {
		t.Fatalf("WINEPREFIX = %q", env["WINEPREFIX"])
	}
	if p.Getenv("VINESTUDIO_TEST_VAR") != "from-map" {
		t.Fatal("Getenv should read the map first")
	}
}

func TestWineCommandShapes(t *testing.T) {
	p := New("", t.TempDir(), nil, nil)
	path, args := p.WineCommand("winecfg", nil)
	if path != "wine64" || !reflect.DeepEqual(args, []string{"winecfg"}) {
		t.Fatalf("unexpected PATH command %s %v", path, args)
	}

	root := t.TempDir()
	touch(t, filepath.Join(root, "proton"))
	p = New(root, t.TempDir(), nil, nil)
	path, args = p.WineCommand("C:\\app.exe", []string{"-x"})
	if path != filepath.Join(root, "proton") || !reflect.DeepEqual(args, []string{"run", "C:\\app.exe", "-x"}) {
		t.Fatalf("unexpected proton command %s %v", path, args)
	}
}

func TestRegistryScriptFormat(t *testing.T) {
	script := RegistryScript([]RegistryEntry{
		{Key: `HKEY_CURRENT_USER\Software\Wine\WineDbg`, Name: "ShowCrashDialog", Value: "0", Type: DWORD},
		{Key: `HKEY_CURRENT_USER\Software\Wine\WineDbg`, Name: "Other", Value: "x"},
		{Key: `HKEY_CLASSES_ROOT\http\shell\open\command`, Value: `"C:\windows\system32\winebrowser.exe" "%1"`},
	})
	want := "Windows Registry Editor Version 5.00\r\n\r\n" +
		"[HKEY_CURRENT_USER\\Software\\Wine\\WineDbg]\r\n" +
		"\"ShowCrashDialog\"=dword:00000000\r\n" +
		"\"Other\"=\"x\"\r\n" +
		"\r\n" +
		"[HKEY_CLASSES_ROOT\\http\\shell\\open\\command]\r\n" +
		"@=\"\\\"C:\\\\windows\\\\system32\\\\winebrowser.exe\\\" \\\"%1\\\"\"\r\n"
	if script != want {
		t.Fatalf("script mismatch\n got: %q\nwant: %q", script, want)
	}
}

func TestRegistryScriptRoundTrip(t *testing.T) {
	in := []RegistryEntry{
		{Key: `HKCU\Software\Wine\DllOverrides`, Name: "dxgi", Value: "native"},
		{Key: `HKCU\Software\Wine\DllOverrides`, Name: `we"ird\name`, Value: `a\b"c`},
		{Key: `HKCU\Software\Wine\Credential Manager`, Name: "EncryptionKey", Value: "0a,ff,10", Type: Binary},
		{Key: `HKCU\Software\Wine\WineDbg`, Name: "ShowCrashDialog", Value: "0x1f", Type: DWORD},
		{Key: `HKCR\https\shell\open\command`, Value: "open"},
	}
	out, err := ParseRegistryScript(RegistryScript(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	in[3].Value = "31"
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("round trip mismatch\n got: %+v\nwant: %+v", out, in)
	}
}

func TestParseRegistryScriptRejectsGarbage(t *testing.T) {
	if _, err := ParseRegistryScript("REGEDIT4\r\n"); !errors.Is(err, ErrRegistryScript) {
		t.Fatalf("expected header error, got %v", err)
	}
	if _, err := ParseRegistryScript(regHeader + "\r\n\"a\"=\"b\"\r\n"); !errors.Is(err, ErrRegistryScript) {
		t.Fatalf("expected keyless value error, got %v", err)
	}
}

func TestApplyRegistryRemovesBatch(t *testing.T) {
	dir := t.TempDir()
	var script string
	runner := &recordingRunner{err: errors.New("regedit failed")}
	runner.hook = func(c Command) {
		data, err := os.ReadFile(filepath.Join(dir, regBatchFile))
		if err == nil {
			script = string(data)
		}
	}
	p := New("", dir, runner, nil)
	err := p.ApplyRegistry(context.Background(), []RegistryEntry{{Key: "HKCU\\X", Name: "a", Value: "b"}})
	if err == nil {
		t.Fatal("expected regedit failure to surface")
	}
	if !strings.HasPrefix(script, regHeader) {
		t.Fatalf("batch file not present during import: %q", script)
	}
	if _, err := os.Stat(filepath.Join(dir, regBatchFile)); !os.IsNotExist(err) {
		t.Fatal("batch file should be removed")
	}
	c := runner.cmds[0]
	if c.Path != "wine64" || !reflect.DeepEqual(c.Args, []string{"regedit", "/s", "Z:" + filepath.Join(dir, regBatchFile)}) || !c.Wait {
		t.Fatalf("unexpected command %+v", c)
	}
}

func TestRegistryExistsFollowsExitStatus(t *testing.T) {
	runner := &recordingRunner{}
	p := New("", t.TempDir(), runner, nil)
	if !p.RegistryExists(context.Background(), "HKCU\\X", "v") {
		t.Fatal("exit 0 should mean present")
	}
	runner.err = &ExitError{Path: "wine64", Code: 1}
	if p.RegistryExists(context.Background(), "HKCU\\X", "v") {
		t.Fatal("non-zero exit should mean absent")
	}
}

func TestInstallDXVKCopiesByArch(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "x64", "d3d11.dll"))
	touch(t, filepath.Join(root, "x64", "dxgi.dll"))
	touch(t, filepath.Join(root, "x64", "README"))
	touch(t, filepath.Join(root, "x86", "d3d11.dll"))
	dir := t.TempDir()
	p := New("", dir, nil, nil)

	n, err := p.InstallDXVK(root)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 dlls, got %d", n)
	}
	for _, rel := range []string{"system32/d3d11.dll", "system32/dxgi.dll", "syswow64/d3d11.dll"} {
		if _, err := os.Stat(filepath.Join(dir, "drive_c", "windows", filepath.FromSlash(rel))); err != nil {
			t.Fatalf("missing %s: %v", rel, err)
		}
	}
}

func TestExecRunnerStreamsLines(t *testing.T) {
	var lines []string
	res, err := ExecRunner{}.Start(context.Background(), Command{
		Path:   "/bin/sh",
		Args:   []string{"-c", "echo one; echo two 1>&2; echo three"},
		Output: func(line string) { lines = append(lines, line) },
		Wait:   true,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Mode != Synchronous || res.ExitCode != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(lines) != 3 || lines[0] != "one" || lines[2] != "three" {
		t.Fatalf("unexpected lines %v", lines)
	}
}

func TestExecRunnerExitCode(t *testing.T) {
	res, err := ExecRunner{}.Start(context.Background(), Command{Path: "/bin/sh", Args: []string{"-c", "exit 3"}, Wait: true})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 3 || res.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %+v %v", res, err)
	}
}

func TestExecRunnerDetached(t *testing.T) {
	res, err := ExecRunner{}.Start(context.Background(), Command{Path: "/bin/sh", Args: []string{"-c", "sleep 0.2"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Mode != Detached || res.PID == 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	select {
	case <-res.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("detached process never exited")
	}
	if res.Alive() {
		t.Fatal("process should be reported dead after exit")
	}
}
