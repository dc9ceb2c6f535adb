package platform

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPlatformsIsClosedSet(t *testing.T) {
	want := map[string]bool{
		"darwin:x64": true, "darwin:arm64": true,
		"linux:x64": true, "linux:arm64": true,
		"win32:x64": true, "win32:arm64": true, "win32:ia32": true,
	}
	got := Platforms()
	if len(got) != len(want) {
		t.Fatalf("Platforms() returned %d entries, want %d", len(got), len(want))
	}
	for _, p := range got {
		if !want[p.String()] {
			t.Errorf("unexpected platform %s", p)
		}
	}
}

func TestBinaryPathRejectsUnsupportedPlatform(t *testing.T) {
	if _, err := BinaryPath("plan9", "x64"); err == nil {
		t.Fatal("expected an error for an unsupported platform")
	}
}

func TestBinaryPathFindsOverrideDir(t *testing.T) {
	dir := t.TempDir()
	name := binaryName("linux", "x64")
	if err := os.WriteFile(filepath.Join(dir, name), []byte("fake"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv(BinariesDirVar, dir)

	path, err := BinaryPath("linux", "x64")
	if err != nil {
		t.Fatalf("BinaryPath: %v", err)
	}
	if path != filepath.Join(dir, name) {
		t.Errorf("path = %q, want %q", path, filepath.Join(dir, name))
	}
}

func TestBinaryPathAppendsExeSuffixOnWin32(t *testing.T) {
	name := binaryName("win32", "x64")
	if filepath.Ext(name) != ".exe" {
		t.Errorf("binaryName(win32, x64) = %q, want .exe suffix", name)
	}
}

func TestBinaryPathNotFoundError(t *testing.T) {
	t.Setenv(BinariesDirVar, t.TempDir())
	if _, err := BinaryPath("linux", "arm64"); err == nil {
		t.Fatal("expected an error when the binary cannot be located")
	}
}
