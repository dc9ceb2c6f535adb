// Package platform resolves the native endpoint binary for a given
// operating system and architecture, over the closed set of platforms
// this library ships prebuilt binaries for.
package platform

import (
	"fmt"
	"os"
	"path/filepath"
)

// Platform identifies one supported (OS, architecture) combination.
type Platform struct {
	OS   string
	Arch string
}

func (p Platform) String() string { return p.OS + ":" + p.Arch }

// supported is the closed set of (OS, architecture) pairs this library
// ships native binaries for.
var supported = []Platform{
	{OS: "darwin", Arch: "x64"},
	{OS: "darwin", Arch: "arm64"},
	{OS: "linux", Arch: "x64"},
	{OS: "linux", Arch: "arm64"},
	{OS: "win32", Arch: "x64"},
	{OS: "win32", Arch: "arm64"},
	{OS: "win32", Arch: "ia32"},
}

// Platforms enumerates every supported (OS, architecture) combination.
func Platforms() []Platform {
	out := make([]Platform, len(supported))
	copy(out, supported)
	return out
}

// BinariesDirVar names the environment variable that, when set,
// overrides the default search directory for native binaries.
const BinariesDirVar = "PROCPROXY_BINARIES_DIR"

// BinaryPath resolves the absolute path of the native endpoint binary for
// the given (goos, arch) pair. It checks, in order: BinariesDirVar if set,
// then a "bin" directory next to the running executable, using the
// platform's own binary naming convention (".exe" suffix on win32).
func BinaryPath(goos, arch string) (string, error) {
	if !isSupported(goos, arch) {
		return "", fmt.Errorf("platform: unsupported platform %s:%s", goos, arch)
	}

	name := binaryName(goos, arch)

	if dir := os.Getenv(BinariesDirVar); dir != "" {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "bin", name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("platform: native binary for %s:%s not found (set %s)", goos, arch, BinariesDirVar)
}

func isSupported(goos, arch string) bool {
	for _, p := range supported {
		if p.OS == goos && p.Arch == arch {
			return true
		}
	}
	return false
}

func binaryName(goos, arch string) string {
	base := fmt.Sprintf("procproxy-native-%s-%s", goos, arch)
	if goos == "win32" {
		return base + ".exe"
	}
	return base
}
