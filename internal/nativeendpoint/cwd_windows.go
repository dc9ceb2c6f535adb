//go:build windows

package nativeendpoint

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// maxPath mirrors the Win32 MAX_PATH constant used by the original C
// native endpoint to decide when the short (8.3) path fallback is
// needed.
const maxPath = 260

// getCwd returns the current working directory using the wide-character
// Win32 API, following the original native endpoint: GetCurrentDirectoryW
// is tried first; if the result exceeds MAX_PATH, GetShortPathNameW is
// used to obtain a form that fits, which is then converted to UTF-8 for
// the wire.
func getCwd() (string, error) {
	n, err := windows.GetCurrentDirectory(0, nil)
	if err != nil {
		return "", fmt.Errorf("GetCurrentDirectoryW: %w", err)
	}

	buf := make([]uint16, n)
	if _, err := windows.GetCurrentDirectory(uint32(len(buf)), &buf[0]); err != nil {
		return "", fmt.Errorf("GetCurrentDirectoryW: %w", err)
	}
	wide := buf

	if int(n) > maxPath {
		short := make([]uint16, 32768)
		sn, err := windows.GetShortPathName(&wide[0], &short[0], uint32(len(short)))
		if err == nil && sn > 0 {
			wide = short[:sn]
		}
	}

	return windows.UTF16ToString(wide), nil
}
