//go:build !windows

package nativeendpoint

import "os"

// getCwd returns the current working directory. POSIX has no path-length
// ambiguity comparable to Windows' MAX_PATH, so this is a direct
// passthrough to os.Getwd.
func getCwd() (string, error) {
	return os.Getwd()
}
