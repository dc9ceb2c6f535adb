//go:build windows

package nativeendpoint

import (
	"os"

	"golang.org/x/sys/windows"
)

// platformTryRead performs one non-blocking read of stdin on Windows.
// Windows file handles have no non-blocking mode, so the strategy from
// the original C native endpoint is used instead: PeekNamedPipe reports
// how many bytes are currently available without consuming them, and
// only that many bytes (capped at max) are then read with ReadFile.
func platformTryRead(max int) (n int, buf []byte, closed bool, err error) {
	h := windows.Handle(os.Stdin.Fd())

	var avail uint32
	if perr := windows.PeekNamedPipe(h, nil, 0, nil, &avail, nil); perr != nil {
		// Not a pipe (e.g. redirected from a regular file or console);
		// fall back to a direct, best-effort non-blocking-ish read.
		tmp := make([]byte, max)
		got, rerr := windows.Read(h, tmp)
		if rerr != nil {
			return 0, nil, true, nil
		}
		if got == 0 {
			return 0, nil, true, nil
		}
		return got, tmp, false, nil
	}

	if avail == 0 {
		return 0, nil, false, nil
	}

	want := int(avail)
	if want > max {
		want = max
	}
	tmp := make([]byte, want)
	got, rerr := windows.Read(h, tmp)
	if rerr != nil {
		return 0, nil, true, nil
	}
	if got == 0 {
		return 0, nil, true, nil
	}
	return got, tmp, false, nil
}
