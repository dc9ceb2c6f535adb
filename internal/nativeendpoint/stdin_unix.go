//go:build !windows

package nativeendpoint

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// platformTryRead performs one non-blocking read of stdin on POSIX
// systems by toggling O_NONBLOCK for the duration of the read and
// restoring the original flags afterward, following the strategy in the
// original C native endpoint: EAGAIN/EWOULDBLOCK maps to "no data yet",
// end-of-file maps to closed, and other I/O errors are also treated as
// closed so the command loop never blocks or hangs.
func platformTryRead(max int) (n int, buf []byte, closed bool, err error) {
	fd := int(os.Stdin.Fd())

	flags, ferr := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if ferr != nil {
		return 0, nil, true, ferr
	}
	if flags&unix.O_NONBLOCK == 0 {
		if _, serr := unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags|unix.O_NONBLOCK); serr != nil {
			return 0, nil, true, serr
		}
		defer unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags)
	}

	tmp := make([]byte, max)
	got, rerr := unix.Read(fd, tmp)
	switch {
	case rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK:
		return 0, nil, false, nil
	case rerr == syscall.EINTR:
		return 0, nil, false, nil
	case rerr != nil:
		return 0, nil, true, nil
	case got == 0:
		return 0, nil, true, nil
	default:
		return got, tmp, false, nil
	}
}
