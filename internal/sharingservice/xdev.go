package sharingservice

import (
	"errors"
	"os"
	"syscall"
)

// isCrossDevice reports whether err is the OS's EXDEV, signalling that
// os.Rename cannot move src across filesystems and a copy+unlink
// fallback is required (spec.md §4.5).
func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return errors.Is(linkErr.Err, syscall.EXDEV)
	}
	return false
}
