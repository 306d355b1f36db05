package mount

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Clean removes the host-visible mount point of a finished container. The
// bind mount lived only in the container's mount namespace, so the directory
// is empty on the host once the container exits. Missing root is not an error.
func Clean(root string) error {
	err := os.Remove(root)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	// the namespace may still pin the mount if the child is alive
	if errors.Is(err, unix.EBUSY) {
		if uerr := unix.Unmount(root, unix.MNT_DETACH); uerr == nil {
			err = os.Remove(root)
			if err == nil {
				return nil
			}
		}
	}
	return errors.Wrapf(err, "mount: clean %s", root)
}
