package hostcheck

import (
	"github.com/elastic/go-seccomp-bpf/arch"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Uname reads the running host
func Uname() (Host, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return Host{}, err
	}
	return Host{
		Release: unix.ByteSliceToString(u.Release[:]),
		Machine: unix.ByteSliceToString(u.Machine[:]),
	}, nil
}

// Check validates the running host. The native architecture must also be known
// to the syscall table used to build the seccomp policy.
func Check(logger logrus.FieldLogger) error {
	h, err := Uname()
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"release": h.Release, "machine": h.Machine}).Debug("checking host")
	if err := h.Check(); err != nil {
		return err
	}
	info, err := arch.GetInfo("")
	if err != nil {
		return &UnsupportedError{Reason: ReasonArch, Value: err.Error()}
	}
	logger.WithField("arch", info.Name).Debug("host supported")
	return nil
}
