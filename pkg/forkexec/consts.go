package forkexec

import (
	"golang.org/x/sys/unix"
)

// defines missing consts from syscall package
const (
	SECCOMP_SET_MODE_FILTER   = 1
	SECCOMP_FILTER_FLAG_TSYNC = 1

	// NamespaceFlags are the namespaces created by clone for a container.
	// The user namespace is unshared later by the child.
	NamespaceFlags = unix.CLONE_NEWNS | unix.CLONE_NEWCGROUP | unix.CLONE_NEWPID |
		unix.CLONE_NEWIPC | unix.CLONE_NEWNET | unix.CLONE_NEWUTS

	// allowed clone flags
	cloneFlagsMask = NamespaceFlags

	// securebits keeping capabilities across setresuid
	keepCapsBits = _SECURE_KEEP_CAPS | _SECURE_NO_SETUID_FIXUP

	_SECURE_NO_SETUID_FIXUP = 1 << 2
	_SECURE_KEEP_CAPS       = 1 << 4
)

var (
	empty = [...]byte{0}

	// go does not allow constant uintptr to be negative...
	_AT_FDCWD = unix.AT_FDCWD
)
