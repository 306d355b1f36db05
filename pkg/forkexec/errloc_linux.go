package forkexec

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/curnrt/curn/pkg/handshake"
)

// ErrorLocation defines the location where child process failed to exec
type ErrorLocation int

// ChildError defines the specific error and location where it failed
type ChildError struct {
	Err      syscall.Errno
	Location ErrorLocation
	Index    int
}

// Location constants
const (
	LocClone ErrorLocation = iota + 1
	LocCloseParent
	LocSetHostname
	LocMountRemount
	LocMountMkdir
	LocMountBind
	LocMountMkdirHolder
	LocPivotRoot
	LocMountChdir
	LocUmountOldRoot
	LocRmdirOldRoot
	LocMountProc
	LocNamespaceWrite
	LocNegotiationRead
	LocNegotiationFailed
	LocKeepCapability
	LocSetGroups
	LocSetGid
	LocSetUid
	LocDropBounding
	LocCapGet
	LocCapSet
	LocSetNoNewPrivs
	LocSeccomp
	LocDup3
	LocFcntl
	LocSetSid
	LocSetRlimit
	LocChdir
	LocExecve
)

var locToString = []string{
	"unknown",
	"clone",
	"close_parent",
	"sethostname",
	"mount(remount_root)",
	"mount(mkdir)",
	"mount(bind)",
	"mount(mkdir_holder)",
	"pivot_root",
	"mount(chdir)",
	"umount(old_root)",
	"rmdir(old_root)",
	"mount(proc)",
	"userns(write)",
	"userns(read)",
	"userns(rejected)",
	"keep_capability",
	"setgroups",
	"setresgid",
	"setresuid",
	"capbset_drop",
	"capget",
	"capset",
	"set_no_new_privs",
	"seccomp",
	"dup3",
	"fcntl",
	"setsid",
	"setrlimit",
	"chdir",
	"execve",
}

func (e ErrorLocation) String() string {
	if e >= LocClone && e <= LocExecve {
		return locToString[e]
	}
	return "unknown"
}

func (e ChildError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("%s(%d): %s", e.Location.String(), e.Index, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Location.String(), e.Err.Error())
}

// AsChildError converts a failure reported over the handshake into ChildError
func AsChildError(err error) (ChildError, bool) {
	var ce ChildError
	if errors.As(err, &ce) {
		return ce, true
	}
	var fe *handshake.FailedError
	if !errors.As(err, &fe) {
		return ce, false
	}
	return ChildError{
		Err:      syscall.Errno(fe.Message.Errno),
		Location: ErrorLocation(fe.Message.Location),
		Index:    int(fe.Message.Flag),
	}, true
}
