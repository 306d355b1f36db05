package libseccomp

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/curnrt/curn/pkg/seccomp"
)

// Rule denies Name when argument Arg masked with Mask equals Value
type Rule struct {
	Name  string
	Arg   uint
	Mask  uint64
	Value uint64
}

func (r Rule) String() string {
	return fmt.Sprintf("%s(arg%d&%#x==%#x)", r.Name, r.Arg, r.Mask, r.Value)
}

// errno returned by every denied syscall
const denyErrno = int16(unix.EPERM)

// DenyAction is the action of denied syscalls
var DenyAction = seccomp.ActionErrno.WithReturnCode(denyErrno)

// DeniedSyscalls fail with EPERM whatever their arguments
var DeniedSyscalls = []string{
	"keyctl",
	"add_key",
	"request_key",
	"mbind",
	"migrate_pages",
	"move_pages",
	"set_mempolicy",
	"userfaultfd",
	"perf_event_open",
}

// ioctl requests are compared whole, the kernel truncates them to 32 bits
const requestMask = 0xffffffff

// ConditionalRules fail with EPERM when their argument matches: setting the
// set-user-ID or set-group-ID bit, creating a user namespace, and faking
// terminal input.
var ConditionalRules = []Rule{
	{Name: "chmod", Arg: 1, Mask: unix.S_ISUID, Value: unix.S_ISUID},
	{Name: "chmod", Arg: 1, Mask: unix.S_ISGID, Value: unix.S_ISGID},
	{Name: "fchmod", Arg: 1, Mask: unix.S_ISUID, Value: unix.S_ISUID},
	{Name: "fchmod", Arg: 1, Mask: unix.S_ISGID, Value: unix.S_ISGID},
	{Name: "fchmodat", Arg: 2, Mask: unix.S_ISUID, Value: unix.S_ISUID},
	{Name: "fchmodat", Arg: 2, Mask: unix.S_ISGID, Value: unix.S_ISGID},
	{Name: "unshare", Arg: 0, Mask: unix.CLONE_NEWUSER, Value: unix.CLONE_NEWUSER},
	{Name: "clone", Arg: 0, Mask: unix.CLONE_NEWUSER, Value: unix.CLONE_NEWUSER},
	{Name: "ioctl", Arg: 1, Mask: requestMask, Value: unix.TIOCSTI},
}

// DefaultBuilder builds the container policy: allow everything else
func DefaultBuilder() *Builder {
	return &Builder{
		Default:     seccomp.ActionAllow,
		Deny:        DeniedSyscalls,
		Conditional: ConditionalRules,
		Action:      DenyAction,
	}
}
