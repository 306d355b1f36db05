package forkexec

import (
	"syscall"
	"time"

	"github.com/curnrt/curn/pkg/handshake"
	"github.com/curnrt/curn/pkg/mount"
	"github.com/curnrt/curn/pkg/rlimit"
)

// Runner is the configuration of a process launch. The zero value with Args
// set starts a plain child sharing every namespace of the caller.
type Runner struct {
	// argv and env for execve syscall for the child process
	Args []string
	Env  []string

	// file descriptors map for new process, from 0 to len - 1.
	// nil keeps the inherited stdio untouched
	Files []uintptr

	// work path set by chdir(dir) after the mounts
	WorkDir string

	// clone flags to create linux namespaces, see NamespaceFlags
	CloneFlags uintptr

	// HostName is set right after clone (requires CLONE_NEWUTS)
	HostName string

	// Mounts are executed in order after the hostname (requires CLONE_NEWNS)
	Mounts []mount.SyscallParams

	// UnshareUser makes the child try unshare(CLONE_NEWUSER) after the mounts
	// and negotiate its id maps with the parent over Sync
	UnshareUser bool

	// Credential is assumed with setgroups / setresgid / setresuid
	Credential *syscall.Credential

	// DropCaps are removed from the bounding set with PR_CAPBSET_DROP
	DropCaps []uintptr

	// ClearInheritable is the inheritable mask (capability v3 layout) cleared
	// with capget / capset
	ClearInheritable [2]uint32

	// resource limits applied with prlimit before execve
	RLimits []rlimit.RLimit

	// seccomp syscall filter applied to child, enables no_new_privs
	Seccomp *syscall.SockFprog

	// no_new_privs calls prctl(PR_SET_NO_NEW_PRIVS)
	NoNewPrivs bool

	// SettleDelay sleeps right before execve
	SettleDelay time.Duration

	// Setsid starts a new session
	Setsid bool

	// Sync is the handshake pair shared with the child. When nil, Start
	// creates its own pair and only returns once the child reached execve.
	Sync *handshake.Pair
}
