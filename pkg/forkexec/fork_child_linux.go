package forkexec

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/curnrt/curn/pkg/handshake"
	"github.com/curnrt/curn/pkg/mount"
)

// Reference to src/syscall/exec_linux.go
//
//go:norace
func forkAndExecInChild(r *Runner, argv0 *byte, argv, env []*byte, workdir, hostname *byte, settle *unix.Timespec, parentFD, syncFD int) (r1 uintptr, err1 syscall.Errno) {
	var (
		msg       handshake.Message
		ack       handshake.Message
		capHeader = unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
		capData   [2]unix.CapUserData
		clearInh  = r.ClearInheritable[0] | r.ClearInheritable[1]
		groups    uintptr
		ngroups   uintptr
	)
	if cred := r.Credential; cred != nil && len(cred.Groups) > 0 {
		ngroups = uintptr(len(cred.Groups))
		groups = uintptr(unsafe.Pointer(&cred.Groups[0]))
	}

	// similar to exec_linux, avoid side effect by shuffling around
	fd, nextfd := prepareFds(r.Files)
	pipe := syncFD

	// Acquire the fork lock so that no other threads
	// create new fds that are not yet close-on-exec
	// before we fork.
	syscall.ForkLock.Lock()

	// About to call fork.
	// No more allocation or calls of non-assembly functions.
	beforeFork()

	// new namespaces are created by the clone syscall, the stack is a copy
	// on write copy of the parent's (fork semantics)
	r1, _, err1 = syscall.RawSyscall6(syscall.SYS_CLONE, uintptr(syscall.SIGCHLD)|(r.CloneFlags&cloneFlagsMask), 0, 0, 0, 0, 0)
	if err1 != 0 || r1 != 0 {
		// in parent process, immediate return
		return
	}

	// In child process
	afterForkInChild()
	// Notice: cannot call any GO functions beyond this point

	// Close parent end of the handshake
	if _, _, err1 = syscall.RawSyscall(syscall.SYS_CLOSE, uintptr(parentFD), 0, 0); err1 != 0 {
		childExitError(pipe, LocCloseParent, err1)
	}

	// Pass 1 & pass 2 assigns fds for child process
	// Pass 1: fd[i] < i => nextfd
	if pipe < nextfd {
		_, _, err1 = syscall.RawSyscall(syscall.SYS_DUP3, uintptr(pipe), uintptr(nextfd), syscall.O_CLOEXEC)
		if err1 != 0 {
			childExitError(pipe, LocDup3, err1)
		}
		pipe = nextfd
		nextfd++
	}
	for i := 0; i < len(fd); i++ {
		if fd[i] >= 0 && fd[i] < int(i) {
			// Avoid fd rewrite
			for nextfd == pipe {
				nextfd++
			}
			_, _, err1 = syscall.RawSyscall(syscall.SYS_DUP3, uintptr(fd[i]), uintptr(nextfd), syscall.O_CLOEXEC)
			if err1 != 0 {
				childExitError(pipe, LocDup3, err1)
			}
			fd[i] = nextfd
			nextfd++
		}
	}
	// Pass 2: fd[i] => i
	for i := 0; i < len(fd); i++ {
		if fd[i] == -1 {
			syscall.RawSyscall(syscall.SYS_CLOSE, uintptr(i), 0, 0)
			continue
		}
		if fd[i] == int(i) {
			// dup2(i, i) will not clear close on exec flag, need to reset the flag
			_, _, err1 = syscall.RawSyscall(syscall.SYS_FCNTL, uintptr(fd[i]), syscall.F_SETFD, 0)
			if err1 != 0 {
				childExitError(pipe, LocFcntl, err1)
			}
			continue
		}
		_, _, err1 = syscall.RawSyscall(syscall.SYS_DUP3, uintptr(fd[i]), uintptr(i), 0)
		if err1 != 0 {
			childExitError(pipe, LocDup3, err1)
		}
	}

	// Set the session ID
	if r.Setsid {
		_, _, err1 = syscall.RawSyscall(syscall.SYS_SETSID, 0, 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocSetSid, err1)
		}
	}

	// SetHostName
	if hostname != nil {
		_, _, err1 = syscall.RawSyscall(syscall.SYS_SETHOSTNAME,
			uintptr(unsafe.Pointer(hostname)), uintptr(len(r.HostName)), 0)
		if err1 != 0 {
			childExitError(pipe, LocSetHostname, err1)
		}
	}

	// performing the mount plan
	for i := range r.Mounts {
		mp := &r.Mounts[i]
		switch mp.Op {
		case mount.OpRemountRoot:
			_, _, err1 = syscall.RawSyscall6(syscall.SYS_MOUNT, uintptr(unsafe.Pointer(mp.Source)),
				uintptr(unsafe.Pointer(mp.Target)), 0, mp.Flags, 0, 0)
			if err1 != 0 {
				childExitErrorWithIndex(pipe, LocMountRemount, i, err1)
			}

		case mount.OpMkdir:
			// mkdir -p
			for _, p := range mp.Prefixes {
				_, _, err1 = syscall.RawSyscall(syscall.SYS_MKDIRAT, uintptr(_AT_FDCWD), uintptr(unsafe.Pointer(p)), 0755)
				if err1 != 0 && err1 != syscall.EEXIST {
					childExitErrorWithIndex(pipe, LocMountMkdir, i, err1)
				}
			}

		case mount.OpBindRoot, mount.OpBindExtra, mount.OpBindTool:
			_, _, err1 = syscall.RawSyscall6(syscall.SYS_MOUNT, uintptr(unsafe.Pointer(mp.Source)),
				uintptr(unsafe.Pointer(mp.Target)), uintptr(unsafe.Pointer(mp.FsType)), mp.Flags, 0, 0)
			if err1 != 0 {
				childExitErrorWithIndex(pipe, LocMountBind, i, err1)
			}

		case mount.OpMkdirHolder:
			_, _, err1 = syscall.RawSyscall(syscall.SYS_MKDIRAT, uintptr(_AT_FDCWD), uintptr(unsafe.Pointer(mp.Target)), 0755)
			if err1 != 0 {
				childExitErrorWithIndex(pipe, LocMountMkdirHolder, i, err1)
			}

		case mount.OpPivotRoot:
			_, _, err1 = syscall.RawSyscall(syscall.SYS_PIVOT_ROOT, uintptr(unsafe.Pointer(mp.Source)), uintptr(unsafe.Pointer(mp.Target)), 0)
			if err1 != 0 {
				childExitErrorWithIndex(pipe, LocPivotRoot, i, err1)
			}

		case mount.OpChdir:
			_, _, err1 = syscall.RawSyscall(syscall.SYS_CHDIR, uintptr(unsafe.Pointer(mp.Target)), 0, 0)
			if err1 != 0 {
				childExitErrorWithIndex(pipe, LocMountChdir, i, err1)
			}

		case mount.OpUmountOldRoot:
			_, _, err1 = syscall.RawSyscall(syscall.SYS_UMOUNT2, uintptr(unsafe.Pointer(mp.Target)), syscall.MNT_DETACH, 0)
			if err1 != 0 {
				childExitErrorWithIndex(pipe, LocUmountOldRoot, i, err1)
			}

		case mount.OpRmdirOldRoot:
			_, _, err1 = syscall.RawSyscall(syscall.SYS_UNLINKAT, uintptr(_AT_FDCWD), uintptr(unsafe.Pointer(mp.Target)), uintptr(unix.AT_REMOVEDIR))
			if err1 != 0 {
				childExitErrorWithIndex(pipe, LocRmdirOldRoot, i, err1)
			}

		case mount.OpMountProc:
			_, _, err1 = syscall.RawSyscall6(syscall.SYS_MOUNT, uintptr(unsafe.Pointer(mp.Source)),
				uintptr(unsafe.Pointer(mp.Target)), uintptr(unsafe.Pointer(mp.FsType)), mp.Flags,
				uintptr(unsafe.Pointer(&empty[0])), 0)
			if err1 != 0 {
				childExitErrorWithIndex(pipe, LocMountProc, i, err1)
			}
		}
	}

	// user namespace is best effort; the parent writes uid_map / gid_map for
	// us since we do not have capabilities in the original namespace
	if r.UnshareUser {
		msg.Kind = handshake.KindNamespaceCreated
		msg.Flag = 1
		if _, _, err1 = syscall.RawSyscall(syscall.SYS_UNSHARE, syscall.CLONE_NEWUSER, 0, 0); err1 != 0 {
			msg.Flag = 0
		}
		r1, _, err1 = syscall.RawSyscall(syscall.SYS_WRITE, uintptr(pipe), uintptr(unsafe.Pointer(&msg)), unsafe.Sizeof(msg))
		if err1 != 0 {
			childExitError(pipe, LocNamespaceWrite, err1)
		}
		if r1 != unsafe.Sizeof(msg) {
			childExitError(pipe, LocNamespaceWrite, syscall.EPIPE)
		}

		r1, _, err1 = syscall.RawSyscall(syscall.SYS_READ, uintptr(pipe), uintptr(unsafe.Pointer(&ack)), unsafe.Sizeof(ack))
		if err1 != 0 {
			childExitError(pipe, LocNegotiationRead, err1)
		}
		if r1 != unsafe.Sizeof(ack) || ack.Kind != handshake.KindNegotiationAck {
			childExitError(pipe, LocNegotiationRead, syscall.EPROTO)
		}
		if ack.Flag != 0 {
			childExitError(pipe, LocNegotiationFailed, syscall.ECANCELED)
		}
	}

	// set the credential for the child process(exec_linux.go)
	if cred := r.Credential; cred != nil {
		// keep capabilities through setresuid, the bounding set is restricted below
		_, _, err1 = syscall.RawSyscall(syscall.SYS_PRCTL, syscall.PR_SET_SECUREBITS, keepCapsBits, 0)
		if err1 != 0 {
			childExitError(pipe, LocKeepCapability, err1)
		}
		if !cred.NoSetGroups {
			_, _, err1 = syscall.RawSyscall(unix.SYS_SETGROUPS, ngroups, groups, 0)
			if err1 != 0 {
				childExitError(pipe, LocSetGroups, err1)
			}
		}
		_, _, err1 = syscall.RawSyscall(unix.SYS_SETRESGID, uintptr(cred.Gid), uintptr(cred.Gid), uintptr(cred.Gid))
		if err1 != 0 {
			childExitError(pipe, LocSetGid, err1)
		}
		_, _, err1 = syscall.RawSyscall(unix.SYS_SETRESUID, uintptr(cred.Uid), uintptr(cred.Uid), uintptr(cred.Uid))
		if err1 != 0 {
			childExitError(pipe, LocSetUid, err1)
		}
	}

	// Restrict capabilities
	for i, c := range r.DropCaps {
		_, _, err1 = syscall.RawSyscall(syscall.SYS_PRCTL, syscall.PR_CAPBSET_DROP, c, 0)
		if err1 != 0 {
			childExitErrorWithIndex(pipe, LocDropBounding, i, err1)
		}
	}
	if clearInh != 0 {
		_, _, err1 = syscall.RawSyscall(syscall.SYS_CAPGET, uintptr(unsafe.Pointer(&capHeader)), uintptr(unsafe.Pointer(&capData[0])), 0)
		if err1 != 0 {
			childExitError(pipe, LocCapGet, err1)
		}
		capData[0].Inheritable &^= r.ClearInheritable[0]
		capData[1].Inheritable &^= r.ClearInheritable[1]
		_, _, err1 = syscall.RawSyscall(syscall.SYS_CAPSET, uintptr(unsafe.Pointer(&capHeader)), uintptr(unsafe.Pointer(&capData[0])), 0)
		if err1 != 0 {
			childExitError(pipe, LocCapSet, err1)
		}
	}

	// Set limit
	for i, rlim := range r.RLimits {
		// prlimit instead of setrlimit to avoid 32-bit limitation (linux > 3.2)
		_, _, err1 = syscall.RawSyscall6(syscall.SYS_PRLIMIT64, 0, uintptr(rlim.Res), uintptr(unsafe.Pointer(&rlim.Rlim)), 0, 0, 0)
		if err1 != 0 {
			childExitErrorWithIndex(pipe, LocSetRlimit, i, err1)
		}
	}

	// chdir for child
	if workdir != nil {
		_, _, err1 = syscall.RawSyscall(syscall.SYS_CHDIR, uintptr(unsafe.Pointer(workdir)), 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocChdir, err1)
		}
	}

	// No new privs
	if r.NoNewPrivs || r.Seccomp != nil {
		_, _, err1 = syscall.RawSyscall6(syscall.SYS_PRCTL, unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocSetNoNewPrivs, err1)
		}
	}

	// Load seccomp filter
	if r.Seccomp != nil {
		_, _, err1 = syscall.RawSyscall(unix.SYS_SECCOMP, SECCOMP_SET_MODE_FILTER, SECCOMP_FILTER_FLAG_TSYNC, uintptr(unsafe.Pointer(r.Seccomp)))
		if err1 != 0 {
			childExitError(pipe, LocSeccomp, err1)
		}
	}

	// settle before exec, interrupted sleep is not an error
	if settle != nil {
		syscall.RawSyscall(unix.SYS_NANOSLEEP, uintptr(unsafe.Pointer(settle)), 0, 0)
	}

	// time to exec, the handshake fd is close_on_exec so the parent reads EOF
	_, _, err1 = syscall.RawSyscall(unix.SYS_EXECVE, uintptr(unsafe.Pointer(argv0)),
		uintptr(unsafe.Pointer(&argv[0])), uintptr(unsafe.Pointer(&env[0])))
	childExitError(pipe, LocExecve, err1)
	return
}

//go:nosplit
func childExitError(pipe int, loc ErrorLocation, err syscall.Errno) {
	childExitErrorWithIndex(pipe, loc, 0, err)
}

//go:nosplit
func childExitErrorWithIndex(pipe int, loc ErrorLocation, idx int, err syscall.Errno) {
	// send error code on the handshake
	msg := handshake.Message{
		Kind:     handshake.KindChildFailed,
		Flag:     uint32(idx),
		Location: uint32(loc),
		Errno:    uint32(err),
	}
	syscall.RawSyscall(unix.SYS_WRITE, uintptr(pipe), uintptr(unsafe.Pointer(&msg)), unsafe.Sizeof(msg))
	for {
		syscall.RawSyscall(syscall.SYS_EXIT, uintptr(err), 0, 0)
	}
}
