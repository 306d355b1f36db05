package forkexec

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/curnrt/curn/pkg/handshake"
)

// Start clones the child and returns its pid.
// With r.Sync set the caller drives the handshake (negotiation and AwaitExec)
// and is responsible for closing its copy of the child endpoint. Without it,
// Start only returns after the child reached execve, or the child failure.
func (r *Runner) Start() (int, error) {
	if len(r.Args) == 0 {
		return 0, errors.New("forkexec: empty argv")
	}
	argv0, argv, env, err := prepareExec(r.Args, r.Env)
	if err != nil {
		return 0, err
	}

	// prepare work dir
	workdir, err := syscallStringFromString(r.WorkDir)
	if err != nil {
		return 0, err
	}

	// prepare hostname
	hostname, err := syscallStringFromString(r.HostName)
	if err != nil {
		return 0, err
	}

	var settle *unix.Timespec
	if r.SettleDelay > 0 {
		ts := unix.NsecToTimespec(int64(r.SettleDelay))
		settle = &ts
	}

	p, owned := r.Sync, r.Sync == nil
	if owned {
		if r.UnshareUser {
			return 0, errors.New("forkexec: user namespace negotiation requires a handshake pair")
		}
		if p, err = handshake.NewPair(); err != nil {
			return 0, err
		}
	}
	if p.ChildClosed() {
		return 0, handshake.ErrClosed
	}

	// fork in child
	pid, err1 := forkAndExecInChild(r, argv0, argv, env, workdir, hostname, settle, p.Parent.FD(), p.ChildFD())

	// restore all signals
	afterFork()
	syscall.ForkLock.Unlock()

	if err1 != 0 {
		if owned {
			p.CloseChild()
			p.Parent.Close()
		}
		return 0, ChildError{Err: err1, Location: LocClone}
	}
	if !owned {
		return int(pid), nil
	}

	p.CloseChild()
	err = AwaitExec(p.Parent, int(pid), time.Time{})
	p.Parent.Close()
	if err != nil {
		return 0, err
	}
	return int(pid), nil
}

// AwaitExec waits until the child endpoint is closed by a successful execve.
// A failure report, an unexpected message or an expired deadline kills and
// reaps the child.
func AwaitExec(c *handshake.Channel, pid int, deadline time.Time) error {
	m, err := c.Receive(deadline)
	if errors.Is(err, handshake.ErrPeerClosed) {
		return nil
	}
	handleChildFailed(pid)

	if ce, ok := AsChildError(err); ok {
		return ce
	}
	if err == nil {
		err = fmt.Errorf("forkexec: unexpected %v before execve", m)
	}
	return err
}

func handleChildFailed(pid int) {
	var wstatus syscall.WaitStatus
	// make sure not blocked
	syscall.Kill(pid, syscall.SIGKILL)
	// child failed; wait for it to exit, to make sure the zombies don't accumulate
	_, err := syscall.Wait4(pid, &wstatus, 0, nil)
	for err == syscall.EINTR {
		_, err = syscall.Wait4(pid, &wstatus, 0, nil)
	}
}
