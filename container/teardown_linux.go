package container

import (
	"syscall"

	"github.com/pkg/errors"

	"github.com/curnrt/curn/pkg/mount"
)

// teardown releases everything in a fixed order: sockets, child, mounts,
// cgroup, monitor
func (c *Container) teardown() error {
	steps := []teardownStep{
		{name: "close parent socket", run: c.closeParent},
		{name: "close child socket", run: c.closeChild},
	}
	if c.pid > 0 {
		if !c.reaped {
			steps = append(steps, teardownStep{name: "reap child", run: c.reapChild})
		}
		steps = append(steps, teardownStep{name: "clean mounts", run: c.cleanMounts})
	}
	if c.cgroup != nil {
		steps = append(steps, teardownStep{name: "clean cgroup", run: c.cleanCgroup})
	}
	if c.monitor != nil {
		steps = append(steps,
			teardownStep{name: "terminate monitor", run: c.terminateMonitor},
			teardownStep{name: "reap monitor", run: c.reapMonitor},
		)
	}
	err := runTeardown(c.config.Teardown, steps, c.logger)
	if err == nil {
		c.logger.Debug("clean finished")
	}
	return err
}

func (c *Container) closeParent() error {
	if err := c.pair.Parent.Close(); err != nil {
		return newError(KindSocket, 3, err)
	}
	return nil
}

func (c *Container) closeChild() error {
	if c.pair.ChildClosed() {
		return nil
	}
	if err := c.pair.CloseChild(); err != nil {
		return newError(KindSocket, 4, err)
	}
	return nil
}

func (c *Container) reapChild() error {
	if err := syscall.Kill(c.pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		return newError(KindContainer, ContainerKill, errors.Wrapf(err, "kill %d", c.pid))
	}
	r := wait4(c.pid)
	c.reaped = true
	if r.err != nil {
		return newError(KindContainer, ContainerWait, r.err)
	}
	return nil
}

func (c *Container) cleanMounts() error {
	if err := mount.Clean(c.config.RootPath); err != nil {
		return newError(KindMount, 3, err)
	}
	return nil
}

func (c *Container) cleanCgroup() error {
	if err := c.cgroups.Clean(c.config.Hostname); err != nil {
		return fromCgroup(err)
	}
	c.cgroup = nil
	return nil
}

func (c *Container) terminateMonitor() error {
	if err := c.supervisor.Terminate(c.monitor); err != nil {
		return newError(KindContainer, ContainerKill, err)
	}
	return nil
}

func (c *Container) reapMonitor() error {
	_, err := c.supervisor.Reap(c.monitor)
	c.monitor = nil
	if err != nil {
		return newError(KindContainer, ContainerWait, err)
	}
	return nil
}
