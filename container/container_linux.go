package container

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/curnrt/curn/pkg/capability"
	"github.com/curnrt/curn/pkg/cgroup"
	"github.com/curnrt/curn/pkg/forkexec"
	"github.com/curnrt/curn/pkg/handshake"
	"github.com/curnrt/curn/pkg/hostcheck"
	"github.com/curnrt/curn/pkg/monitor"
	"github.com/curnrt/curn/pkg/mount"
	"github.com/curnrt/curn/pkg/seccomp/libseccomp"
	"github.com/curnrt/curn/pkg/tools"
	"github.com/curnrt/curn/pkg/userns"
)

// Env is the only environment of the target program
var Env = []string{"TERM=xterm"}

// checkHost is the precondition gate, replaced in tests
var checkHost = hostcheck.Check

// Result describes how the target program ended
type Result struct {
	ExitCode int
	Signal   syscall.Signal
	Signaled bool
}

func (r Result) String() string {
	if r.Signaled {
		return fmt.Sprintf("signaled(%v)", r.Signal)
	}
	return fmt.Sprintf("exited(%d)", r.ExitCode)
}

// Container runs a single command in fresh namespaces and tears every
// resource down afterwards. A Container is used for one Run only.
type Container struct {
	config *Config
	logger logrus.FieldLogger
	state  stateMachine

	pair   *handshake.Pair
	pid    int
	reaped bool

	cgroups *cgroup.Manager
	cgroup  *cgroup.CgroupV2

	supervisor *monitor.Supervisor
	monitor    *monitor.Process
}

// New checks the host and allocates the handshake pair
func New(config *Config, logger logrus.FieldLogger) (*Container, error) {
	log := logger.WithFields(logrus.Fields{
		"container": config.ContainerID,
		"hostname":  config.Hostname,
	})
	if err := checkHost(log); err != nil {
		return nil, fromHostCheck(err)
	}

	pair, err := handshake.NewPair()
	if err != nil {
		return nil, newError(KindSocket, 0, err)
	}
	return &Container{
		config: config,
		logger: log,
		state:  newStateMachine(),
		pair:   pair,
	}, nil
}

// State returns the current state
func (c *Container) State() State {
	return c.state.current
}

// Run starts the container, waits for it and cleans up. The teardown runs
// whatever happened before, its failure is only returned when the run itself
// succeeded.
func (c *Container) Run(ctx context.Context) (res Result, err error) {
	defer func() {
		if err != nil {
			c.logger.WithError(err).Errorf("container failed in %v", c.state.current)
			c.state.fail()
		}
		c.transit(StateCleaning)
		if terr := c.teardown(); terr != nil {
			if err == nil {
				err = terr
			} else {
				c.logger.WithError(terr).Error("teardown")
			}
			c.state.fail()
		}
		if err != nil {
			c.transit(StateFailed)
		} else {
			c.transit(StateDone)
		}
		c.logger.WithField("state", c.state.String()).Debug("container finished")
	}()

	if err := ctx.Err(); err != nil {
		return res, newError(KindContainer, ContainerInterrupted, err)
	}
	if err := c.launch(); err != nil {
		return res, err
	}
	c.transit(StateLaunched)

	if err := c.restrict(); err != nil {
		return res, err
	}
	if err := c.negotiate(); err != nil {
		return res, err
	}
	c.transit(StateConfined)

	if err := c.spawnMonitor(); err != nil {
		return res, err
	}
	if err := c.awaitExec(); err != nil {
		return res, err
	}
	c.transit(StateRunning)
	c.logger.WithField("pid", c.pid).Info("container running")

	if err := capability.Verify(c.pid); err != nil {
		c.logger.WithError(err).Warn("capability verification")
	}

	return c.wait(ctx)
}

func (c *Container) transit(to State) {
	if err := c.state.transit(to); err != nil {
		c.logger.WithError(err).Debug("state")
	}
}

func (c *Container) deadline() time.Time {
	if c.config.Timeouts.Handshake <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.config.Timeouts.Handshake)
}

// launch prepares everything the child applies and clones it
func (c *Container) launch() error {
	cfg := c.config
	holder, err := generateHolder()
	if err != nil {
		return newError(KindContainer, 0, errors.Wrap(err, "generate pivot holder"))
	}
	plan := mount.NewPlan(cfg.MountDir, cfg.RootPath, holder).
		WithAddPaths(cfg.AddPaths...).
		WithTool(cfg.ToolDir)
	mounts, err := plan.Build()
	if err != nil {
		return newError(KindMount, 0, err)
	}
	c.logger.Debug(plan)

	sb := libseccomp.DefaultBuilder()
	sb.Logger = c.logger
	filter, err := sb.Build()
	if err != nil {
		return fromSeccomp(err)
	}

	caps := capability.NewPlan()
	c.logger.WithField("inheritable", caps.ClearInheritable.String()).Debugf("dropping %d capabilities", len(caps.Drop))

	r := forkexec.Runner{
		Args:        cfg.Argv,
		Env:         Env,
		CloneFlags:  forkexec.NamespaceFlags,
		HostName:    cfg.Hostname,
		Mounts:      mounts,
		UnshareUser: true,
		Credential: &syscall.Credential{
			Uid:    cfg.UID,
			Gid:    cfg.UID,
			Groups: []uint32{cfg.UID},
		},
		DropCaps:         caps.Drop,
		ClearInheritable: caps.ClearInheritable,
		RLimits:          cfg.RLimits.Prepare(),
		Seccomp:          filter.SockFprog(),
		NoNewPrivs:       true,
		SettleDelay:      cfg.SettleDelay,
		Sync:             c.pair,
	}
	c.logger.WithFields(logrus.Fields{
		"argv": cfg.Argv,
		"root": cfg.RootPath,
		"uid":  cfg.UID,
	}).Info("starting container")

	pid, err := r.Start()
	if err != nil {
		if ce, ok := forkexec.AsChildError(err); ok {
			return fromChild(ce)
		}
		return newError(KindChildProcess, 0, err)
	}
	c.pid = pid
	c.pair.Parent.SetPeer(pid)
	c.logger.WithField("pid", pid).Debug("child cloned")

	if err := c.pair.CloseChild(); err != nil {
		return newError(KindSocket, 4, err)
	}
	return nil
}

func (c *Container) restrict() error {
	m, err := cgroup.NewManager(c.logger)
	if err != nil {
		return fromCgroup(err)
	}
	m.Limits = c.config.Limits
	c.cgroups = m

	cg, err := m.Restrict(c.config.Hostname, c.pid)
	// a node may exist even when attaching failed
	c.cgroup = cg
	if err != nil {
		return fromCgroup(err)
	}
	return nil
}

func (c *Container) negotiate() error {
	n := userns.Negotiator{
		Channel: c.pair.Parent,
		Logger:  c.logger,
	}
	if _, err := n.Negotiate(c.pid, c.deadline()); err != nil {
		return fromHandshake(err)
	}
	return nil
}

func (c *Container) spawnMonitor() error {
	mc := c.config.Monitor
	if mc.Disabled {
		return nil
	}
	if found := tools.Probe(c.logger, append([]string{mc.Program}, c.config.Tools...)...); found[mc.Program] == "" {
		c.logger.WithField("program", mc.Program).Info("monitor not found, skipped")
		return nil
	}

	c.supervisor = &monitor.Supervisor{Config: mc, Logger: c.logger}
	p, err := c.supervisor.Spawn(c.config.ContainerID, c.pid)
	if err != nil {
		return newError(KindChildProcess, 0, err)
	}
	c.monitor = p
	return nil
}

func (c *Container) awaitExec() error {
	err := forkexec.AwaitExec(c.pair.Parent, c.pid, c.deadline())
	if err != nil {
		// AwaitExec kills and reaps on failure
		c.reaped = true
		return fromHandshake(err)
	}
	return nil
}

type waitResult struct {
	status syscall.WaitStatus
	err    error
}

func wait4(pid int) waitResult {
	var ws syscall.WaitStatus
	_, err := syscall.Wait4(pid, &ws, 0, nil)
	for err == syscall.EINTR {
		_, err = syscall.Wait4(pid, &ws, 0, nil)
	}
	return waitResult{status: ws, err: err}
}

// wait blocks until the child exits, the run timeout expires or ctx is done.
// The child is killed and reaped in the latter two cases.
func (c *Container) wait(ctx context.Context) (Result, error) {
	c.logger.WithField("pid", c.pid).Debug("waiting for child")

	done := make(chan waitResult, 1)
	go func() {
		done <- wait4(c.pid)
	}()

	var timeout <-chan time.Time
	if d := c.config.Timeouts.Run; d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}

	var (
		r       waitResult
		failure *Error
	)
	select {
	case r = <-done:
	case <-timeout:
		syscall.Kill(c.pid, syscall.SIGKILL)
		r = <-done
		failure = newError(KindTimeout, TimeoutRun, errors.Errorf("killed after %v", c.config.Timeouts.Run))
	case <-ctx.Done():
		syscall.Kill(c.pid, syscall.SIGKILL)
		r = <-done
		failure = newError(KindContainer, ContainerInterrupted, ctx.Err())
	}
	c.reaped = true

	if r.err != nil {
		return Result{}, newError(KindContainer, ContainerWait, r.err)
	}
	res := Result{ExitCode: r.status.ExitStatus()}
	if r.status.Signaled() {
		res.Signaled = true
		res.Signal = r.status.Signal()
	}
	c.logger.WithField("result", res.String()).Info("child exited")
	if failure != nil {
		return res, failure
	}
	return res, nil
}
