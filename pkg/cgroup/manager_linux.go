package cgroup

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/curnrt/curn/pkg/rlimit"
)

// Op is the cgroup manager operation that failed
type Op int

// Op values are stable error codes
const (
	OpBuild Op = iota
	OpAttach
	OpRLimit
	OpRemove
	OpCanonicalize
)

func (o Op) String() string {
	switch o {
	case OpBuild:
		return "build"
	case OpAttach:
		return "attach"
	case OpRLimit:
		return "rlimit"
	case OpRemove:
		return "remove"
	case OpCanonicalize:
		return "canonicalize"
	default:
		return "unknown"
	}
}

// Error is returned by Manager
type Error struct {
	Op  Op
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cgroup: %v: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DefaultNoFile is the RLIMIT_NOFILE set on the launcher once the child is attached
const DefaultNoFile = 64

// Manager owns the cgroup node of a container, named after its hostname
type Manager struct {
	Builder *Builder
	Limits  Limits
	// NoFile is applied to the calling process, 0 skips it
	NoFile uint64

	Logger logrus.FieldLogger
}

// NewManager creates a manager with the default limits for every controller
// available on the host
func NewManager(logger logrus.FieldLogger) (*Manager, error) {
	if t := DetectType(); t != CgroupTypeV2 {
		return nil, &Error{Op: OpBuild, Err: fmt.Errorf("%s mounted at %s, only v2 is supported", t, basePath)}
	}
	b := NewBuilder().WithCPU().WithMemory().WithPids().WithIO()
	b.Logger = logger
	if _, err := b.FilterByEnv(); err != nil {
		return nil, &Error{Op: OpBuild, Err: err}
	}
	return &Manager{
		Builder: b,
		Limits:  DefaultLimits(),
		NoFile:  DefaultNoFile,
		Logger:  logger,
	}, nil
}

// Restrict creates the node, writes the limits of the enabled controllers,
// moves pid into it and finally lowers RLIMIT_NOFILE of the caller
func (m *Manager) Restrict(name string, pid int) (*CgroupV2, error) {
	log := m.Logger.WithFields(logrus.Fields{"cgroup": name, "pid": pid})
	log.Debug("restricting resources")

	cg, err := m.Builder.Build(name)
	if err != nil {
		return nil, &Error{Op: OpBuild, Err: err}
	}
	if err := m.apply(cg); err != nil {
		cg.Destroy()
		return nil, &Error{Op: OpBuild, Err: err}
	}
	if err := cg.AddProc(pid); err != nil {
		log.WithError(err).Error("attach to cgroup")
		return cg, &Error{Op: OpAttach, Err: err}
	}

	if m.NoFile > 0 {
		rl := (&rlimit.RLimits{OpenFile: m.NoFile}).Prepare()
		if err := rlimit.ApplySelf(rl); err != nil {
			log.WithError(err).Error("set rlimit")
			return cg, &Error{Op: OpRLimit, Err: err}
		}
	}
	log.WithField("limits", m.Limits.String()).Debug("resources restricted")
	return cg, nil
}

func (m *Manager) apply(cg *CgroupV2) error {
	c := m.Builder.Controllers
	l := m.Limits
	for _, s := range []struct {
		enabled bool
		value   uint64
		set     func(uint64) error
		name    string
	}{
		{c.CPU, l.CPUWeight(), cg.SetCPUWeight, "cpu.weight"},
		{c.Memory, l.MemoryMax, cg.SetMemoryLimit, "memory.max"},
		{c.Pids, l.PidsMax, cg.SetProcLimit, "pids.max"},
		{c.IO, l.IOWeight, cg.SetIOWeight, "io.weight"},
	} {
		if !s.enabled || s.value == 0 {
			continue
		}
		if err := s.set(s.value); err != nil {
			return fmt.Errorf("set %s: %w", s.name, err)
		}
	}
	return nil
}

// Clean removes the node created by Restrict, the node must be empty
func (m *Manager) Clean(name string) error {
	m.Logger.WithField("cgroup", name).Debug("cleaning cgroup")

	p, err := filepath.EvalSymlinks(path.Join(m.Builder.Base, name))
	if err != nil {
		m.Logger.WithError(err).Error("canonicalize cgroup path")
		return &Error{Op: OpCanonicalize, Err: err}
	}
	if err := remove(p); err != nil {
		return &Error{Op: OpRemove, Err: err}
	}
	return nil
}
