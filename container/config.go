package container

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/curnrt/curn/pkg/cgroup"
	"github.com/curnrt/curn/pkg/monitor"
	"github.com/curnrt/curn/pkg/mount"
	"github.com/curnrt/curn/pkg/rlimit"
	"github.com/curnrt/curn/pkg/tools"
	"github.com/curnrt/curn/pkg/userns"
)

// TeardownPolicy decides what happens when a cleanup step fails
type TeardownPolicy string

// Teardown policies
const (
	// TeardownAbort stops at the first failing step
	TeardownAbort TeardownPolicy = "abort"
	// TeardownBestEffort runs every step and reports all failures
	TeardownBestEffort TeardownPolicy = "best-effort"
)

// toolCommand is rewritten to the tool mount point when a tool dir is given
const toolCommand = "ecurn"

// Timeouts bound the blocking waits of a run, zero means unbounded
type Timeouts struct {
	// Handshake covers each receive from the child before execve
	Handshake time.Duration `yaml:"handshake"`
	// Run covers the lifetime of the target program
	Run time.Duration `yaml:"run"`
}

// Options are the unvalidated inputs of a run, as given on the command line
// and in the config file
type Options struct {
	Command  string
	UID      uint32
	MountDir string
	// AddPaths are "host:container" pairs
	AddPaths []string
	ToolDir  string

	Limits      cgroup.Limits
	RLimits     rlimit.RLimits
	Monitor     monitor.Config
	Timeouts    Timeouts
	Teardown    TeardownPolicy
	SettleDelay time.Duration
	Tools       []string
}

// DefaultOptions returns options filled with the launcher defaults
func DefaultOptions() Options {
	return Options{
		Limits:      cgroup.DefaultLimits(),
		Monitor:     monitor.DefaultConfig(),
		Timeouts:    Timeouts{Handshake: 30 * time.Second},
		Teardown:    TeardownAbort,
		SettleDelay: time.Second,
		Tools:       tools.DefaultList,
	}
}

// Config is the validated, immutable description of a single run
type Config struct {
	Path     string
	Argv     []string
	UID      uint32
	MountDir string
	AddPaths []mount.AddPath
	ToolDir  string

	Hostname    string
	ContainerID string
	RootPath    string

	Limits      cgroup.Limits
	RLimits     rlimit.RLimits
	Monitor     monitor.Config
	Timeouts    Timeouts
	Teardown    TeardownPolicy
	SettleDelay time.Duration
	Tools       []string
}

// NewConfig validates o and generates the identifiers of the run.
// Nothing is created on the host.
func NewConfig(o Options) (*Config, error) {
	command := strings.TrimSpace(o.Command)
	if command == "" {
		return nil, argumentError("command", nil)
	}

	mountDir, err := canonicalDir(o.MountDir)
	if err != nil {
		return nil, argumentError("mount", err)
	}

	var toolDir string
	if o.ToolDir != "" {
		if toolDir, err = canonicalDir(o.ToolDir); err != nil {
			return nil, argumentError("tool", err)
		}
		command = rewriteToolCommand(command)
	}

	addPaths := make([]mount.AddPath, 0, len(o.AddPaths))
	for _, a := range o.AddPaths {
		p, err := parseAddPath(a)
		if err != nil {
			return nil, argumentError("add", err)
		}
		addPaths = append(addPaths, p)
	}

	if o.UID >= userns.Count {
		return nil, argumentError("uid", errors.Errorf("uid %d outside of [0, %d)", o.UID, userns.Count))
	}

	switch o.Teardown {
	case "":
		o.Teardown = TeardownAbort
	case TeardownAbort, TeardownBestEffort:
	default:
		return nil, argumentError("teardown", errors.Errorf("unknown policy %q", o.Teardown))
	}

	hostname, err := GenerateHostname()
	if err != nil {
		return nil, newError(KindContainer, 0, errors.Wrap(err, "generate hostname"))
	}
	id, err := GenerateContainerID()
	if err != nil {
		return nil, newError(KindContainer, 0, errors.Wrap(err, "generate container id"))
	}
	root, err := GenerateRootPath()
	if err != nil {
		return nil, newError(KindContainer, 0, errors.Wrap(err, "generate root path"))
	}

	argv := strings.Fields(command)
	return &Config{
		Path:        argv[0],
		Argv:        argv,
		UID:         o.UID,
		MountDir:    mountDir,
		AddPaths:    addPaths,
		ToolDir:     toolDir,
		Hostname:    hostname,
		ContainerID: id,
		RootPath:    root,
		Limits:      o.Limits,
		RLimits:     o.RLimits,
		Monitor:     o.Monitor,
		Timeouts:    o.Timeouts,
		Teardown:    o.Teardown,
		SettleDelay: o.SettleDelay,
		Tools:       o.Tools,
	}, nil
}

// rewriteToolCommand turns "ecurn lasm" into "/curn/lasm"
func rewriteToolCommand(command string) string {
	if !strings.HasPrefix(command, toolCommand+" ") {
		return command
	}
	return "/" + mount.ToolMountPoint + "/" + strings.TrimLeft(command[len(toolCommand):], " ")
}

func canonicalDir(p string) (string, error) {
	if p == "" {
		return "", errors.New("empty path")
	}
	fi, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if !fi.IsDir() {
		return "", errors.Errorf("%s is not a directory", p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// parseAddPath splits "host:container"; the host side must exist and the
// container side is made relative to the container root
func parseAddPath(s string) (mount.AddPath, error) {
	host, target, ok := strings.Cut(s, ":")
	if !ok || host == "" || target == "" {
		return mount.AddPath{}, errors.Errorf("%q is not of form host:container", s)
	}
	abs, err := filepath.Abs(host)
	if err != nil {
		return mount.AddPath{}, err
	}
	hostPath, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return mount.AddPath{}, err
	}
	rel := path.Clean(strings.TrimLeft(target, "/"))
	if rel == "." || rel == "" {
		return mount.AddPath{}, errors.Errorf("%q mounts over the container root", s)
	}
	return mount.AddPath{HostPath: hostPath, ContainerPath: rel}, nil
}
