// Package monitor supervises the companion process observing a container.
// The companion runs outside of the container namespaces, detached in its own
// session, with stdout and stderr appended to logs/<container id>.
package monitor

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"text/template"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/curnrt/curn/pkg/forkexec"
)

// Config is the companion program and its templated arguments
type Config struct {
	// Program is executed as is, a relative path is resolved against the
	// working directory of the launcher
	Program string `yaml:"program"`
	// Args may reference {{.ContainerID}} and {{.PID}}
	Args []string `yaml:"args"`
	Env  []string `yaml:"env"`
	// LogDir receives one log file per container
	LogDir string `yaml:"logDir"`
	// Disabled skips the companion entirely
	Disabled bool `yaml:"disabled"`
}

// DefaultConfig runs ./ecli run package.json and sets the ppid_target global
// of the eBPF program to the container process, so only its children are
// reported. The container id names the log file.
func DefaultConfig() Config {
	return Config{
		Program: "./ecli",
		Args:    []string{"run", "package.json", "--ppid_target", "{{.PID}}"},
		LogDir:  "logs",
	}
}

// Target identifies the container being observed
type Target struct {
	ContainerID string
	PID         int
}

// Supervisor spawns and terminates companions
type Supervisor struct {
	Config Config
	Logger logrus.FieldLogger
}

// Process is a running companion
type Process struct {
	PID     int
	LogPath string
}

// render expands the argument templates for t, argv[0] is the program
func (c Config) render(t Target) ([]string, error) {
	args := make([]string, 0, len(c.Args)+1)
	args = append(args, c.Program)
	for _, a := range c.Args {
		tpl, err := template.New("arg").Option("missingkey=error").Parse(a)
		if err != nil {
			return nil, errors.Wrapf(err, "monitor: parse argument %q", a)
		}
		var buf bytes.Buffer
		if err := tpl.Execute(&buf, t); err != nil {
			return nil, errors.Wrapf(err, "monitor: render argument %q", a)
		}
		args = append(args, buf.String())
	}
	return args, nil
}

// Spawn starts the companion for the container and returns once it reached execve
func (s *Supervisor) Spawn(containerID string, pid int) (*Process, error) {
	t := Target{ContainerID: containerID, PID: pid}
	args, err := s.Config.render(t)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.Config.LogDir, 0755); err != nil {
		return nil, errors.Wrap(err, "monitor: create log dir")
	}
	logPath := filepath.Join(s.Config.LogDir, containerID)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "monitor: open log")
	}
	defer logFile.Close()

	null, err := os.Open(os.DevNull)
	if err != nil {
		return nil, errors.Wrap(err, "monitor: open null")
	}
	defer null.Close()

	r := forkexec.Runner{
		Args:   args,
		Env:    s.Config.Env,
		Files:  []uintptr{null.Fd(), logFile.Fd(), logFile.Fd()},
		Setsid: true,
	}
	mpid, err := r.Start()
	if err != nil {
		return nil, errors.Wrapf(err, "monitor: start %s", s.Config.Program)
	}
	s.Logger.WithFields(logrus.Fields{
		"pid":  mpid,
		"args": args,
		"log":  logPath,
	}).Info("monitor started")
	return &Process{PID: mpid, LogPath: logPath}, nil
}

// Terminate sends SIGTERM to the companion
func (s *Supervisor) Terminate(p *Process) error {
	s.Logger.WithField("pid", p.PID).Debug("terminating monitor")
	if err := syscall.Kill(p.PID, syscall.SIGTERM); err != nil {
		return errors.Wrapf(err, "monitor: kill %d", p.PID)
	}
	return nil
}

// Reap waits for the companion to exit and returns its wait status
func (s *Supervisor) Reap(p *Process) (syscall.WaitStatus, error) {
	var ws syscall.WaitStatus
	_, err := syscall.Wait4(p.PID, &ws, 0, nil)
	for err == syscall.EINTR {
		_, err = syscall.Wait4(p.PID, &ws, 0, nil)
	}
	if err != nil {
		return ws, errors.Wrapf(err, "monitor: wait %d", p.PID)
	}
	s.Logger.WithField("status", describe(ws)).Debug("monitor reaped")
	return ws, nil
}

func describe(ws syscall.WaitStatus) string {
	switch {
	case ws.Exited():
		return "exited " + strconv.Itoa(ws.ExitStatus())
	case ws.Signaled():
		return fmt.Sprintf("signaled %v", ws.Signal())
	default:
		return fmt.Sprintf("status %#x", uint32(ws))
	}
}
