// Package rlimit describes the setrlimit(2) limits applied to the container
// process before execve and to the launcher itself.
package rlimit

import (
	"fmt"
	"strings"
	"syscall"
)

// RLimits is the user facing set of limits, zero means unchanged
type RLimits struct {
	CPU          uint64 `yaml:"cpu"`          // in s
	CPUHard      uint64 `yaml:"cpuHard"`      // in s
	Data         uint64 `yaml:"data"`         // in bytes
	FileSize     uint64 `yaml:"fileSize"`     // in bytes
	Stack        uint64 `yaml:"stack"`        // in bytes
	AddressSpace uint64 `yaml:"addressSpace"` // in bytes
	OpenFile     uint64 `yaml:"openFile"`     // number of fds
	DisableCore  bool   `yaml:"disableCore"`  // set core to 0
}

// RLimit is a single resource limit ready for setrlimit or prlimit64
type RLimit struct {
	Res  int
	Rlim syscall.Rlimit
}

// display names of the supported resources
var names = map[int]string{
	syscall.RLIMIT_CPU:    "CPU",
	syscall.RLIMIT_DATA:   "Data",
	syscall.RLIMIT_FSIZE:  "File",
	syscall.RLIMIT_STACK:  "Stack",
	syscall.RLIMIT_AS:     "AddressSpace",
	syscall.RLIMIT_NOFILE: "OpenFile",
	syscall.RLIMIT_CORE:   "Core",
}

func fixed(res int, v uint64) RLimit {
	return RLimit{Res: res, Rlim: syscall.Rlimit{Cur: v, Max: v}}
}

// Prepare lists the limits to apply. The CPU hard limit is raised to the
// soft limit when it is lower so SIGXCPU comes before SIGKILL.
func (r *RLimits) Prepare() []RLimit {
	var ret []RLimit
	if r.CPU > 0 {
		ret = append(ret, RLimit{
			Res:  syscall.RLIMIT_CPU,
			Rlim: syscall.Rlimit{Cur: r.CPU, Max: max(r.CPU, r.CPUHard)},
		})
	}
	for _, l := range []struct {
		res int
		v   uint64
	}{
		{syscall.RLIMIT_DATA, r.Data},
		{syscall.RLIMIT_FSIZE, r.FileSize},
		{syscall.RLIMIT_STACK, r.Stack},
		{syscall.RLIMIT_AS, r.AddressSpace},
		{syscall.RLIMIT_NOFILE, r.OpenFile},
	} {
		if l.v > 0 {
			ret = append(ret, fixed(l.res, l.v))
		}
	}
	if r.DisableCore {
		ret = append(ret, fixed(syscall.RLIMIT_CORE, 0))
	}
	return ret
}

// Apply sets the limit on the calling process
func (r RLimit) Apply() error {
	rlim := r.Rlim
	if err := syscall.Setrlimit(r.Res, &rlim); err != nil {
		return fmt.Errorf("rlimit: set %v: %w", r, err)
	}
	return nil
}

// ApplySelf sets every limit on the calling process, stopping at the first error
func ApplySelf(rlimits []RLimit) error {
	for _, r := range rlimits {
		if err := r.Apply(); err != nil {
			return err
		}
	}
	return nil
}

// Get reads the current limit of the calling process
func Get(res int) (RLimit, error) {
	r := RLimit{Res: res}
	if err := syscall.Getrlimit(res, &r.Rlim); err != nil {
		return r, err
	}
	return r, nil
}

func (r RLimit) String() string {
	name, ok := names[r.Res]
	if !ok {
		name = fmt.Sprintf("Resource(%d)", r.Res)
	}
	switch r.Res {
	case syscall.RLIMIT_CPU:
		return fmt.Sprintf("%s[%d s:%d s]", name, r.Rlim.Cur, r.Rlim.Max)
	case syscall.RLIMIT_NOFILE:
		return fmt.Sprintf("%s[%d:%d]", name, r.Rlim.Cur, r.Rlim.Max)
	}
	return fmt.Sprintf("%s[%v:%v]", name, Size(r.Rlim.Cur), Size(r.Rlim.Max))
}

func (r RLimits) String() string {
	var sb strings.Builder
	sb.WriteString("RLimits[")
	for i, rl := range r.Prepare() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(rl.String())
	}
	sb.WriteString("]")
	return sb.String()
}

// Size is a byte count printed with binary units
type Size uint64

func (s Size) String() string {
	t := uint64(s)
	switch {
	case t < 1<<10:
		return fmt.Sprintf("%d B", t)
	case t < 1<<20:
		return fmt.Sprintf("%.1f KiB", float64(t)/float64(1<<10))
	case t < 1<<30:
		return fmt.Sprintf("%.1f MiB", float64(t)/float64(1<<20))
	default:
		return fmt.Sprintf("%.1f GiB", float64(t)/float64(1<<30))
	}
}
