package mount

import (
	"fmt"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// ToolMountPoint is where the optional tool directory appears in the container
const ToolMountPoint = "curn"

// AddPath is an extra host directory bind mounted into the container
type AddPath struct {
	// HostPath is the canonical absolute path on the host
	HostPath string
	// ContainerPath is relative to the container root
	ContainerPath string
}

func (a AddPath) String() string {
	return a.HostPath + ":/" + a.ContainerPath
}

// Plan describes the private root of a container. Steps always come out in the
// same order regardless of how the plan was filled:
//
//	remount / private -> bind source on root -> bind extras -> bind tool
//	-> mkdir holder -> pivot_root -> chdir / -> umount holder -> rmdir holder
//	-> mount proc
//
// proc is mounted after pivot_root, otherwise the host process table leaks in.
type Plan struct {
	// Source is the host directory that becomes the container root
	Source string
	// Root is the host-visible temporary mount point, e.g. /tmp/cunrc.xxx
	Root string
	// Holder is the directory name receiving the old root during pivot
	Holder string

	AddPaths []AddPath
	ToolDir  string
}

// NewPlan creates a plan mounting source as the new root at root
func NewPlan(source, root, holder string) *Plan {
	return &Plan{
		Source: source,
		Root:   root,
		Holder: holder,
	}
}

// WithAddPaths adds extra bind mounts
func (p *Plan) WithAddPaths(a ...AddPath) *Plan {
	p.AddPaths = append(p.AddPaths, a...)
	return p
}

// WithTool bind mounts dir at /curn when dir is not empty
func (p *Plan) WithTool(dir string) *Plan {
	p.ToolDir = dir
	return p
}

// Steps returns the ordered operations of the plan
func (p *Plan) Steps() ([]Step, error) {
	if !filepath.IsAbs(p.Root) || !filepath.IsAbs(p.Source) {
		return nil, fmt.Errorf("mount: root %q and source %q must be absolute", p.Root, p.Source)
	}
	if p.Holder == "" || strings.ContainsRune(p.Holder, '/') {
		return nil, fmt.Errorf("mount: invalid pivot holder %q", p.Holder)
	}

	steps := []Step{
		{Op: OpRemountRoot, Target: "/", Flags: remountFlags},
		{Op: OpMkdir, Target: p.Root},
		{Op: OpBindRoot, Source: p.Source, Target: p.Root, Flags: bindFlags},
	}

	for _, a := range p.AddPaths {
		target, err := p.containerTarget(a.ContainerPath)
		if err != nil {
			return nil, err
		}
		steps = append(steps,
			Step{Op: OpMkdir, Target: target},
			Step{Op: OpBindExtra, Source: a.HostPath, Target: target, Flags: bindFlags},
		)
	}

	if p.ToolDir != "" {
		target := filepath.Join(p.Root, ToolMountPoint)
		steps = append(steps,
			Step{Op: OpMkdir, Target: target},
			Step{Op: OpBindTool, Source: p.ToolDir, Target: target, Flags: bindFlags},
		)
	}

	putOld := filepath.Join(p.Root, p.Holder)
	oldRoot := "/" + p.Holder
	steps = append(steps,
		Step{Op: OpMkdirHolder, Target: putOld},
		Step{Op: OpPivotRoot, Source: p.Root, Target: putOld},
		Step{Op: OpChdir, Target: "/"},
		Step{Op: OpUmountOldRoot, Target: oldRoot},
		Step{Op: OpRmdirOldRoot, Target: oldRoot},
		Step{Op: OpMkdir, Target: "/proc"},
		Step{Op: OpMountProc, Source: "proc", Target: "/proc", FsType: "proc"},
	)
	return steps, nil
}

// Build converts the plan into fork_exec friendly syscall parameters
func (p *Plan) Build() ([]SyscallParams, error) {
	steps, err := p.Steps()
	if err != nil {
		return nil, err
	}
	ret := make([]SyscallParams, 0, len(steps))
	for i := range steps {
		sp, err := steps[i].ToSyscall()
		if err != nil {
			return nil, fmt.Errorf("mount: %v: %v", steps[i], err)
		}
		ret = append(ret, *sp)
	}
	return ret, nil
}

// containerTarget resolves rel inside the future root. Symlinks are followed
// within the source tree (which becomes the root) and never escape it.
func (p *Plan) containerTarget(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("mount: empty container path")
	}
	inSource, err := securejoin.SecureJoin(p.Source, rel)
	if err != nil {
		return "", fmt.Errorf("mount: resolve %q: %v", rel, err)
	}
	sub, err := filepath.Rel(p.Source, inSource)
	if err != nil {
		return "", fmt.Errorf("mount: resolve %q: %v", rel, err)
	}
	if sub == "." {
		return "", fmt.Errorf("mount: container path %q resolves to the root", rel)
	}
	return filepath.Join(p.Root, sub), nil
}

func (p Plan) String() string {
	var sb strings.Builder
	sb.WriteString("Mounts: ")
	steps, err := p.Steps()
	if err != nil {
		sb.WriteString(err.Error())
		return sb.String()
	}
	for i, s := range steps {
		sb.WriteString(s.String())
		if i != len(steps)-1 {
			sb.WriteString(", ")
		}
	}
	return sb.String()
}
