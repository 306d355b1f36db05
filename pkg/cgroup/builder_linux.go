package cgroup

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
)

// Builder builds cgroup v2 node directories under Base
type Builder struct {
	// Base is the mount point of the unified hierarchy
	Base string
	Controllers

	Logger logrus.FieldLogger
}

// NewBuilder return a builder rooted at /sys/fs/cgroup without any controller
func NewBuilder() *Builder {
	return &Builder{
		Base:   basePath,
		Logger: logrus.StandardLogger(),
	}
}

// WithBase changes the hierarchy mount point
func (b *Builder) WithBase(base string) *Builder {
	b.Base = base
	return b
}

// WithCPU includes cpu controller
func (b *Builder) WithCPU() *Builder {
	b.CPU = true
	return b
}

// WithMemory includes memory controller
func (b *Builder) WithMemory() *Builder {
	b.Memory = true
	return b
}

// WithPids includes pids controller
func (b *Builder) WithPids() *Builder {
	b.Pids = true
	return b
}

// WithIO includes io controller
func (b *Builder) WithIO() *Builder {
	b.IO = true
	return b
}

// FilterByEnv reads cgroup.controllers of Base and drops the missing ones with a warning
func (b *Builder) FilterByEnv() (*Builder, error) {
	avail, err := getAvailableControllers(b.Base)
	if err != nil {
		return b, err
	}
	if !avail.Contains(&b.Controllers) {
		missing := b.Controllers
		for _, n := range avail.Names() {
			missing.Set(n, false)
		}
		b.Logger.WithField("controllers", missing.String()).Warn("cgroup controllers unavailable, skipped")
	}
	b.Controllers.Intersect(&avail)
	return b, nil
}

// String prints the build properties
func (b *Builder) String() string {
	return fmt.Sprintf("cgroup builder(%s): [%s]", b.Base, strings.Join(b.Names(), ", "))
}

// Build enables the controllers for children of Base and creates Base/name
func (b *Builder) Build(name string) (cg *CgroupV2, err error) {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, '/') {
		return nil, fmt.Errorf("cgroup.builder: invalid name %q", name)
	}
	if err := b.enableSubtree(); err != nil {
		return nil, err
	}

	p := path.Join(b.Base, name)
	if err := os.Mkdir(p, dirPerm); err != nil {
		return nil, err
	}
	b.Logger.WithField("path", p).Debug("cgroup node created")
	return &CgroupV2{p}, nil
}

func (b *Builder) enableSubtree() error {
	s := b.Names()
	if len(s) == 0 {
		return nil
	}
	controlMsg := []byte("+" + strings.Join(s, " +"))
	if err := writeFile(path.Join(b.Base, cgroupSubtreeControl), controlMsg); err != nil {
		return fmt.Errorf("cgroup.builder: enable %v: %w", s, err)
	}
	return nil
}
