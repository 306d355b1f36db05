package cgroup

import (
	"path"
	"strconv"
	"strings"
)

const (
	// systemd mounted unified hierarchy
	basePath = "/sys/fs/cgroup"

	cgroupProcs          = "cgroup.procs"
	cgroupSubtreeControl = "cgroup.subtree_control"
	cgroupControllers    = "cgroup.controllers"

	filePerm = 0644
	dirPerm  = 0755
)

// CgroupType is the hierarchy mounted at /sys/fs/cgroup
type CgroupType int

// Hierarchy types, v1 also covers a tmpfs with per controller mounts
const (
	CgroupTypeV1 CgroupType = iota + 1
	CgroupTypeV2
)

func (t CgroupType) String() string {
	switch t {
	case CgroupTypeV1:
		return "cgroup v1"
	case CgroupTypeV2:
		return "cgroup v2"
	default:
		return "invalid"
	}
}

// CgroupV2 is one directory of the unified hierarchy holding the container
type CgroupV2 struct {
	path string
}

// Path returns the node directory
func (c *CgroupV2) Path() string {
	return c.path
}

// AddProc moves pid into the node
func (c *CgroupV2) AddProc(pid int) error {
	return c.WriteUint(cgroupProcs, uint64(pid))
}

// Destroy removes the empty node
func (c *CgroupV2) Destroy() error {
	return remove(c.path)
}

func (c *CgroupV2) SetCPUWeight(w uint64) error {
	return c.WriteUint("cpu.weight", w)
}

func (c *CgroupV2) SetMemoryLimit(l uint64) error {
	return c.WriteUint("memory.max", l)
}

func (c *CgroupV2) SetProcLimit(l uint64) error {
	return c.WriteUint("pids.max", l)
}

// SetIOWeight sets the weight of devices without a dedicated entry
func (c *CgroupV2) SetIOWeight(w uint64) error {
	return writeFile(path.Join(c.path, "io.weight"), []byte("default "+strconv.FormatUint(w, 10)))
}

// WriteUint writes a decimal value into a control file of the node
func (c *CgroupV2) WriteUint(name string, v uint64) error {
	return writeFile(path.Join(c.path, name), []byte(strconv.FormatUint(v, 10)))
}

// ReadUint reads a decimal value from a control file of the node
func (c *CgroupV2) ReadUint(name string) (uint64, error) {
	b, err := readFile(path.Join(c.path, name))
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
}
