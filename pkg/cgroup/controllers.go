package cgroup

import (
	"strings"
)

// controller names as listed in cgroup.controllers
const (
	CPU    = "cpu"
	Memory = "memory"
	Pids   = "pids"
	IO     = "io"
)

const numberOfControllers = 4

// Controllers is the set of cgroup v2 controllers used by a container node
type Controllers struct {
	CPU    bool
	Memory bool
	Pids   bool
	IO     bool
}

// AllControllers enables every controller known to curn
func AllControllers() Controllers {
	return Controllers{CPU: true, Memory: true, Pids: true, IO: true}
}

// Set enables or disables ct, unknown names are ignored
func (c *Controllers) Set(ct string, value bool) {
	switch ct {
	case CPU:
		c.CPU = value
	case Memory:
		c.Memory = value
	case Pids:
		c.Pids = value
	case IO:
		c.IO = value
	}
}

// Intersect keeps only controllers enabled in both
func (c *Controllers) Intersect(o *Controllers) {
	c.CPU = c.CPU && o.CPU
	c.Memory = c.Memory && o.Memory
	c.Pids = c.Pids && o.Pids
	c.IO = c.IO && o.IO
}

// Contains returns true if the current controller enabled all controllers in the other controller
func (c *Controllers) Contains(o *Controllers) bool {
	return (c.CPU || !o.CPU) && (c.Memory || !o.Memory) && (c.Pids || !o.Pids) && (c.IO || !o.IO)
}

// Names lists the enabled controllers
func (c *Controllers) Names() []string {
	names := make([]string, 0, numberOfControllers)
	for _, v := range []struct {
		e bool
		n string
	}{
		{c.CPU, CPU},
		{c.Memory, Memory},
		{c.Pids, Pids},
		{c.IO, IO},
	} {
		if v.e {
			names = append(names, v.n)
		}
	}
	return names
}

func (c *Controllers) String() string {
	return "[" + strings.Join(c.Names(), ", ") + "]"
}

// controllersFromNames parses the content of cgroup.controllers
func controllersFromNames(names []string) Controllers {
	var c Controllers
	for _, n := range names {
		c.Set(n, true)
	}
	return c
}
