package cgroup

import (
	"fmt"
)

// Limits of a container node
type Limits struct {
	// CPUShares is the cgroup v1 style weight, converted to cpu.weight
	CPUShares uint64 `yaml:"cpuShares"`
	// MemoryMax is written to memory.max
	MemoryMax uint64 `yaml:"memoryMax"`
	// KernelMemory is accounted in memory.max on cgroup v2 and only recorded
	KernelMemory uint64 `yaml:"kernelMemory"`
	// PidsMax is written to pids.max
	PidsMax uint64 `yaml:"pidsMax"`
	// IOWeight is written to io.weight as the default weight
	IOWeight uint64 `yaml:"ioWeight"`
}

// DefaultLimits are applied to every container unless configured
func DefaultLimits() Limits {
	return Limits{
		CPUShares:    256,
		MemoryMax:    1 << 30,
		KernelMemory: 1 << 30,
		PidsMax:      64,
		IOWeight:     50,
	}
}

// CPUWeight converts CPUShares [2, 262144] to cpu.weight [1, 10000]
func (l Limits) CPUWeight() uint64 {
	shares := l.CPUShares
	if shares == 0 {
		return 0
	}
	if shares < 2 {
		shares = 2
	}
	if shares > 262144 {
		shares = 262144
	}
	return 1 + ((shares-2)*9999)/262142
}

func (l Limits) String() string {
	return fmt.Sprintf("cpu.weight=%d memory.max=%d pids.max=%d io.weight=%d",
		l.CPUWeight(), l.MemoryMax, l.PidsMax, l.IOWeight)
}
