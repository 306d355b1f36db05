// Package capability holds the capabilities removed from every container and
// turns them into what the forked child applies before execve.
package capability

import (
	"fmt"
	"strings"

	"github.com/syndtr/gocapability/capability"
)

// denied are removed from the bounding and inheritable sets
var denied = []capability.Cap{
	capability.CAP_AUDIT_CONTROL,
	capability.CAP_AUDIT_READ,
	capability.CAP_AUDIT_WRITE,
	capability.CAP_BLOCK_SUSPEND,
	capability.CAP_DAC_READ_SEARCH,
	capability.CAP_DAC_OVERRIDE,
	capability.CAP_FSETID,
	capability.CAP_IPC_LOCK,
	capability.CAP_MAC_ADMIN,
	capability.CAP_MAC_OVERRIDE,
	capability.CAP_MKNOD,
	capability.CAP_SETFCAP,
	capability.CAP_SYSLOG,
	capability.CAP_SYS_ADMIN,
	capability.CAP_SYS_BOOT,
	capability.CAP_SYS_MODULE,
	capability.CAP_SYS_NICE,
	capability.CAP_SYS_RAWIO,
	capability.CAP_SYS_RESOURCE,
	capability.CAP_SYS_TIME,
	capability.CAP_WAKE_ALARM,
}

// DenyList returns a copy of the denied capabilities
func DenyList() []capability.Cap {
	return append([]capability.Cap(nil), denied...)
}

// Set is a capability set in the two word layout of capget / capset v3
type Set [2]uint32

// Has reports whether c is in s
func (s Set) Has(c capability.Cap) bool {
	if c < 0 || c > 63 {
		return false
	}
	return s[c>>5]&(1<<(uint(c)&31)) != 0
}

// Add returns s with c added
func (s Set) Add(c capability.Cap) Set {
	if c >= 0 && c <= 63 {
		s[c>>5] |= 1 << (uint(c) & 31)
	}
	return s
}

func (s Set) String() string {
	var names []string
	for _, c := range capability.List() {
		if s.Has(c) {
			names = append(names, c.String())
		}
	}
	return "{" + strings.Join(names, ",") + "}"
}

// Mask is the Set of the deny list
func Mask() Set {
	var s Set
	for _, c := range denied {
		s = s.Add(c)
	}
	return s
}

// Restrict removes the denied capabilities from both sets. Applying it twice
// gives the same result as applying it once.
func Restrict(bounding, inheritable Set) (Set, Set) {
	m := Mask()
	for i := range m {
		bounding[i] &^= m[i]
		inheritable[i] &^= m[i]
	}
	return bounding, inheritable
}

// Plan is what the forked child applies
type Plan struct {
	// Drop holds the numbers passed to prctl(PR_CAPBSET_DROP)
	Drop []uintptr
	// ClearInheritable is removed from the inheritable set with capset
	ClearInheritable Set
}

// NewPlan builds the plan for the running kernel. Capabilities above
// CAP_LAST_CAP are unknown to the kernel and skipped.
func NewPlan() Plan {
	return newPlan(capability.CAP_LAST_CAP)
}

func newPlan(last capability.Cap) Plan {
	var p Plan
	for _, c := range denied {
		if c > last {
			continue
		}
		p.Drop = append(p.Drop, uintptr(c))
		p.ClearInheritable = p.ClearInheritable.Add(c)
	}
	return p
}

// Verify reads the capabilities of pid and checks that none of the denied
// ones is left in its bounding or inheritable set
func Verify(pid int) error {
	caps, err := capability.NewPid2(pid)
	if err != nil {
		return fmt.Errorf("capability: read pid %d: %w", pid, err)
	}
	if err := caps.Load(); err != nil {
		return fmt.Errorf("capability: load pid %d: %w", pid, err)
	}
	var left []string
	for _, c := range denied {
		if c > capability.CAP_LAST_CAP {
			continue
		}
		if caps.Get(capability.BOUNDING, c) || caps.Get(capability.INHERITABLE, c) {
			left = append(left, c.String())
		}
	}
	if len(left) > 0 {
		return fmt.Errorf("capability: pid %d still holds %s", pid, strings.Join(left, ","))
	}
	return nil
}
