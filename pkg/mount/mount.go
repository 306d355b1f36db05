// Package mount builds the ordered mount namespace plan executed by the container
// child right after clone, and cleans its host-visible leftovers afterwards.
package mount

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Op is the kind of a single mount namespace operation
type Op int

// Operations in the order they appear in a plan
const (
	OpRemountRoot Op = iota + 1
	OpMkdir
	OpBindRoot
	OpBindExtra
	OpBindTool
	OpMkdirHolder
	OpPivotRoot
	OpChdir
	OpUmountOldRoot
	OpRmdirOldRoot
	OpMountProc
)

var opToString = []string{
	"unknown",
	"remount_root",
	"mkdir",
	"bind_root",
	"bind_extra",
	"bind_tool",
	"mkdir_holder",
	"pivot_root",
	"chdir",
	"umount_oldroot",
	"rmdir_oldroot",
	"mount_proc",
}

func (o Op) String() string {
	if o >= OpRemountRoot && o <= OpMountProc {
		return opToString[o]
	}
	return "unknown"
}

const (
	// mount("none", "/", nil, MS_REC|MS_PRIVATE), stops propagation to the host
	remountFlags = unix.MS_REC | unix.MS_PRIVATE
	bindFlags    = unix.MS_BIND | unix.MS_PRIVATE
	dirPerm      = 0755
)

// Step is one operation of the plan
type Step struct {
	Op     Op
	Source string
	Target string
	FsType string
	Flags  uintptr
}

func (s Step) String() string {
	switch s.Op {
	case OpBindRoot, OpBindExtra, OpBindTool, OpPivotRoot:
		return fmt.Sprintf("%v[%s:%s]", s.Op, s.Source, s.Target)
	default:
		return fmt.Sprintf("%v[%s]", s.Op, s.Target)
	}
}

// SyscallParams is a Step with every string converted to a NUL terminated byte
// pointer so the forked child can pass it to raw syscalls without allocating
type SyscallParams struct {
	Op                     Op
	Source, Target, FsType *byte
	Flags                  uintptr
	// Prefixes holds every path component of Target for mkdir -p
	Prefixes []*byte
}

// ToSyscall converts Step to SyscallParams
func (s *Step) ToSyscall() (*SyscallParams, error) {
	source, err := syscallStringFromString(s.Source)
	if err != nil {
		return nil, err
	}
	target, err := syscallStringFromString(s.Target)
	if err != nil {
		return nil, err
	}
	fsType, err := syscallStringFromString(s.FsType)
	if err != nil {
		return nil, err
	}
	sp := &SyscallParams{
		Op:     s.Op,
		Source: source,
		Target: target,
		FsType: fsType,
		Flags:  s.Flags,
	}
	if s.Op == OpMkdir {
		if sp.Prefixes, err = arrayPtrFromStrings(pathPrefix(s.Target)); err != nil {
			return nil, err
		}
	}
	return sp, nil
}

// syscallStringFromString prepares *byte if string is not empty, otherwise nil
func syscallStringFromString(str string) (*byte, error) {
	if str != "" {
		return syscall.BytePtrFromString(str)
	}
	return nil, nil
}

// pathPrefix get all components from path
func pathPrefix(path string) []string {
	ret := make([]string, 0)
	for i := 1; i < len(path); i++ {
		if path[i] == '/' {
			ret = append(ret, path[:i])
		}
	}
	ret = append(ret, path)
	return ret
}

// arrayPtrFromStrings converts strings to c style strings
func arrayPtrFromStrings(strs []string) ([]*byte, error) {
	bytes := make([]*byte, 0, len(strs))
	for _, s := range strs {
		b, err := syscall.BytePtrFromString(s)
		if err != nil {
			return nil, err
		}
		bytes = append(bytes, b)
	}
	return bytes, nil
}
