package container

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/curnrt/curn/pkg/cgroup"
	"github.com/curnrt/curn/pkg/forkexec"
	"github.com/curnrt/curn/pkg/handshake"
	"github.com/curnrt/curn/pkg/hostcheck"
	"github.com/curnrt/curn/pkg/seccomp/libseccomp"
	"github.com/curnrt/curn/pkg/userns"
)

// Kind is the family of a launcher error
type Kind int

// Error kinds
const (
	KindArgument Kind = iota + 1
	KindNotSupported
	KindContainer
	KindSocket
	KindChildProcess
	KindHostname
	KindMount
	KindNamespace
	KindCapability
	KindSyscall
	KindCgroup
	KindTimeout
)

var kindToString = []string{
	"unknown",
	"argument",
	"not-supported",
	"container",
	"socket",
	"child-process",
	"hostname",
	"mount",
	"namespace",
	"capability",
	"syscall",
	"cgroup",
	"timeout",
}

func (k Kind) String() string {
	if k >= KindArgument && k <= KindTimeout {
		return kindToString[k]
	}
	return "unknown"
}

// Error is the single error type returned by the orchestrator. Code is
// meaningful within its Kind only.
type Error struct {
	Kind Kind
	Code int
	// Element names the invalid argument for KindArgument
	Element string
	Err     error
}

func (e *Error) Error() string {
	msg := e.message()
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Cause is used by github.com/pkg/errors
func (e *Error) Cause() error {
	return e.Err
}

func (e *Error) message() string {
	switch e.Kind {
	case KindArgument:
		return "Invalid argument: " + e.Element
	case KindNotSupported:
		return "Not supported by: " + reason(e.Code, "Kernel version", "Machine architecture")
	case KindContainer:
		return "Container Error by: " + reason(e.Code,
			"Hardware and OS donot support container",
			"Error while waiting for pid to finish",
			"Error while killing a process",
			"Interrupted, container process killed")
	case KindSocket:
		return "Socket Error: " + reason(e.Code,
			"Cannot generate a pair of connected sockets",
			"Cannot send value through socket",
			"Cannot receive value through socket",
			"Cannot close write socket of parent",
			"Cannot close read socket of child")
	case KindChildProcess:
		return "Clone child process failed"
	case KindHostname:
		return "Cannot set up hostname for container"
	case KindMount:
		return "Mount Error: " + reason(e.Code,
			"Failed to mount file system",
			"Failed to unmount file system",
			"Failed to create directory or file by given path",
			"Failed to delete empty directory",
			"Failed to pivot root",
			"Failed to change working directory to root")
	case KindNamespace:
		return "Namespace Error: " + reason(e.Code,
			"Failed to map UID and GID",
			"Failed to set groups",
			"Failed to set GID",
			"Failed to set UID",
			"Failed to write uid_map file",
			"Failed to create uid_map file",
			"Failed to write gid_map file",
			"Failed to create gid_map file")
	case KindCapability:
		return "Failed to restrict capabilities"
	case KindSyscall:
		return "Syscall Error: " + reason(e.Code,
			"Failed to load seccomp policy",
			"Failed to create seccomp context",
			"Failed to set action for syscall",
			"Failed to set rule for syscall")
	case KindCgroup:
		return "Cgroup Error: " + reason(e.Code,
			"Failed to build a control group",
			"Failed to attach task to control group",
			"Failed to set resource limits",
			"Failed to remove directory",
			"Failed to canonicalize path")
	case KindTimeout:
		return "Timeout: " + reason(e.Code,
			"Waiting for the child handshake",
			"Waiting for the child to exit")
	default:
		return fmt.Sprintf("Unknown Error: %v(%d)", e.Kind, e.Code)
	}
}

func reason(code int, reasons ...string) string {
	if code >= 0 && code < len(reasons) {
		return reasons[code]
	}
	return "Unknown reason"
}

// Container codes
const (
	ContainerUnsupported = iota
	ContainerWait
	ContainerKill
	ContainerInterrupted
)

// Timeout codes
const (
	TimeoutHandshake = iota
	TimeoutRun
)

func newError(kind Kind, code int, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

func argumentError(element string, err error) *Error {
	return &Error{Kind: KindArgument, Element: element, Err: err}
}

// KindOf returns the kind of err, 0 when it did not come from the orchestrator
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

type kindCode struct {
	kind Kind
	code int
}

var locToKind = map[forkexec.ErrorLocation]kindCode{
	forkexec.LocClone:             {KindChildProcess, 0},
	forkexec.LocCloseParent:       {KindSocket, 3},
	forkexec.LocSetHostname:       {KindHostname, 0},
	forkexec.LocMountRemount:      {KindMount, 0},
	forkexec.LocMountMkdir:        {KindMount, 2},
	forkexec.LocMountBind:         {KindMount, 0},
	forkexec.LocMountMkdirHolder:  {KindMount, 2},
	forkexec.LocPivotRoot:         {KindMount, 4},
	forkexec.LocMountChdir:        {KindMount, 5},
	forkexec.LocUmountOldRoot:     {KindMount, 1},
	forkexec.LocRmdirOldRoot:      {KindMount, 3},
	forkexec.LocMountProc:         {KindMount, 0},
	forkexec.LocNamespaceWrite:    {KindSocket, 1},
	forkexec.LocNegotiationRead:   {KindSocket, 2},
	forkexec.LocNegotiationFailed: {KindNamespace, 0},
	forkexec.LocKeepCapability:    {KindCapability, 0},
	forkexec.LocSetGroups:         {KindNamespace, 1},
	forkexec.LocSetGid:            {KindNamespace, 2},
	forkexec.LocSetUid:            {KindNamespace, 3},
	forkexec.LocDropBounding:      {KindCapability, 0},
	forkexec.LocCapGet:            {KindCapability, 0},
	forkexec.LocCapSet:            {KindCapability, 0},
	forkexec.LocSetNoNewPrivs:     {KindSyscall, 0},
	forkexec.LocSeccomp:           {KindSyscall, 0},
}

// fromChild maps a failure reported by the forked child
func fromChild(ce forkexec.ChildError) *Error {
	kc, ok := locToKind[ce.Location]
	if !ok {
		kc = kindCode{KindChildProcess, 0}
	}
	return newError(kc.kind, kc.code, ce)
}

var usernsStageCode = map[userns.Stage]int{
	userns.StageWriteUIDMap: 4,
	userns.StageOpenUIDMap:  5,
	userns.StageWriteGIDMap: 6,
	userns.StageOpenGIDMap:  7,
}

// fromHandshake maps errors of the handshake phases (negotiation, exec wait).
// A child failure report wins over the phase that observed it.
func fromHandshake(err error) *Error {
	if ce, ok := forkexec.AsChildError(err); ok {
		return fromChild(ce)
	}
	if errors.Is(err, handshake.ErrTimeout) {
		return newError(KindTimeout, TimeoutHandshake, err)
	}
	var ue *userns.Error
	if errors.As(err, &ue) {
		if code, ok := usernsStageCode[ue.Stage]; ok {
			return newError(KindNamespace, code, err)
		}
		if ue.Stage == userns.StageSend {
			return newError(KindSocket, 1, err)
		}
	}
	if errors.Is(err, handshake.ErrPeerClosed) {
		return newError(KindChildProcess, 0, errors.Wrap(err, "child exited during handshake"))
	}
	return newError(KindSocket, 2, err)
}

var seccompStageCode = map[libseccomp.Stage]int{
	libseccomp.StageContext:         1,
	libseccomp.StageRule:            2,
	libseccomp.StageConditionalRule: 3,
	libseccomp.StageExport:          0,
}

func fromSeccomp(err error) *Error {
	var be *libseccomp.BuildError
	if errors.As(err, &be) {
		return newError(KindSyscall, seccompStageCode[be.Stage], err)
	}
	return newError(KindSyscall, 0, err)
}

func fromCgroup(err error) *Error {
	var ce *cgroup.Error
	if errors.As(err, &ce) {
		return newError(KindCgroup, int(ce.Op), err)
	}
	return newError(KindCgroup, int(cgroup.OpBuild), err)
}

func fromHostCheck(err error) *Error {
	var ue *hostcheck.UnsupportedError
	if errors.As(err, &ue) {
		return newError(KindNotSupported, int(ue.Reason), err)
	}
	return newError(KindContainer, ContainerUnsupported, err)
}
