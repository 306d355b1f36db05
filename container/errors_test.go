package container

import (
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/curnrt/curn/pkg/cgroup"
	"github.com/curnrt/curn/pkg/forkexec"
	"github.com/curnrt/curn/pkg/handshake"
	"github.com/curnrt/curn/pkg/hostcheck"
	"github.com/curnrt/curn/pkg/seccomp/libseccomp"
	"github.com/curnrt/curn/pkg/userns"
)

func TestError_Message(t *testing.T) {
	e := newError(KindNamespace, 4, errors.New("permission denied"))
	assert.Equal(t, "Namespace Error: Failed to write uid_map file: permission denied", e.Error())

	assert.Equal(t, "Cgroup Error: Unknown reason", newError(KindCgroup, 9, nil).Error())
	assert.Equal(t, "Clone child process failed", newError(KindChildProcess, 0, nil).Error())
	assert.Equal(t, "Not supported by: Kernel version", newError(KindNotSupported, 0, nil).Error())
}

func TestKindOf(t *testing.T) {
	err := errors.Wrap(newError(KindMount, 4, nil), "context")
	assert.Equal(t, KindMount, KindOf(err))
	assert.Equal(t, Kind(0), KindOf(errors.New("other")))
	assert.Equal(t, KindMount, errors.Cause(err).(*Error).Kind)
}

func TestFromChild(t *testing.T) {
	tests := []struct {
		loc  forkexec.ErrorLocation
		kind Kind
		code int
	}{
		{forkexec.LocSetHostname, KindHostname, 0},
		{forkexec.LocPivotRoot, KindMount, 4},
		{forkexec.LocMountChdir, KindMount, 5},
		{forkexec.LocUmountOldRoot, KindMount, 1},
		{forkexec.LocRmdirOldRoot, KindMount, 3},
		{forkexec.LocMountMkdir, KindMount, 2},
		{forkexec.LocNegotiationFailed, KindNamespace, 0},
		{forkexec.LocSetGroups, KindNamespace, 1},
		{forkexec.LocSetGid, KindNamespace, 2},
		{forkexec.LocSetUid, KindNamespace, 3},
		{forkexec.LocDropBounding, KindCapability, 0},
		{forkexec.LocSeccomp, KindSyscall, 0},
		{forkexec.LocExecve, KindChildProcess, 0},
	}
	for _, tt := range tests {
		e := fromChild(forkexec.ChildError{Location: tt.loc, Err: syscall.EPERM})
		assert.Equal(t, tt.kind, e.Kind, tt.loc.String())
		assert.Equal(t, tt.code, e.Code, tt.loc.String())
	}
}

func TestFromHandshake(t *testing.T) {
	failed := &handshake.FailedError{Message: handshake.ChildFailed(uint32(forkexec.LocPivotRoot), 0, syscall.EINVAL)}
	e := fromHandshake(&userns.Error{Stage: userns.StageReceive, Err: failed})
	assert.Equal(t, KindMount, e.Kind)
	assert.Equal(t, 4, e.Code)

	e = fromHandshake(&userns.Error{Stage: userns.StageOpenGIDMap, Err: syscall.EACCES})
	assert.Equal(t, KindNamespace, e.Kind)
	assert.Equal(t, 7, e.Code)

	e = fromHandshake(&userns.Error{Stage: userns.StageReceive, Err: handshake.ErrTimeout})
	assert.Equal(t, KindTimeout, e.Kind)
	assert.Equal(t, TimeoutHandshake, e.Code)

	e = fromHandshake(handshake.ErrPeerClosed)
	assert.Equal(t, KindChildProcess, e.Kind)

	e = fromHandshake(errors.New("broken"))
	assert.Equal(t, KindSocket, e.Kind)
	assert.Equal(t, 2, e.Code)
}

func TestFromOthers(t *testing.T) {
	e := fromSeccomp(&libseccomp.BuildError{Stage: libseccomp.StageConditionalRule, Err: syscall.EINVAL})
	assert.Equal(t, KindSyscall, e.Kind)
	assert.Equal(t, 3, e.Code)

	e = fromCgroup(&cgroup.Error{Op: cgroup.OpCanonicalize, Err: syscall.ENOENT})
	assert.Equal(t, KindCgroup, e.Kind)
	assert.Equal(t, 4, e.Code)

	e = fromHostCheck(&hostcheck.UnsupportedError{Reason: hostcheck.ReasonArch, Value: "aarch64"})
	assert.Equal(t, KindNotSupported, e.Kind)
	assert.Equal(t, 1, e.Code)

	e = fromHostCheck(errors.New("malformed"))
	assert.Equal(t, KindContainer, e.Kind)
	assert.Equal(t, 0, e.Code)

}
