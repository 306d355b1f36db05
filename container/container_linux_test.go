package container

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curnrt/curn/pkg/cgroup"
	"github.com/curnrt/curn/pkg/hostcheck"
)

func TestNew_RejectsOldKernel(t *testing.T) {
	old := checkHost
	defer func() { checkHost = old }()
	checkHost = func(logrus.FieldLogger) error {
		return hostcheck.Host{Release: "4.15.0", Machine: "x86_64"}.Check()
	}

	cfg, err := NewConfig(options(t))
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()

	c, err := New(cfg, logger)
	assert.Nil(t, c)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindNotSupported, e.Kind)
	assert.Equal(t, 0, e.Code)
	assert.Equal(t, "Not supported by: Kernel version: hostcheck: not supported by Kernel version: 4.15.0", e.Error())
}

func TestRun_Cancelled(t *testing.T) {
	old := checkHost
	defer func() { checkHost = old }()
	checkHost = func(logrus.FieldLogger) error { return nil }

	cfg, err := NewConfig(options(t))
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	c, err := New(cfg, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Run(ctx)
	assert.Equal(t, KindContainer, KindOf(err))
	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ContainerInterrupted, ce.Code)
	assert.Equal(t, "Container Error by: Interrupted, container process killed: context canceled", err.Error())
	assert.Equal(t, StateFailed, c.State())
	assert.True(t, c.pair.ChildClosed())
}

// rootfs builds a minimal root with a statically usable busybox, or skips
func rootfs(t *testing.T) string {
	t.Helper()
	busybox, err := exec.LookPath("busybox")
	if err != nil {
		t.Skip("busybox not available")
	}
	root := t.TempDir()
	for _, d := range []string{"bin", "tmp"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, d), 0755))
	}
	b, err := os.ReadFile(busybox)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin", "busybox"), b, 0755))
	return root
}

func TestRun_EndToEnd(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("requires root")
	}
	if err := hostcheck.Check(logrus.New()); err != nil {
		t.Skip(err)
	}
	if cgroup.DetectType() != cgroup.CgroupTypeV2 {
		t.Skip("requires cgroup v2")
	}

	o := DefaultOptions()
	o.MountDir = rootfs(t)
	o.Command = "/bin/busybox true"
	o.SettleDelay = 10 * time.Millisecond
	o.Monitor.Disabled = true
	o.Timeouts.Run = time.Minute
	cfg, err := NewConfig(o)
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	c, err := New(cfg, logger)
	require.NoError(t, err)

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, StateDone, c.State())

	_, err = os.Stat(cfg.RootPath)
	assert.True(t, os.IsNotExist(err), "root path must be removed")
	_, err = os.Stat(filepath.Join("/sys/fs/cgroup", cfg.Hostname))
	assert.True(t, os.IsNotExist(err), "cgroup must be removed")
}

func TestRun_Timeout(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("requires root")
	}
	if err := hostcheck.Check(logrus.New()); err != nil {
		t.Skip(err)
	}
	if cgroup.DetectType() != cgroup.CgroupTypeV2 {
		t.Skip("requires cgroup v2")
	}

	o := DefaultOptions()
	o.MountDir = rootfs(t)
	o.Command = "/bin/busybox sleep 60"
	o.SettleDelay = 10 * time.Millisecond
	o.Monitor.Disabled = true
	o.Timeouts.Run = 200 * time.Millisecond
	cfg, err := NewConfig(o)
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	c, err := New(cfg, logger)
	require.NoError(t, err)

	res, err := c.Run(context.Background())
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.True(t, res.Signaled)
	assert.Equal(t, StateFailed, c.State())
}
