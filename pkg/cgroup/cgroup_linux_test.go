package cgroup

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeHierarchy(t *testing.T, controllers string) string {
	t.Helper()
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, cgroupControllers), []byte(controllers+"\n"), filePerm))
	return base
}

func readString(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(b)
}

func TestLimits_Default(t *testing.T) {
	l := DefaultLimits()
	assert.Equal(t, uint64(10), l.CPUWeight())
	assert.Equal(t, uint64(1<<30), l.MemoryMax)
	assert.Equal(t, uint64(64), l.PidsMax)
	assert.Equal(t, "cpu.weight=10 memory.max=1073741824 pids.max=64 io.weight=50", l.String())
}

func TestLimits_CPUWeightBounds(t *testing.T) {
	assert.Equal(t, uint64(0), Limits{}.CPUWeight())
	assert.Equal(t, uint64(1), Limits{CPUShares: 1}.CPUWeight())
	assert.Equal(t, uint64(10000), Limits{CPUShares: 1 << 20}.CPUWeight())
}

func TestBuilder_FilterByEnv(t *testing.T) {
	base := fakeHierarchy(t, "cpuset cpu memory pids")
	logger, hook := test.NewNullLogger()

	b := NewBuilder().WithBase(base).WithCPU().WithMemory().WithPids().WithIO()
	b.Logger = logger
	_, err := b.FilterByEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{CPU, Memory, Pids}, b.Names())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "[io]", hook.LastEntry().Data["controllers"])
}

func TestBuilder_Build(t *testing.T) {
	base := fakeHierarchy(t, "cpu memory pids io")
	b := NewBuilder().WithBase(base).WithMemory().WithPids()
	b.Logger, _ = test.NewNullLogger()

	cg, err := b.Build("blue-cat-7")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "blue-cat-7"), cg.Path())
	assert.Equal(t, "+memory +pids", readString(t, filepath.Join(base, cgroupSubtreeControl)))

	_, err = b.Build("blue-cat-7")
	assert.True(t, errors.Is(err, os.ErrExist))

	for _, name := range []string{"", "..", "a/b"} {
		_, err = b.Build(name)
		assert.Error(t, err, name)
	}
}

func TestManager_Restrict(t *testing.T) {
	base := fakeHierarchy(t, "cpu memory pids io")
	logger, _ := test.NewNullLogger()
	b := NewBuilder().WithBase(base).WithCPU().WithMemory().WithPids().WithIO()
	b.Logger = logger
	m := &Manager{Builder: b, Limits: DefaultLimits(), Logger: logger}

	cg, err := m.Restrict("red-moon-1", 4242)
	require.NoError(t, err)

	for file, want := range map[string]string{
		"cpu.weight":   "10",
		"memory.max":   "1073741824",
		"pids.max":     "64",
		"io.weight":    "default 50",
		"cgroup.procs": "4242",
	} {
		assert.Equal(t, want, readString(t, filepath.Join(cg.Path(), file)), file)
	}
	v, err := cg.ReadUint("pids.max")
	require.NoError(t, err)
	assert.Equal(t, uint64(64), v)
}

func TestManager_RestrictSkipsDisabled(t *testing.T) {
	base := fakeHierarchy(t, "pids")
	logger, _ := test.NewNullLogger()
	b := NewBuilder().WithBase(base).WithPids()
	b.Logger = logger
	m := &Manager{Builder: b, Limits: DefaultLimits(), Logger: logger}

	cg, err := m.Restrict("red-moon-2", 1)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(cg.Path(), "memory.max"))
	assert.True(t, os.IsNotExist(err))
}

func TestManager_BuildError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	b := NewBuilder().WithBase(filepath.Join(t.TempDir(), "missing")).WithPids()
	b.Logger = logger
	m := &Manager{Builder: b, Limits: DefaultLimits(), Logger: logger}

	_, err := m.Restrict("x", 1)
	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, OpBuild, ce.Op)
}

func TestManager_Clean(t *testing.T) {
	base := t.TempDir()
	logger, _ := test.NewNullLogger()
	m := &Manager{Builder: NewBuilder().WithBase(base), Logger: logger}

	require.NoError(t, os.Mkdir(filepath.Join(base, "green-book-3"), dirPerm))
	require.NoError(t, m.Clean("green-book-3"))

	var ce *Error
	err := m.Clean("green-book-3")
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, OpCanonicalize, ce.Op)

	node := filepath.Join(base, "busy")
	require.NoError(t, os.Mkdir(node, dirPerm))
	require.NoError(t, os.WriteFile(filepath.Join(node, cgroupProcs), nil, filePerm))
	err = m.Clean("busy")
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, OpRemove, ce.Op)
	assert.True(t, strings.HasPrefix(err.Error(), "cgroup: remove:"))
}

func TestControllers(t *testing.T) {
	c := controllersFromNames([]string{"cpu", "io", "hugetlb"})
	assert.Equal(t, "[cpu, io]", c.String())
	all := AllControllers()
	assert.True(t, all.Contains(&c))
	assert.False(t, c.Contains(&all))
}

func TestCgroupV2_PidsLimit(t *testing.T) {
	if os.Geteuid() != 0 || DetectType() != CgroupTypeV2 {
		t.Skip("requires root and cgroup v2")
	}
	logger, _ := test.NewNullLogger()
	m, err := NewManager(logger)
	require.NoError(t, err)
	if !m.Builder.Pids {
		t.Skip("pids controller unavailable")
	}
	m.NoFile = 0

	name := "curn-test-" + strings.ReplaceAll(t.Name(), "/", "-")
	cg, err := m.Restrict(name, os.Getpid())
	require.NoError(t, err)
	defer func() {
		// move back before removing the node
		os.WriteFile(filepath.Join(basePath, cgroupProcs), []byte("0"), filePerm)
		m.Clean(name)
	}()

	v, err := cg.ReadUint("pids.max")
	require.NoError(t, err)
	assert.Equal(t, uint64(64), v)
}
