package container

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func options(t *testing.T) Options {
	o := DefaultOptions()
	o.Command = "/bin/sh -c true"
	o.MountDir = t.TempDir()
	return o
}

func requireArgument(t *testing.T, err error, element string) {
	t.Helper()
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindArgument, e.Kind)
	assert.Equal(t, element, e.Element)
}

func TestNewConfig(t *testing.T) {
	o := options(t)
	o.UID = 1000
	c, err := NewConfig(o)
	require.NoError(t, err)

	assert.Equal(t, "/bin/sh", c.Path)
	assert.Equal(t, []string{"/bin/sh", "-c", "true"}, c.Argv)
	assert.Equal(t, uint32(1000), c.UID)
	assert.Regexp(t, hostnameRe, c.Hostname)
	assert.Regexp(t, idRe, c.ContainerID)
	assert.Regexp(t, rootRe, c.RootPath)
	assert.NotEqual(t, c.ContainerID, filepath.Base(c.RootPath))
	assert.Equal(t, TeardownAbort, c.Teardown)
}

func TestNewConfig_MissingMountDir(t *testing.T) {
	before, _ := filepath.Glob("/tmp/cunrc.*")

	o := options(t)
	o.MountDir = filepath.Join(o.MountDir, "does-not-exist")
	_, err := NewConfig(o)
	requireArgument(t, err, "mount")
	assert.Equal(t, "Invalid argument: mount", err.(*Error).message())

	after, _ := filepath.Glob("/tmp/cunrc.*")
	assert.Equal(t, len(before), len(after), "no container root may be created")
}

func TestNewConfig_Invalid(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	tests := []struct {
		name    string
		modify  func(*Options)
		element string
	}{
		{"empty command", func(o *Options) { o.Command = "   " }, "command"},
		{"mount is a file", func(o *Options) { o.MountDir = file }, "mount"},
		{"add without colon", func(o *Options) { o.AddPaths = []string{"/tmp"} }, "add"},
		{"add missing host", func(o *Options) { o.AddPaths = []string{"/does/not/exist:/data"} }, "add"},
		{"add over root", func(o *Options) { o.AddPaths = []string{"/tmp:/"} }, "add"},
		{"tool missing", func(o *Options) { o.ToolDir = "/does/not/exist" }, "tool"},
		{"uid out of map", func(o *Options) { o.UID = 2000 }, "uid"},
		{"teardown", func(o *Options) { o.Teardown = "sometimes" }, "teardown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := options(t)
			tt.modify(&o)
			_, err := NewConfig(o)
			requireArgument(t, err, tt.element)
		})
	}
}

func TestNewConfig_AddPaths(t *testing.T) {
	host := t.TempDir()
	o := options(t)
	o.AddPaths = []string{host + ":/data/./sub/", host + ":opt"}
	c, err := NewConfig(o)
	require.NoError(t, err)

	require.Len(t, c.AddPaths, 2)
	canonical, err := filepath.EvalSymlinks(host)
	require.NoError(t, err)
	assert.Equal(t, canonical, c.AddPaths[0].HostPath)
	assert.Equal(t, "data/sub", c.AddPaths[0].ContainerPath)
	assert.Equal(t, "opt", c.AddPaths[1].ContainerPath)
}

func TestNewConfig_ToolCommand(t *testing.T) {
	o := options(t)
	o.Command = "ecurn lasm -v"
	o.ToolDir = t.TempDir()
	c, err := NewConfig(o)
	require.NoError(t, err)
	assert.Equal(t, []string{"/curn/lasm", "-v"}, c.Argv)

	// without a tool dir the command is kept
	o.ToolDir = ""
	c, err = NewConfig(o)
	require.NoError(t, err)
	assert.Equal(t, "ecurn", c.Path)
}

func TestRewriteToolCommand(t *testing.T) {
	assert.Equal(t, "/curn/lasm", rewriteToolCommand("ecurn lasm"))
	assert.Equal(t, "ecurnx lasm", rewriteToolCommand("ecurnx lasm"))
	assert.Equal(t, "ecurn", rewriteToolCommand("ecurn"))
	assert.Equal(t, "/bin/ecurn x", rewriteToolCommand("/bin/ecurn x"))
}
