package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curnrt/curn/container"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "curn.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestLoadConfig(t *testing.T) {
	p := writeConfig(t, `
limits:
  pidsMax: 128
monitor:
  program: /usr/local/bin/ecli
  args: ["run", "{{.ContainerID}}.json"]
timeouts:
  handshake: 5s
  run: 1m
teardown: best-effort
rlimits:
  openFile: 256
`)
	o := container.DefaultOptions()
	require.NoError(t, loadConfig(p, true, &o))

	assert.Equal(t, uint64(128), o.Limits.PidsMax)
	// untouched keys keep their defaults
	assert.Equal(t, uint64(1<<30), o.Limits.MemoryMax)
	assert.Equal(t, uint64(256), o.Limits.CPUShares)
	assert.Equal(t, "/usr/local/bin/ecli", o.Monitor.Program)
	assert.Equal(t, "logs", o.Monitor.LogDir)
	assert.Equal(t, 5*time.Second, o.Timeouts.Handshake)
	assert.Equal(t, time.Minute, o.Timeouts.Run)
	assert.Equal(t, container.TeardownBestEffort, o.Teardown)
	assert.Equal(t, uint64(256), o.RLimits.OpenFile)
	assert.Equal(t, time.Second, o.SettleDelay)
}

func TestLoadConfig_Missing(t *testing.T) {
	o := container.DefaultOptions()
	missing := filepath.Join(t.TempDir(), "none.yaml")
	assert.NoError(t, loadConfig(missing, false, &o))
	assert.Error(t, loadConfig(missing, true, &o))
}

func TestLoadConfig_UnknownKey(t *testing.T) {
	p := writeConfig(t, "limitz:\n  pidsMax: 1\n")
	o := container.DefaultOptions()
	assert.Error(t, loadConfig(p, true, &o))
}

func TestRootCmd_RequiresCommand(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--mount", t.TempDir()})
	assert.Error(t, cmd.Execute())
}
