package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe(t *testing.T) {
	dir := t.TempDir()
	tool := filepath.Join(dir, "mytool")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\n"), 0755))
	t.Setenv("PATH", dir)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	found := Probe(logger, "mytool", "missing-tool")

	assert.Equal(t, map[string]string{"mytool": tool}, found)
	assert.Len(t, hook.AllEntries(), 2)
}
