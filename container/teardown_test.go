package container

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func recordSteps(calls *[]string, failing map[string]error, names ...string) []teardownStep {
	steps := make([]teardownStep, 0, len(names))
	for _, n := range names {
		n := n
		steps = append(steps, teardownStep{name: n, run: func() error {
			*calls = append(*calls, n)
			return failing[n]
		}})
	}
	return steps
}

func TestRunTeardown_Abort(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var calls []string
	boom := newError(KindMount, 3, errors.New("busy"))
	steps := recordSteps(&calls, map[string]error{"mounts": boom}, "sockets", "mounts", "cgroup", "monitor")

	err := runTeardown(TeardownAbort, steps, logger)
	assert.Equal(t, boom, err)
	assert.Equal(t, []string{"sockets", "mounts"}, calls)
}

func TestRunTeardown_BestEffort(t *testing.T) {
	logger, hook := test.NewNullLogger()
	var calls []string
	mountErr := newError(KindMount, 3, errors.New("busy"))
	cgroupErr := newError(KindCgroup, 3, errors.New("busy"))
	steps := recordSteps(&calls, map[string]error{"mounts": mountErr, "cgroup": cgroupErr},
		"sockets", "mounts", "cgroup", "monitor")

	err := runTeardown(TeardownBestEffort, steps, logger)
	assert.Equal(t, []string{"sockets", "mounts", "cgroup", "monitor"}, calls)
	assert.ErrorIs(t, err, mountErr)
	assert.ErrorIs(t, err, cgroupErr)
	assert.Equal(t, KindMount, KindOf(err))
	assert.Len(t, hook.AllEntries(), 2)
}

func TestRunTeardown_SkipsNil(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var calls []string
	steps := append(recordSteps(&calls, nil, "a"), teardownStep{name: "skipped"})
	assert.NoError(t, runTeardown(TeardownAbort, steps, logger))
	assert.Equal(t, []string{"a"}, calls)
}
