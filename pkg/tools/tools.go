// Package tools looks up companion programs on PATH.
package tools

import (
	"os/exec"

	"github.com/sirupsen/logrus"
)

// DefaultList are the companion tools reported at start up
var DefaultList = []string{"sqlbrowser"}

// Probe reports where every tool lives, missing tools are absent from the
// result and only logged
func Probe(logger logrus.FieldLogger, names ...string) map[string]string {
	found := make(map[string]string, len(names))
	for _, n := range names {
		p, err := exec.LookPath(n)
		if err != nil {
			logger.WithField("tool", n).Debug("tool not found")
			continue
		}
		logger.WithFields(logrus.Fields{"tool": n, "path": p}).Debug("tool found")
		found[n] = p
	}
	return found
}
