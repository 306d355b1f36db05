package container

import (
	stderrors "errors"

	"github.com/sirupsen/logrus"
)

// teardownStep is one cleanup action, skipped when run is nil
type teardownStep struct {
	name string
	run  func() error
}

// runTeardown executes steps in order. TeardownAbort returns the first
// failure and leaves the remaining steps undone; TeardownBestEffort runs them
// all and joins every failure.
func runTeardown(policy TeardownPolicy, steps []teardownStep, logger logrus.FieldLogger) error {
	var errs []error
	for _, s := range steps {
		if s.run == nil {
			continue
		}
		logger.WithField("step", s.name).Debug("teardown")
		if err := s.run(); err != nil {
			logger.WithField("step", s.name).WithError(err).Warn("teardown step failed")
			if policy != TeardownBestEffort {
				return err
			}
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
