package main

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/curnrt/curn/container"
	"github.com/curnrt/curn/pkg/cgroup"
	"github.com/curnrt/curn/pkg/monitor"
	"github.com/curnrt/curn/pkg/rlimit"
)

// defaultConfigFile is read from the working directory when --config is absent
const defaultConfigFile = "curn.yaml"

// fileConfig is the layout of the yaml config file. Absent keys keep their defaults.
type fileConfig struct {
	Limits      cgroup.Limits            `yaml:"limits"`
	RLimits     rlimit.RLimits           `yaml:"rlimits"`
	Monitor     monitor.Config           `yaml:"monitor"`
	Timeouts    container.Timeouts       `yaml:"timeouts"`
	Teardown    container.TeardownPolicy `yaml:"teardown"`
	SettleDelay time.Duration            `yaml:"settleDelay"`
	Tools       []string                 `yaml:"tools"`
}

func fromOptions(o container.Options) fileConfig {
	return fileConfig{
		Limits:      o.Limits,
		RLimits:     o.RLimits,
		Monitor:     o.Monitor,
		Timeouts:    o.Timeouts,
		Teardown:    o.Teardown,
		SettleDelay: o.SettleDelay,
		Tools:       o.Tools,
	}
}

func (f fileConfig) apply(o *container.Options) {
	o.Limits = f.Limits
	o.RLimits = f.RLimits
	o.Monitor = f.Monitor
	o.Timeouts = f.Timeouts
	o.Teardown = f.Teardown
	o.SettleDelay = f.SettleDelay
	o.Tools = f.Tools
}

// loadConfig overlays the config file on o. A missing default file is not
// an error, a missing explicit file is.
func loadConfig(path string, explicit bool, o *container.Options) error {
	f, err := os.Open(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "config")
	}
	defer f.Close()

	fc := fromOptions(*o)
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return errors.Wrapf(err, "config: decode %s", path)
	}
	fc.apply(o)
	return nil
}
