package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/curnrt/curn/container"
)

type flags struct {
	debug      bool
	command    string
	uid        uint32
	mountDir   string
	addPaths   []string
	toolDir    string
	configFile string
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "curn",
		Short:         "A lightweight container launcher",
		Long:          "curn runs a command in new namespaces on top of a directory used as root file system.",
		Example:       "  curn --debug --command /bin/bash --mount ../ubuntu-fs --uid 0",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(f.debug)
			err := run(cmd, &f, logger)
			if err != nil {
				logger.Errorf("Error on exit:\n\t%v\n\tReturn 1", err)
			} else {
				logger.Debug("Exit without any error, return 0")
			}
			return err
		},
	}

	fs := cmd.Flags()
	fs.BoolVarP(&f.debug, "debug", "d", false, "activate debug mode")
	fs.StringVarP(&f.command, "command", "c", "", "command to execute inside the container")
	fs.Uint32VarP(&f.uid, "uid", "u", 0, "user ID to create inside the container")
	fs.StringVarP(&f.mountDir, "mount", "m", "", "directory to mount as root of the container")
	fs.StringArrayVarP(&f.addPaths, "add", "a", nil, "mount additional directory inside the container (host:container)")
	fs.StringVarP(&f.toolDir, "tool", "t", "", "mount the tool directory inside the container at /curn")
	fs.StringVar(&f.configFile, "config", "", "yaml config file (default ./"+defaultConfigFile+" when present)")
	cmd.MarkFlagRequired("command")
	cmd.MarkFlagRequired("mount")
	return cmd
}

func newLogger(debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

func options(cmd *cobra.Command, f *flags) (container.Options, error) {
	o := container.DefaultOptions()
	path, explicit := f.configFile, cmd.Flags().Changed("config")
	if !explicit {
		path = defaultConfigFile
	}
	if err := loadConfig(path, explicit, &o); err != nil {
		return o, err
	}
	o.Command = f.command
	o.UID = f.uid
	o.MountDir = f.mountDir
	o.AddPaths = f.addPaths
	o.ToolDir = f.toolDir
	return o, nil
}

func run(cmd *cobra.Command, f *flags, logger *logrus.Logger) error {
	o, err := options(cmd, f)
	if err != nil {
		return err
	}
	cfg, err := container.NewConfig(o)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"command":   cfg.Argv,
		"uid":       cfg.UID,
		"mount":     cfg.MountDir,
		"container": cfg.ContainerID,
	}).Info("arguments")

	c, err := container.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := c.Run(ctx)
	if err != nil {
		return err
	}
	logger.WithField("result", res.String()).Debug("execution finished")
	return nil
}
