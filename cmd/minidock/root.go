package main

import (
	"github.com/spf13/cobra"

	"github.com/minidock/minidock/config"
	"github.com/minidock/minidock/container"
	"github.com/minidock/minidock/pkg/logger"
)

// app is shared by all subcommands, it is populated before any of them run
type app struct {
	configPath string
	debug      bool

	cfg *config.Config
	rt  *container.Runtime
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "minidock",
		Short:         "minidock - a minimal container runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default is "+config.DefaultPath+")")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newRunCmd(a),
		newPsCmd(a),
		newLogsCmd(a),
		newExecCmd(a),
		newStopCmd(a),
		newRmCmd(a),
		newNetworkCmd(a),
		newInitCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	l := logger.GetLogger()
	l.SetLogLevel(cfg.LogLevel)
	if a.debug {
		l.SetLogLevel("debug")
	}
	a.cfg = cfg
	a.rt = container.New(cfg)
	return nil
}
