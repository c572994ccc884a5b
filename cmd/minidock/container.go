package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/minidock/minidock/container"
)

func newLogsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logs NAME",
		Short: "Print the output of a detached container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.rt.Logs(args[0], cmd.OutOrStdout())
		},
	}
}

func newExecCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec NAME COMMAND [ARG...]",
		Short: "Run a command in a running container",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := a.rt.Exec(args[0], args[1:], container.ExecIO{
				Stdin:  cmd.InOrStdin(),
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			if code != 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "command exited with status %d\n", code)
			}
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop NAME",
		Short: "Send SIGTERM to a running container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.rt.Stop(args[0])
		},
	}
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME",
		Short: "Remove a stopped container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.rt.Remove(args[0])
		},
	}
}

// newInitCmd is reached only when init is run by hand, container init is
// taken over by container.Init in main
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "init",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("init is internal to minidock (pid %d)", os.Getpid())
		},
	}
}
