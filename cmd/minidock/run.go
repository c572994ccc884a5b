package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/minidock/minidock/container"
)

type runFlags struct {
	mem    string
	cpu    string
	cpuset string
	volume string
	env    []string
	net    string
	ports  []string
	commit string
	name   string
	detach bool
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.mem, "mem", "m", "", "memory limit, a plain number is in MB (e.g. 100, 64m, 1g)")
	fs.StringVar(&f.cpu, "cpu", "", "cpu shares")
	fs.StringVar(&f.cpuset, "cpuset", "", "cpus the container may run on (e.g. 0-1)")
	fs.StringVarP(&f.volume, "volume", "v", "", "bind mount host_path:container_path")
	fs.StringArrayVarP(&f.env, "env", "e", nil, "set environment variable KEY=VALUE")
	fs.StringVar(&f.net, "net", "", "connect to the network")
	fs.StringArrayVarP(&f.ports, "publish", "p", nil, "map host_port:container_port")
	fs.StringVar(&f.commit, "commit", "", "archive the root filesystem as image after exit")
	fs.StringVar(&f.name, "name", "", "container name (default is the id)")
	fs.BoolVarP(&f.detach, "detach", "d", false, "run in background")
}

// parseMemory reads a size, plain numbers are megabytes
func parseMemory(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n * units.MiB, nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("memory limit must be positive: %s", s)
	}
	return uint64(n), nil
}

func (f *runFlags) options(args []string) (container.Options, error) {
	mem, err := parseMemory(f.mem)
	if err != nil {
		return container.Options{}, fmt.Errorf("invalid --mem: %w", err)
	}
	if f.commit != "" && f.detach {
		return container.Options{}, fmt.Errorf("--commit cannot be used with --detach")
	}
	if len(f.ports) > 0 && f.net == "" {
		return container.Options{}, fmt.Errorf("-p requires --net")
	}
	opts := container.Options{
		Name:    f.name,
		Args:    args,
		Env:     f.env,
		Volume:  f.volume,
		Network: f.net,
		Ports:   f.ports,
		Commit:  f.commit,
		Detach:  f.detach,
	}
	opts.Resources.MemoryBytes = mem
	opts.Resources.CPUShares = f.cpu
	opts.Resources.CPUSet = f.cpuset
	return opts, nil
}

func newRunCmd(a *app) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [flags] [--] COMMAND [ARG...]",
		Short: "Run a command in a new container",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options(args)
			if err != nil {
				return err
			}
			opts.Stdin = cmd.InOrStdin()
			opts.Stdout = cmd.OutOrStdout()
			opts.Stderr = cmd.ErrOrStderr()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			rec, err := a.rt.Create(ctx, opts)
			if err != nil {
				return err
			}
			if opts.Detach {
				fmt.Fprintln(cmd.OutOrStdout(), rec.Name)
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "container %s exited with status %d\n", rec.Name, rec.ExitCode)
			return nil
		},
	}
	// flags after the command belong to the command
	cmd.Flags().SetInterspersed(false)
	f.register(cmd.Flags())
	return cmd
}
